package floor

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestNewGrid(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name    string
		sys     System
		dim     Dimensions
		wantErr bool
	}{
		{"euclid2 3x3", SystemEuclid2, Dimensions{3, 3}, false},
		{"beehive 5x4", SystemBeehive, Dimensions{5, 4}, false},
		{"zero width", SystemEuclid2, Dimensions{0, 3}, true},
		{"too tall", SystemBeehive, Dimensions{3, MaxDimension + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := reg.NewGrid(tt.sys, tt.dim)
			if tt.wantErr {
				var cerr *ConfigurationError
				if !errors.As(err, &cerr) {
					t.Fatalf("error = %v, want *ConfigurationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewGrid failed: %v", err)
			}
			if g.System() != tt.sys {
				t.Errorf("System() = %s, want %s", g.System(), tt.sys)
			}
			if g.Dimensions() != tt.dim {
				t.Errorf("Dimensions() = %v, want %v", g.Dimensions(), tt.dim)
			}
			count := 0
			g.ForEachTile(func(*Tile) { count++ })
			if count != tt.dim.Width*tt.dim.Height {
				t.Errorf("tile count = %d, want %d", count, tt.dim.Width*tt.dim.Height)
			}
		})
	}
}

func TestNewGrid_UnknownSystem(t *testing.T) {
	_, err := DefaultRegistry().NewGrid("TORUS", Dimensions{3, 3})
	if !errors.Is(err, ErrUnknownSystem) {
		t.Errorf("error = %v, want ErrUnknownSystem", err)
	}
}

func TestGrid_TileAt_OutOfBounds(t *testing.T) {
	g, err := NewEuclid2Grid(Dimensions{4, 4})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    Point
	}{
		{"negative x", Point{-1, 2}},
		{"x exceeds width", Point{4, 2}},
		{"negative y", Point{2, -1}},
		{"y exceeds height", Point{2, 4}},
		{"bench", BenchPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.TileAt(tt.p)
			if _, ok := err.(*OutOfBoundsError); !ok {
				t.Errorf("error type = %T, want *OutOfBoundsError", err)
			}
		})
	}
}

func TestEuclid2Grid_Neighbors(t *testing.T) {
	g, _ := NewEuclid2Grid(Dimensions{5, 5})

	tests := []struct {
		name   string
		p      Point
		radius int
		want   int
	}{
		{"center r1", Point{2, 2}, 1, 8},
		{"center r2", Point{2, 2}, 2, 24},
		{"corner r1", Point{0, 0}, 1, 3},
		{"edge r1", Point{0, 2}, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Neighbors(tt.p, tt.radius)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len(Neighbors) = %d, want %d", len(got), tt.want)
			}
			for _, n := range got {
				if n.Point() == tt.p {
					t.Errorf("Neighbors includes center %s", tt.p)
				}
			}
		})
	}
}

func TestBeehiveGrid_Neighbors(t *testing.T) {
	g, _ := NewBeehiveGrid(Dimensions{7, 7})

	tests := []struct {
		radius int
		want   int
	}{
		{1, 6},
		{2, 18},
	}

	for _, tt := range tests {
		got, err := g.Neighbors(Point{3, 3}, tt.radius)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("radius %d: len(Neighbors) = %d, want %d", tt.radius, len(got), tt.want)
		}
		if th := g.AmbiguityThreshold(tt.radius); th != tt.want {
			t.Errorf("AmbiguityThreshold(%d) = %d, want %d", tt.radius, th, tt.want)
		}
	}
}

func TestGrid_Distance(t *testing.T) {
	e, _ := NewEuclid2Grid(Dimensions{5, 5})
	b, _ := NewBeehiveGrid(Dimensions{5, 5})

	tests := []struct {
		name string
		g    Grid
		a, b Point
		want int
	}{
		{"euclid2 diagonal", e, Point{0, 0}, Point{1, 1}, 1},
		{"euclid2 far", e, Point{0, 0}, Point{3, 1}, 3},
		{"beehive along dash", b, Point{0, 0}, Point{2, 0}, 2},
		{"beehive anti diagonal", b, Point{1, 0}, Point{0, 1}, 1},
		{"beehive diagonal", b, Point{0, 0}, Point{1, 1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.g.Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestGrid_StepToward(t *testing.T) {
	g, _ := NewEuclid2Grid(Dimensions{5, 5})

	if got := g.StepToward(Point{0, 0}, g.Lift(Point{4, 4})); got != (Point{1, 1}) {
		t.Errorf("StepToward = %s, want (1, 1)", got)
	}
	if got := g.StepToward(Point{2, 2}, g.Lift(Point{2, 2})); got != (Point{2, 2}) {
		t.Errorf("StepToward to self = %s, want (2, 2)", got)
	}
	if got := AwayFrom(g, Point{2, 2}, Point{1, 2}); got != (Point{3, 2}) {
		t.Errorf("AwayFrom = %s, want (3, 2)", got)
	}
}

func TestCheckAmbiguity(t *testing.T) {
	g, _ := NewEuclid2Grid(Dimensions{3, 3})

	if err := CheckAmbiguity(g, 2, 26); err != nil {
		t.Errorf("CheckAmbiguity(26 leaves) = %v, want nil", err)
	}
	err := CheckAmbiguity(g, 2, 10)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Errorf("CheckAmbiguity(10 leaves) = %v, want *ConfigurationError", err)
	}
}

func TestGrid_RandomPointInBounds(t *testing.T) {
	g, _ := NewBeehiveGrid(Dimensions{3, 2})
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 100; i++ {
		p := g.RandomPoint(r)
		if _, err := g.TileAt(p); err != nil {
			t.Fatalf("RandomPoint returned %s: %v", p, err)
		}
	}
}

func TestTile_ResetKeepsGeneration(t *testing.T) {
	tile := NewTile(Point{1, 1})
	tile.Occupant = 3
	tile.Generation = 7
	tile.Char, tile.Seq, tile.ScoreValue = "e", "e", 2

	tile.Reset()

	if tile.IsOccupied() {
		t.Errorf("IsOccupied() = true after Reset")
	}
	if tile.Generation != 7 {
		t.Errorf("Generation = %d, want 7", tile.Generation)
	}
	if tile.Char != "" || tile.Seq != "" || tile.ScoreValue != 0 {
		t.Errorf("tile not cleared: %+v", tile)
	}
}
