package floor

// Euclid2Grid は正方格子のグリッドです。隣接はチェビシェフ距離で数えます。
type Euclid2Grid struct {
	lattice
}

// NewEuclid2Grid は指定サイズの正方格子グリッドを作成します。
func NewEuclid2Grid(dim Dimensions) (*Euclid2Grid, error) {
	l, err := newLattice(dim)
	if err != nil {
		return nil, err
	}
	return &Euclid2Grid{lattice: l}, nil
}

func (g *Euclid2Grid) System() System { return SystemEuclid2 }

func (g *Euclid2Grid) Neighbors(p Point, radius int) ([]*Tile, error) {
	return g.collect(p, radius, func(dx, dy int) bool { return true })
}

func (g *Euclid2Grid) Distance(a, b Point) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func (g *Euclid2Grid) Lift(p Point) Coord {
	return Euclid2Coord{X: float64(p.X), Y: float64(p.Y)}
}

func (g *Euclid2Grid) StepToward(src Point, target Coord) Point {
	return stepToward(g, src, target)
}

// AmbiguityThreshold は (2r+1)^2 - 1 です。半径 2 なら 24。
func (g *Euclid2Grid) AmbiguityThreshold(avoidRadius int) int {
	side := 2*avoidRadius + 1
	return side*side - 1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
