package floor

// BeehiveGrid は軸座標で菱形に並べた六角格子のグリッドです。
// Point.X が Dash、Point.Y が Bash に対応します。
type BeehiveGrid struct {
	lattice
}

// NewBeehiveGrid は指定サイズの六角格子グリッドを作成します。
func NewBeehiveGrid(dim Dimensions) (*BeehiveGrid, error) {
	l, err := newLattice(dim)
	if err != nil {
		return nil, err
	}
	return &BeehiveGrid{lattice: l}, nil
}

func (g *BeehiveGrid) System() System { return SystemBeehive }

func (g *BeehiveGrid) Neighbors(p Point, radius int) ([]*Tile, error) {
	return g.collect(p, radius, func(dx, dy int) bool {
		return hexLength(dx, dy) <= radius
	})
}

func (g *BeehiveGrid) Distance(a, b Point) int {
	return hexLength(a.X-b.X, a.Y-b.Y)
}

func (g *BeehiveGrid) Lift(p Point) Coord {
	return BeehiveCoord{Dash: float64(p.X), Bash: float64(p.Y)}
}

func (g *BeehiveGrid) StepToward(src Point, target Coord) Point {
	return stepToward(g, src, target)
}

// AmbiguityThreshold は 3r(r+1) です。半径 2 なら 18。
func (g *BeehiveGrid) AmbiguityThreshold(avoidRadius int) int {
	return 3 * avoidRadius * (avoidRadius + 1)
}

// hexLength はキューブ座標 (dash, -dash-bash, bash) での距離です。
func hexLength(dash, bash int) int {
	return max(abs(dash), abs(bash), abs(dash+bash))
}
