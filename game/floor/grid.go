package floor

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// OutOfBoundsError はタイル座標が範囲外の場合のエラーです。
type OutOfBoundsError struct {
	Point         Point
	Width, Height int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("tile coordinates %s out of range [0-%d, 0-%d]", e.Point, e.Width-1, e.Height-1)
}

// ConfigurationError はグリッドや言語の組み合わせが遊べない場合のエラーです。
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "floor: configuration: " + e.Reason
}

// ErrUnknownSystem は登録されていない座標系が指定された場合に返されます。
var ErrUnknownSystem = errors.New("floor: unknown coordinate system")

const (
	MinDimension = 1
	MaxDimension = 128
)

// Dimensions はグリッドの大きさです。六角格子では Width が Dash 軸、Height が Bash 軸の長さです。
type Dimensions struct {
	Width  int `msgpack:"width" json:"width"`
	Height int `msgpack:"height" json:"height"`
}

// Grid はタイルの空間インデックスです。プレイヤーや文字のことは知りません。
type Grid interface {
	System() System
	Dimensions() Dimensions
	TileAt(p Point) (*Tile, error)
	// Neighbors は p から radius 以内にある p 以外の全タイルを返します。
	Neighbors(p Point, radius int) ([]*Tile, error)
	ForEachTile(fn func(t *Tile))
	Distance(a, b Point) int
	// Lift は格子点を座標系の座標値に持ち上げます。
	Lift(p Point) Coord
	// StepToward は src と隣接するタイル (src 自身を含む) のうち target に最も近い格子点を返します。
	StepToward(src Point, target Coord) Point
	RandomPoint(r *rand.Rand) Point
	// AmbiguityThreshold は avoidRadius 以内の回避集合の最大サイズです。
	AmbiguityThreshold(avoidRadius int) int
	Reset()
}

// CheckAmbiguity は言語の葉の数が回避集合の最大サイズを満たすか検査します。
func CheckAmbiguity(g Grid, avoidRadius, leafCount int) error {
	threshold := g.AmbiguityThreshold(avoidRadius)
	if leafCount < threshold {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"%s grid with avoidance radius %d needs at least %d leaf sequences, language has %d",
			g.System(), avoidRadius, threshold, leafCount,
		)}
	}
	return nil
}

// AwayFrom は from から src へ向かう方向にもう一歩進んだ隣接格子点を返します。
func AwayFrom(g Grid, src, from Point) Point {
	here := g.Lift(src)
	dir := here.Sub(g.Lift(from))
	return g.StepToward(src, here.Add(dir.Mul(2)))
}

// lattice は行優先で並べた矩形のタイル配列です。各座標系の実装が埋め込みます。
type lattice struct {
	width  int
	height int
	tiles  []*Tile
}

func newLattice(dim Dimensions) (lattice, error) {
	if dim.Width < MinDimension || dim.Width > MaxDimension ||
		dim.Height < MinDimension || dim.Height > MaxDimension {
		return lattice{}, &ConfigurationError{Reason: fmt.Sprintf(
			"dimensions %dx%d outside [%d, %d]", dim.Width, dim.Height, MinDimension, MaxDimension,
		)}
	}
	l := lattice{
		width:  dim.Width,
		height: dim.Height,
		tiles:  make([]*Tile, dim.Width*dim.Height),
	}
	for y := 0; y < dim.Height; y++ {
		for x := 0; x < dim.Width; x++ {
			l.tiles[y*dim.Width+x] = NewTile(Point{X: x, Y: y})
		}
	}
	return l, nil
}

func (l *lattice) Dimensions() Dimensions {
	return Dimensions{Width: l.width, Height: l.height}
}

func (l *lattice) inBounds(p Point) bool {
	return p.X >= 0 && p.X < l.width && p.Y >= 0 && p.Y < l.height
}

func (l *lattice) TileAt(p Point) (*Tile, error) {
	if !l.inBounds(p) {
		return nil, &OutOfBoundsError{Point: p, Width: l.width, Height: l.height}
	}
	return l.tiles[p.Y*l.width+p.X], nil
}

func (l *lattice) ForEachTile(fn func(t *Tile)) {
	for _, t := range l.tiles {
		fn(t)
	}
}

func (l *lattice) RandomPoint(r *rand.Rand) Point {
	return Point{X: r.IntN(l.width), Y: r.IntN(l.height)}
}

func (l *lattice) Reset() {
	for _, t := range l.tiles {
		t.Reset()
	}
}

// collect は中心からのオフセットを走査し、include が真かつ範囲内のタイルを集めます。
func (l *lattice) collect(p Point, radius int, include func(dx, dy int) bool) ([]*Tile, error) {
	if !l.inBounds(p) {
		return nil, &OutOfBoundsError{Point: p, Width: l.width, Height: l.height}
	}
	var out []*Tile
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			q := Point{X: p.X + dx, Y: p.Y + dy}
			if !l.inBounds(q) || !include(dx, dy) {
				continue
			}
			out = append(out, l.tiles[q.Y*l.width+q.X])
		}
	}
	return out, nil
}

// stepToward は src と距離 1 以内の候補から target までの距離が最小のものを選びます。
// 同距離なら走査順で先のもの (src 自身を最優先) を返します。
func stepToward(g Grid, src Point, target Coord) Point {
	best := src
	bestDist := target.Sub(g.Lift(src)).Norm()
	neighbors, err := g.Neighbors(src, 1)
	if err != nil {
		return src
	}
	for _, t := range neighbors {
		d := target.Sub(g.Lift(t.Point())).Norm()
		if d < bestDist {
			best, bestDist = t.Point(), d
		}
	}
	return best
}
