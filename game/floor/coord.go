package floor

import (
	"fmt"
	"math"
)

// System は座標系の識別子です。
type System string

const (
	SystemEuclid2 System = "EUCLID2"
	SystemBeehive System = "BEEHIVE"
)

// Point は格子点の整数座標です。ワイヤ上の座標表現にも使われます。
type Point struct {
	X int `msgpack:"x" json:"x"`
	Y int `msgpack:"y" json:"y"`
}

// BenchPoint はグリッド外のベンチを指す擬似座標です。
// ベンチはグリッドではなくプレイヤーに紐付きます。
var BenchPoint = Point{X: math.MinInt32, Y: math.MinInt32}

// IsBench はベンチの擬似座標かどうかを判定します。
func (p Point) IsBench() bool {
	return p == BenchPoint
}

func (p Point) String() string {
	if p.IsBench() {
		return "(bench)"
	}
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Coord は座標系ごとの不変な座標値です。
// 演算結果は常に新しい値として返されます。異なる座標系同士の演算はパニックします。
type Coord interface {
	System() System
	Equals(other Coord) bool
	Add(other Coord) Coord
	Sub(other Coord) Coord
	Mul(scalar float64) Coord
	// Round は最も近い格子点に丸めた座標を返します。
	Round() Coord
	// Norm は平面に埋め込んだときのユークリッド長です。
	Norm() float64
	// Point は丸めた格子点を返します。
	Point() Point
}

// Euclid2Coord は正方格子の座標です。
type Euclid2Coord struct {
	X float64
	Y float64
}

func (c Euclid2Coord) System() System { return SystemEuclid2 }

func (c Euclid2Coord) Equals(other Coord) bool {
	o, ok := other.(Euclid2Coord)
	return ok && c.X == o.X && c.Y == o.Y
}

func (c Euclid2Coord) Add(other Coord) Coord {
	o := asEuclid2(other)
	return Euclid2Coord{X: c.X + o.X, Y: c.Y + o.Y}
}

func (c Euclid2Coord) Sub(other Coord) Coord {
	o := asEuclid2(other)
	return Euclid2Coord{X: c.X - o.X, Y: c.Y - o.Y}
}

func (c Euclid2Coord) Mul(scalar float64) Coord {
	return Euclid2Coord{X: c.X * scalar, Y: c.Y * scalar}
}

func (c Euclid2Coord) Round() Coord {
	return Euclid2Coord{X: math.Round(c.X), Y: math.Round(c.Y)}
}

func (c Euclid2Coord) Norm() float64 {
	return math.Hypot(c.X, c.Y)
}

func (c Euclid2Coord) Point() Point {
	return Point{X: int(math.Round(c.X)), Y: int(math.Round(c.Y))}
}

func asEuclid2(c Coord) Euclid2Coord {
	o, ok := c.(Euclid2Coord)
	if !ok {
		panic(fmt.Sprintf("floor: coordinate system mismatch: want %s, got %s", SystemEuclid2, c.System()))
	}
	return o
}

// BeehiveCoord は六角格子の軸座標です。
// Dash は 3 時方向、Bash は 5 時方向の軸です。
type BeehiveCoord struct {
	Dash float64
	Bash float64
}

func (c BeehiveCoord) System() System { return SystemBeehive }

func (c BeehiveCoord) Equals(other Coord) bool {
	o, ok := other.(BeehiveCoord)
	return ok && c.Dash == o.Dash && c.Bash == o.Bash
}

func (c BeehiveCoord) Add(other Coord) Coord {
	o := asBeehive(other)
	return BeehiveCoord{Dash: c.Dash + o.Dash, Bash: c.Bash + o.Bash}
}

func (c BeehiveCoord) Sub(other Coord) Coord {
	o := asBeehive(other)
	return BeehiveCoord{Dash: c.Dash - o.Dash, Bash: c.Bash - o.Bash}
}

func (c BeehiveCoord) Mul(scalar float64) Coord {
	return BeehiveCoord{Dash: c.Dash * scalar, Bash: c.Bash * scalar}
}

// Round はキューブ座標で丸め、誤差が最大の成分を残り二つから復元します。
func (c BeehiveCoord) Round() Coord {
	x, z := c.Dash, c.Bash
	y := -x - z
	rx, ry, rz := math.Round(x), math.Round(y), math.Round(z)
	dx, dy, dz := math.Abs(rx-x), math.Abs(ry-y), math.Abs(rz-z)
	switch {
	case dx > dy && dx > dz:
		rx = -ry - rz
	case dy > dz:
		// y は使わない
	default:
		rz = -rx - ry
	}
	return BeehiveCoord{Dash: rx, Bash: rz}
}

func (c BeehiveCoord) Norm() float64 {
	x := c.Dash + c.Bash/2
	y := c.Bash * math.Sqrt(3) / 2
	return math.Hypot(x, y)
}

func (c BeehiveCoord) Point() Point {
	r := c.Round().(BeehiveCoord)
	return Point{X: int(r.Dash), Y: int(r.Bash)}
}

func asBeehive(c Coord) BeehiveCoord {
	o, ok := c.(BeehiveCoord)
	if !ok {
		panic(fmt.Sprintf("floor: coordinate system mismatch: want %s, got %s", SystemBeehive, c.System()))
	}
	return o
}
