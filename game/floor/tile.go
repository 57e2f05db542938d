package floor

// Tile はグリッド上の 1 マスです。座標は生成後に変わりません。
// Tile 自身は文脈を持たず、状態はホストの Game がメソッド呼び出しで管理します。
type Tile struct {
	point Point

	// Occupant は占有しているプレイヤーの ID です。0 は空きを表します。
	Occupant int
	// Generation は占有者か文字が変わるたびに増える単調カウンタです。
	Generation int
	Char       string
	Seq        string
	ScoreValue int
}

// NewTile は空の Tile を作成します。
func NewTile(p Point) *Tile {
	return &Tile{point: p}
}

func (t *Tile) Point() Point { return t.point }

func (t *Tile) IsOccupied() bool {
	return t.Occupant != 0
}

// Reset は座標と世代以外をクリアします。世代は単調性を保つため巻き戻しません。
func (t *Tile) Reset() {
	t.Occupant = 0
	t.ScoreValue = 0
	t.Char = ""
	t.Seq = ""
}
