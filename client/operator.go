package client

import (
	"strings"

	"github.com/touka-aoi/snakey/game/floor"
)

// Operator はローカルプレイヤーの入力バッファです。
// 打たれたキーを溜め、移動先候補のシーケンスを打ち終えたらそのタイルを返します。
// バッファは常に、いずれかの候補のシーケンスの接頭辞になっている最長の接尾辞に切り詰められます。
type Operator struct {
	buf        string
	remap      func(string) string
	candidates func() []floor.Tile
}

// NewOperator は remap で入力を正規化し、candidates が返すタイルを移動先候補とする Operator を作ります。
func NewOperator(remap func(string) string, candidates func() []floor.Tile) *Operator {
	if remap == nil {
		remap = func(s string) string { return s }
	}
	return &Operator{remap: remap, candidates: candidates}
}

func (o *Operator) Buffer() string { return o.buf }

func (o *Operator) Clear() { o.buf = "" }

// Type はキーをバッファに追加します。候補のシーケンスが完成したらそのタイルの座標と true を返します。
func (o *Operator) Type(key string) (floor.Point, bool) {
	tiles := o.candidates()
	o.buf = liveSuffix(o.buf+o.remap(key), tiles)
	if o.buf == "" {
		return floor.Point{}, false
	}
	for _, t := range tiles {
		if t.Seq == o.buf {
			o.buf = ""
			return t.Point(), true
		}
	}
	return floor.Point{}, false
}

// RefreshSeqBuffer は周囲のシンボルが変わったときにバッファを切り詰め直します。
func (o *Operator) RefreshSeqBuffer() {
	o.buf = liveSuffix(o.buf, o.candidates())
}

func liveSuffix(buf string, tiles []floor.Tile) string {
	for i := range buf {
		s := buf[i:]
		for _, t := range tiles {
			if t.Seq != "" && strings.HasPrefix(t.Seq, s) {
				return s
			}
		}
	}
	return ""
}
