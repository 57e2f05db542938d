package lang

import (
	"fmt"
	"strings"
)

// CharDesc は文字に対応する入力シーケンスと相対出現頻度です。
type CharDesc struct {
	Seq    string
	Weight float64
}

// ForwardMap は文字から入力シーケンスへのマップです。シーケンスは重複してもかまいません。
type ForwardMap map[string]CharDesc

// Desc はカタログに登録された言語の説明です。
type Desc struct {
	ID          string
	DisplayName string
	Build       func() ForwardMap
	// Remap は入力されたキーをシーケンスの表記に揃えます。
	Remap func(input string) string
}

// Catalog は言語 ID から言語の説明へのマッピングです。
type Catalog map[string]Desc

// DefaultCatalog は組み込みの言語を登録した新しい Catalog を返します。
func DefaultCatalog() Catalog {
	return Catalog{
		"engl-low": {
			ID:          "engl-low",
			DisplayName: "English Lowercase (qwerty)",
			Build:       EnglishLowercase,
			Remap:       strings.ToLower,
		},
		"numpad": {
			ID:          "numpad",
			DisplayName: "Number Pad",
			Build:       Numpad,
			Remap:       func(s string) string { return s },
		},
	}
}

// Lookup は id に対応する言語の説明を返します。
func (c Catalog) Lookup(id string) (Desc, error) {
	d, ok := c[id]
	if !ok {
		return Desc{}, fmt.Errorf("%w: %q", ErrUnknownLang, id)
	}
	return d, nil
}

// 英文における文字の出現頻度 (%)
var englishFrequencies = map[string]float64{
	"a": 8.12, "b": 1.49, "c": 2.71, "d": 4.32, "e": 12.02, "f": 2.30,
	"g": 2.03, "h": 5.92, "i": 7.31, "j": 0.10, "k": 0.69, "l": 3.98,
	"m": 2.61, "n": 6.95, "o": 7.68, "p": 1.82, "q": 0.11, "r": 6.02,
	"s": 6.28, "t": 9.10, "u": 2.88, "v": 1.11, "w": 2.09, "x": 0.17,
	"y": 2.11, "z": 0.07,
}

// EnglishLowercase は英小文字 26 文字の前方マップです。シーケンスは文字そのものです。
func EnglishLowercase() ForwardMap {
	fm := make(ForwardMap, len(englishFrequencies))
	for c, w := range englishFrequencies {
		fm[c] = CharDesc{Seq: c, Weight: w}
	}
	return fm
}

// Numpad は "00" から "99" までの 100 個の等重みシーケンスです。
func Numpad() ForwardMap {
	fm := make(ForwardMap, 100)
	for i := 0; i < 100; i++ {
		s := fmt.Sprintf("%02d", i)
		fm[s] = CharDesc{Seq: s, Weight: 1}
	}
	return fm
}
