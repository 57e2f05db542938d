package lang

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted は回避集合によって全ての葉が除外された場合に返されます。
	// 言語とグリッドの組み合わせが不適切であることを示し、実行時には回復できません。
	ErrExhausted = errors.New("lang: no sequence survives the avoidance set")

	// ErrUnknownLang はカタログに存在しない言語 ID が指定された場合に返されます。
	ErrUnknownLang = errors.New("lang: unknown language")
)

// ConstructionError は前方マップが木を構築できない場合のエラーです。
type ConstructionError struct {
	Char   string
	Reason string
}

func (e *ConstructionError) Error() string {
	if e.Char == "" {
		return "lang: construction: " + e.Reason
	}
	return fmt.Sprintf("lang: construction: char %q: %s", e.Char, e.Reason)
}

// ExhaustionError は ErrExhausted を回避集合の大きさと共に返します。
type ExhaustionError struct {
	AvoidCount int
	LeafCount  int
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("%v (avoid=%d, leaves=%d)", ErrExhausted, e.AvoidCount, e.LeafCount)
}

func (e *ExhaustionError) Unwrap() error { return ErrExhausted }
