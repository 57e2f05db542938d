package lang

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"
)

// SeedCeiling はリセット時に各文字のヒット数へ与える乱数の上限です。
const SeedCeiling = 5.0

const (
	rootIndex = 0
	noParent  = -1
)

// CharSeq は選ばれた文字とその入力シーケンスの組です。
type CharSeq struct {
	Char string
	Seq  string
}

type weightedChar struct {
	char      string
	weightInv float64
	hits      float64
}

// node は木のノードです。carryHits は自身と全祖先のヒット数の合計です。
type node struct {
	parent    int
	seq       string
	chars     []weightedChar
	children  []int
	carryHits float64
}

// Tree は入力シーケンスの接頭辞木です。ノードはインデックスで参照し合います。
// Tree はゴルーチンセーフではありません。
type Tree struct {
	nodes  []node
	leaves []int
	rng    *rand.Rand
}

type Option func(*Tree)

// WithRand はリセット時のシードに使う乱数源を指定します。
func WithRand(r *rand.Rand) Option {
	return func(t *Tree) { t.rng = r }
}

// NewTree は前方マップから木を構築し、ヒット数をリセットした状態で返します。
func NewTree(forward ForwardMap, exaggeration float64, opts ...Option) (*Tree, error) {
	if len(forward) == 0 {
		return nil, &ConstructionError{Reason: "empty forward map"}
	}
	if exaggeration < 0 || math.IsNaN(exaggeration) || math.IsInf(exaggeration, 0) {
		return nil, &ConstructionError{Reason: "weight exaggeration must be a finite non-negative number"}
	}

	var total float64
	for char, desc := range forward {
		switch {
		case desc.Seq == "":
			return nil, &ConstructionError{Char: char, Reason: "empty sequence"}
		case strings.IndexFunc(desc.Seq, unicode.IsSpace) >= 0:
			return nil, &ConstructionError{Char: char, Reason: "sequence contains white space"}
		case !(desc.Weight > 0) || math.IsInf(desc.Weight, 0):
			return nil, &ConstructionError{Char: char, Reason: "weight must be positive"}
		}
		total += desc.Weight
	}
	scale := WeightScaler(exaggeration, total/float64(len(forward)))

	// シーケンスから文字集合への逆引きを作る
	reverse := make(map[string][]weightedChar)
	for char, desc := range forward {
		reverse[desc.Seq] = append(reverse[desc.Seq], weightedChar{
			char:      char,
			weightInv: 1 / scale(desc.Weight),
		})
	}
	seqs := make([]string, 0, len(reverse))
	for seq, chars := range reverse {
		slices.SortFunc(chars, func(a, b weightedChar) int { return cmp.Compare(a.char, b.char) })
		seqs = append(seqs, seq)
	}
	// 辞書順に並べると接頭辞は必ずその拡張より先に来るので、付け替えなしで挿入できる
	slices.Sort(seqs)

	t := &Tree{
		nodes: make([]node, 1, len(seqs)+1),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	t.nodes[rootIndex] = node{parent: noParent}
	cursor := rootIndex
	for _, seq := range seqs {
		for cursor != rootIndex && !strings.HasPrefix(seq, t.nodes[cursor].seq) {
			cursor = t.nodes[cursor].parent
		}
		idx := len(t.nodes)
		t.nodes = append(t.nodes, node{parent: cursor, seq: seq, chars: reverse[seq]})
		t.nodes[cursor].children = append(t.nodes[cursor].children, idx)
		cursor = idx
	}
	t.leaves = t.collectLeaves(rootIndex, nil)

	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t, nil
}

// LeafCount は葉ノードの数です。同時に回避できるシーケンス数の上限になります。
func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// Reset は全てのヒット数を 0 に戻し、各文字に小さな乱数のヒット数を与えます。
func (t *Tree) Reset() {
	for i := range t.nodes {
		t.nodes[i].carryHits = 0
		for j := range t.nodes[i].chars {
			t.nodes[i].chars[j].hits = 0
		}
	}
	for i := range t.nodes {
		if i == rootIndex {
			continue
		}
		for j := range t.nodes[i].chars {
			c := &t.nodes[i].chars[j]
			seed := t.rng.Float64() * SeedCeiling * c.weightInv
			c.hits += seed
			t.incrSubtree(i, seed)
		}
	}
}

// ChooseNonConflicting は avoid のどのシーケンスとも接頭辞関係にない文字を 1 つ選びます。
// 選ばれた文字のヒット数は重みの逆数だけ増えるため、長期的な選択頻度は重みに比例します。
func (t *Tree) ChooseNonConflicting(avoid []string) (CharSeq, error) {
	sorted := slices.Clone(avoid)
	slices.SortStableFunc(sorted, func(a, b string) int { return cmp.Compare(len(a), len(b)) })

	whitelist := t.whitelist(rootIndex, sorted, nil)
	if len(whitelist) == 0 {
		return CharSeq{}, &ExhaustionError{AvoidCount: len(avoid), LeafCount: len(t.leaves)}
	}

	// 回避集合と衝突しない部分木の葉のうち carryHits が最小のもの
	leaf, top := -1, -1
	for _, w := range whitelist {
		for _, l := range t.collectLeaves(w, nil) {
			if leaf < 0 || t.nodes[l].carryHits < t.nodes[leaf].carryHits {
				leaf, top = l, w
			}
		}
	}

	// 葉から許可された部分木の根までの経路で、自身のヒット数が最小のノード
	chosen := leaf
	for n := leaf; ; n = t.nodes[n].parent {
		if t.ownHits(n) < t.ownHits(chosen) {
			chosen = n
		}
		if n == top {
			break
		}
	}

	nd := &t.nodes[chosen]
	best := 0
	for i := range nd.chars {
		if nd.chars[i].hits < nd.chars[best].hits {
			best = i
		}
	}
	c := &nd.chars[best]
	c.hits += c.weightInv
	t.incrSubtree(chosen, c.weightInv)
	return CharSeq{Char: c.char, Seq: nd.seq}, nil
}

func (t *Tree) ownHits(n int) float64 {
	p := t.nodes[n].parent
	if p == noParent {
		return t.nodes[n].carryHits
	}
	return t.nodes[n].carryHits - t.nodes[p].carryHits
}

// whitelist は n の子孫のうち、avoid のどれとも接頭辞関係にない極大の部分木の根を集めます。
func (t *Tree) whitelist(n int, avoid []string, out []int) []int {
	for _, child := range t.nodes[n].children {
		seq := t.nodes[child].seq
		conflict, blocked := false, false
		for _, a := range avoid {
			if strings.HasPrefix(seq, a) {
				// a が seq の接頭辞なら子孫は全て衝突する
				blocked = true
				break
			}
			if strings.HasPrefix(a, seq) {
				conflict = true
			}
		}
		switch {
		case blocked:
		case conflict:
			out = t.whitelist(child, avoid, out)
		default:
			out = append(out, child)
		}
	}
	return out
}

func (t *Tree) collectLeaves(n int, out []int) []int {
	if len(t.nodes[n].children) == 0 {
		if n != rootIndex {
			out = append(out, n)
		}
		return out
	}
	for _, child := range t.nodes[n].children {
		out = t.collectLeaves(child, out)
	}
	return out
}

func (t *Tree) incrSubtree(n int, amount float64) {
	stack := []int{n}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t.nodes[i].carryHits += amount
		stack = append(stack, t.nodes[i].children...)
	}
}
