package floor

import "fmt"

// Factory は座標系ごとのグリッドを構築します。
type Factory func(dim Dimensions) (Grid, error)

// Registry は座標系の識別子からグリッド実装へのマッピングです。
// プロセス全体の可変状態を避けるため、起動時に値として渡します。
type Registry map[System]Factory

// DefaultRegistry は組み込みの座標系を登録した新しい Registry を返します。
func DefaultRegistry() Registry {
	return Registry{
		SystemEuclid2: func(dim Dimensions) (Grid, error) { return NewEuclid2Grid(dim) },
		SystemBeehive: func(dim Dimensions) (Grid, error) { return NewBeehiveGrid(dim) },
	}
}

// NewGrid は sys に対応するグリッドを作成します。
func (r Registry) NewGrid(sys System, dim Dimensions) (Grid, error) {
	factory, ok := r[sys]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, sys)
	}
	return factory(dim)
}
