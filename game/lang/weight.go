package lang

import "math"

// WeightScaler は元の重みを誇張指数に従って変換する関数を返します。
// 指数 0 は全ての重みを 1 に、指数 1 は元の重みをそのまま使います。
func WeightScaler(exaggeration, avgWeight float64) func(weight float64) float64 {
	switch exaggeration {
	case 0:
		return func(float64) float64 { return 1 }
	case 1:
		return func(w float64) float64 { return w }
	default:
		return func(w float64) float64 { return math.Pow(w/avgWeight, exaggeration) }
	}
}
