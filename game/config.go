package game

import (
	"fmt"
	"time"

	"github.com/touka-aoi/snakey/game/floor"
)

// Config はゲームの調整値です。
type Config struct {
	// AvoidanceRadius はシンボルが衝突してはならないタイルの範囲です。MoveRadius の 2 倍以上が必要です。
	AvoidanceRadius int
	MoveRadius      int
	BubbleRadius    int

	// Targets は同時に盤面に置かれる得点タイルの数です。
	Targets       int
	TargetScore   int
	InitialHealth int

	StockpileGain int
	BoostCost     int

	BubbleBase     time.Duration
	BubblePerStock time.Duration
	BubbleMax      time.Duration
	FreezeDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		AvoidanceRadius: 2,
		MoveRadius:      1,
		BubbleRadius:    2,
		Targets:         3,
		TargetScore:     1,
		InitialHealth:   1,
		StockpileGain:   1,
		BoostCost:       3,
		BubbleBase:      500 * time.Millisecond,
		BubblePerStock:  250 * time.Millisecond,
		BubbleMax:       4 * time.Second,
		FreezeDuration:  3 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MoveRadius < 1:
		return &floor.ConfigurationError{Reason: fmt.Sprintf("move radius %d must be positive", c.MoveRadius)}
	case c.AvoidanceRadius < 2*c.MoveRadius:
		return &floor.ConfigurationError{Reason: fmt.Sprintf(
			"avoidance radius %d must be at least twice the move radius %d", c.AvoidanceRadius, c.MoveRadius)}
	case c.BubbleRadius < 0 || c.Targets < 0 || c.TargetScore < 0 || c.StockpileGain < 0 || c.BoostCost < 0:
		return &floor.ConfigurationError{Reason: "negative tunable"}
	case c.InitialHealth < 1:
		return &floor.ConfigurationError{Reason: "initial health must be positive"}
	case c.BubbleBase < 0 || c.BubblePerStock < 0 || c.BubbleMax < c.BubbleBase || c.FreezeDuration < 0:
		return &floor.ConfigurationError{Reason: "invalid bubble durations"}
	}
	return nil
}

// bubbleDuration はストックから計算したバブルの持続時間と、上限で切り詰めたかどうかを返します。
func (c Config) bubbleDuration(stockpile int) (time.Duration, bool) {
	d := c.BubbleBase + time.Duration(stockpile)*c.BubblePerStock
	if d >= c.BubbleMax {
		return c.BubbleMax, true
	}
	return d, false
}
