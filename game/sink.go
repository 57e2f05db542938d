package game

import (
	"time"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

//go:generate go tool mockgen -destination=./mocks/sink_mock.go -package=mocks . Sink

// Sink は描画側への読み取り専用の通知先です。Game は通知の完了を待ちません。
type Sink interface {
	OnTileChanged(tile floor.Tile)
	OnPlayerMoved(id PlayerID, from, to floor.Point)
	OnRequestRejected(id PlayerID)
	OnPlayerStatusChanged(state statechange.PlayerState)
}

// NopSink は何もしない Sink です。ヘッドレスなサーバーとテストで使います。
type NopSink struct{}

func (NopSink) OnTileChanged(floor.Tile)                         {}
func (NopSink) OnPlayerMoved(PlayerID, floor.Point, floor.Point) {}
func (NopSink) OnRequestRejected(PlayerID)                       {}
func (NopSink) OnPlayerStatusChanged(statechange.PlayerState)    {}

// SeqBufferRefresher は入力中のシーケンスバッファを持つ側です。
// 操作者の周囲のシンボルが変わったときに呼ばれます。
type SeqBufferRefresher interface {
	RefreshSeqBuffer()
}

type TimerHandle uint64

// Timer はバブルや凍結の期限に使うタイマーです。
// コールバックは一度だけ呼ばれ、独立したタイマー間の順序は保証されません。
type Timer interface {
	Schedule(delay time.Duration, fn func()) TimerHandle
	Cancel(h TimerHandle)
}

// Publisher はマネージャ自身が起こしたイベントの送り先です。
type Publisher interface {
	PublishEvent(sub statechange.GameSubType, ev any)
}

type nopTimer struct{}

func (nopTimer) Schedule(time.Duration, func()) TimerHandle { return 0 }
func (nopTimer) Cancel(TimerHandle)                         {}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(statechange.GameSubType, any) {}
