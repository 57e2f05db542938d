package application

import (
	"cmp"
	"slices"
	"time"

	"github.com/touka-aoi/snakey/game"
)

type scheduled struct {
	handle   game.TimerHandle
	deadline time.Time
	fn       func()
}

// TickScheduler は game.Timer の実装です。コールバックはルームのティックで Fire したときに実行されるので、
// ゲーム状態を触るのは常にルームのゴルーチンです。
type TickScheduler struct {
	now     func() time.Time
	next    game.TimerHandle
	pending map[game.TimerHandle]scheduled
}

func NewTickScheduler(now func() time.Time) *TickScheduler {
	if now == nil {
		now = time.Now
	}
	return &TickScheduler{now: now, pending: make(map[game.TimerHandle]scheduled)}
}

func (s *TickScheduler) Schedule(delay time.Duration, fn func()) game.TimerHandle {
	s.next++
	s.pending[s.next] = scheduled{handle: s.next, deadline: s.now().Add(delay), fn: fn}
	return s.next
}

func (s *TickScheduler) Cancel(h game.TimerHandle) {
	delete(s.pending, h)
}

func (s *TickScheduler) Len() int {
	return len(s.pending)
}

// Fire は期限を過ぎたコールバックを期限順に実行し、実行した数を返します。
// コールバック中に登録されたタイマーは次の Fire で評価されます。
func (s *TickScheduler) Fire() int {
	now := s.now()
	var due []scheduled
	for _, sc := range s.pending {
		if !sc.deadline.After(now) {
			due = append(due, sc)
		}
	}
	slices.SortFunc(due, func(a, b scheduled) int {
		if c := a.deadline.Compare(b.deadline); c != 0 {
			return c
		}
		return cmp.Compare(a.handle, b.handle)
	})
	fired := 0
	for _, sc := range due {
		// 先に実行したコールバックが取り消したものは飛ばす
		if _, ok := s.pending[sc.handle]; !ok {
			continue
		}
		delete(s.pending, sc.handle)
		sc.fn()
		fired++
	}
	return fired
}

var _ game.Timer = (*TickScheduler)(nil)
