package game

import (
	"fmt"

	"github.com/touka-aoi/snakey/game/statechange"
)

// MakeBubbleRequest はプレイヤー id のバブル発動要求を作ります。
func (g *Game) MakeBubbleRequest(id PlayerID) (*statechange.BubbleRequest, error) {
	p, ok := g.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	if err := g.beginLocalRequest(p); err != nil {
		return nil, err
	}
	return &statechange.BubbleRequest{PlayerID: id, PlayerNow: p.LastAccepted}, nil
}

// ProcessBubbleRequest はバブルを発動させ、持続時間の経過後に弾けるようタイマーを設定します。
// 持続時間はストックから計算され、ストックは 0 に戻ります。
func (g *Game) ProcessBubbleRequest(req *statechange.BubbleRequest) (*statechange.BubbleResponse, error) {
	if g.role != RoleManager {
		return nil, ErrNotManager
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, ok := g.players[req.PlayerID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, req.PlayerID)
	}
	if err := p.BeginRequest(); err != nil {
		return nil, err
	}
	if p.IsLocked() || p.IsDowned || p.OnBench() {
		res := &statechange.BubbleResponse{PlayerID: p.ID, PlayerNow: req.PlayerNow, PlayerStockpile: p.Stockpile}
		if err := g.ExecuteBubble(res); err != nil {
			return nil, err
		}
		return res, nil
	}
	if req.PlayerNow != p.LastAccepted {
		p.EndRequest()
		return nil, fmt.Errorf("%w: player %d claims %d, accepted %d",
			ErrSequenceViolation, p.ID, req.PlayerNow, p.LastAccepted)
	}

	duration, clamped := g.cfg.bubbleDuration(p.Stockpile)
	eventID := g.allocEventID()
	res := &statechange.BubbleResponse{
		EventID:         &eventID,
		PlayerID:        p.ID,
		PlayerNow:       p.LastAccepted + 1,
		DurationMs:      int(duration.Milliseconds()),
		Clamped:         clamped,
		PlayerStockpile: 0,
	}
	if err := g.ExecuteBubble(res); err != nil {
		return nil, err
	}
	id := p.ID
	g.bubbles[id] = g.timer.Schedule(duration, func() { g.popBubble(id) })
	return res, nil
}

// ExecuteBubble はバブル発動のレスポンスを適用します。
func (g *Game) ExecuteBubble(res *statechange.BubbleResponse) error {
	p, ok := g.players[res.PlayerID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, res.PlayerID)
	}
	if res.IsReject() {
		p.EndRequest()
		g.sink.OnRequestRejected(p.ID)
		return nil
	}
	eventID := *res.EventID
	kind, err := g.classify(p, res.PlayerNow, eventID, false)
	if err != nil {
		return err
	}
	g.observeEvent(eventID)
	if kind == deliveryStale {
		return nil
	}
	if err := g.log.Record(eventID); err != nil {
		return err
	}
	p.IsBubbling = true
	p.Stockpile = res.PlayerStockpile
	p.LastAccepted = res.PlayerNow
	p.EndRequest()
	g.sink.OnPlayerStatusChanged(p.State())
	return nil
}

// popBubble はタイマーから呼ばれ、範囲内の敵を倒し、倒れている敵を凍結し、倒れている味方を起こします。
// チーム 0 は全員が敵です。
func (g *Game) popBubble(id PlayerID) {
	delete(g.bubbles, id)
	p, ok := g.players[id]
	if !ok || !p.IsBubbling {
		return
	}
	ev := statechange.BubblePop{BubblerID: id}
	for _, q := range g.Players() {
		if q.ID == id || q.OnBench() || p.OnBench() {
			continue
		}
		if g.grid.Distance(p.Coord(), q.Coord()) > g.cfg.BubbleRadius {
			continue
		}
		enemy := p.Team == 0 || q.Team != p.Team
		switch {
		case enemy && !q.IsDowned:
			ev.Downed = append(ev.Downed, q.ID)
		case enemy && !q.IsFrozen:
			ev.Frozen = append(ev.Frozen, statechange.FreezeEntry{
				PlayerID:   q.ID,
				DurationMs: int(g.cfg.FreezeDuration.Milliseconds()),
			})
		case !enemy && q.IsDowned:
			ev.Raised = append(ev.Raised, q.ID)
		}
	}
	ev.EventID = g.allocEventID()
	g.ApplyBubblePop(&ev)
	g.publisher.PublishEvent(statechange.GameSubTypeBubblePop, &ev)

	for _, f := range ev.Frozen {
		frozen := f.PlayerID
		if h, ok := g.freezes[frozen]; ok {
			g.timer.Cancel(h)
		}
		g.freezes[frozen] = g.timer.Schedule(g.cfg.FreezeDuration, func() { g.unfreeze(frozen) })
	}
}

// ApplyBubblePop はバブルが弾けた結果を適用します。適用済みのイベントは無視します。
func (g *Game) ApplyBubblePop(ev *statechange.BubblePop) {
	if g.log.Has(ev.EventID) {
		return
	}
	_ = g.log.Record(ev.EventID)
	g.observeEvent(ev.EventID)

	g.updateStatus(ev.BubblerID, func(p *Player) { p.IsBubbling = false })
	for _, id := range ev.Downed {
		g.updateStatus(id, func(p *Player) {
			p.IsDowned = true
			p.Health = 0
		})
	}
	for _, f := range ev.Frozen {
		g.updateStatus(f.PlayerID, func(p *Player) { p.IsFrozen = true })
	}
	for _, id := range ev.Raised {
		g.updateStatus(id, func(p *Player) {
			p.IsDowned = false
			p.Health = g.cfg.InitialHealth
		})
	}
}

func (g *Game) unfreeze(id PlayerID) {
	delete(g.freezes, id)
	p, ok := g.players[id]
	if !ok || !p.IsFrozen {
		return
	}
	ev := statechange.Unfreeze{EventID: g.allocEventID(), PlayerID: id}
	g.ApplyUnfreeze(&ev)
	g.publisher.PublishEvent(statechange.GameSubTypeUnfreeze, &ev)
}

// ApplyUnfreeze は凍結の解除を適用します。適用済みのイベントは無視します。
func (g *Game) ApplyUnfreeze(ev *statechange.Unfreeze) {
	if g.log.Has(ev.EventID) {
		return
	}
	_ = g.log.Record(ev.EventID)
	g.observeEvent(ev.EventID)
	g.updateStatus(ev.PlayerID, func(p *Player) { p.IsFrozen = false })
}

func (g *Game) updateStatus(id PlayerID, fn func(p *Player)) {
	p, ok := g.players[id]
	if !ok {
		return
	}
	fn(p)
	g.sink.OnPlayerStatusChanged(p.State())
}
