package game

import (
	"fmt"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

type delivery uint8

const (
	deliveryInOrder delivery = iota + 1
	// deliveryStale は既に新しい情報を適用済みの遅れた配送です。タイルの世代の追い付きだけを行います。
	deliveryStale
)

// classify は要求番号の差 (lag) から配送の種類を判定します。
// ローカルプレイヤーの要求番号が 1 以外の差を持つのは致命的な異常です。
func (g *Game) classify(p *Player, playerNow, eventID int, destAhead bool) (delivery, error) {
	lag := playerNow - p.LastAccepted
	if !g.isLocal(p) {
		// リモートプレイヤーの欠落分 (lag > 1) は世代の追い付きだけでなく通常の適用を行う。
		// 位置と要求番号は最新のイベントに揃うが、取りこぼしたイベントで空いたタイルは
		// 別のイベントが書き換えるまで古い占有者を表示したままになる。
		if destAhead || lag < 1 {
			return deliveryStale, nil
		}
		return deliveryInOrder, nil
	}
	switch {
	case lag == 1 && destAhead:
		return deliveryStale, nil
	case lag == 1:
		return deliveryInOrder, nil
	case lag == 0 && g.log.Has(eventID):
		return 0, fmt.Errorf("%w: event %d replayed for player %d", ErrDuplicateEvent, eventID, p.ID)
	default:
		return 0, fmt.Errorf("%w: player %d lag %d on event %d", ErrProtocolViolation, p.ID, lag, eventID)
	}
}

// ExecuteMove はレスポンスをこのレプリカに適用します。全てのレプリカで実行されます。
// 同じタイルに対しては世代で単調なので、遅れた配送を何度適用しても結果は変わりません。
func (g *Game) ExecuteMove(res *statechange.MoveResponse) error {
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
	dest, err := g.tileFor(p, res.Dest.Coord)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	kind, err := g.classify(p, res.PlayerNow, eventID, dest.Generation >= res.Dest.Generation)
	if err != nil {
		return err
	}
	g.observeEvent(eventID)

	changes := append([]statechange.TileChange{res.Dest}, res.Tiles...)
	if kind == deliveryStale {
		for _, ch := range changes {
			if _, err := g.applyTileChange(p, ch); err != nil {
				return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
			}
		}
		return nil
	}

	if err := g.log.Record(eventID); err != nil {
		return err
	}
	from := p.Coord()
	for _, ch := range changes {
		if _, err := g.applyTileChange(p, ch); err != nil {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
	}
	p.tile = dest
	p.Score = res.PlayerScore
	p.Stockpile = res.PlayerStockpile
	p.LastAccepted = res.PlayerNow
	p.EndRequest()

	g.sink.OnPlayerMoved(p.ID, from, p.Coord())
	g.sink.OnPlayerStatusChanged(p.State())
	g.refreshIfNear(p, changes)
	return nil
}

// refreshIfNear は操作者が動いたか、操作者の移動範囲内のシンボルが変わった場合に入力バッファを更新させます。
func (g *Game) refreshIfNear(mover *Player, changes []statechange.TileChange) {
	if g.refresher == nil || g.operator == statechange.NoPlayer {
		return
	}
	op, ok := g.players[g.operator]
	if !ok {
		return
	}
	if mover.ID == op.ID {
		g.refresher.RefreshSeqBuffer()
		return
	}
	if op.OnBench() {
		return
	}
	for _, ch := range changes {
		if ch.Coord.IsBench() {
			continue
		}
		if g.grid.Distance(op.Coord(), ch.Coord) <= g.cfg.MoveRadius {
			g.refresher.RefreshSeqBuffer()
			return
		}
	}
}

// OperatorNeighbors は操作者が移動できる空きタイルを返します。
func (g *Game) OperatorNeighbors() []floor.Tile {
	op, ok := g.players[g.operator]
	if !ok || op.OnBench() {
		return nil
	}
	neighbors, err := g.grid.Neighbors(op.Coord(), g.cfg.MoveRadius)
	if err != nil {
		return nil
	}
	out := make([]floor.Tile, 0, len(neighbors))
	for _, t := range neighbors {
		if !t.IsOccupied() {
			out = append(out, *t)
		}
	}
	return out
}
