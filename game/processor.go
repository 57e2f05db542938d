package game

import (
	"fmt"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

// MakeMoveRequest はプレイヤー id の現在の認識から移動要求を作ります。
// ビューアでは要求中の状態に遷移し、マネージャでは処理中の要求がないことだけを確認します。
func (g *Game) MakeMoveRequest(id PlayerID, dest floor.Point, moveType statechange.MoveType) (*statechange.MoveRequest, error) {
	p, ok := g.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	t, err := g.tileFor(p, dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := g.beginLocalRequest(p); err != nil {
		return nil, err
	}
	return &statechange.MoveRequest{
		PlayerID:       id,
		PlayerNow:      p.LastAccepted,
		MoveType:       moveType,
		Dest:           dest,
		DestGeneration: t.Generation,
	}, nil
}

func (g *Game) beginLocalRequest(p *Player) error {
	if g.role == RoleViewer {
		return p.BeginRequest()
	}
	if p.RequestInFlight {
		return fmt.Errorf("%w: player %d already has a request in flight", ErrSequenceViolation, p.ID)
	}
	return nil
}

// ProcessMoveRequest は移動要求を検証し、受理ならイベント ID を割り当てたレスポンスを返します。
// 検証からイベント ID の割り当てまでは中断せずに実行され、レスポンスはこのレプリカにも適用済みです。
// 占有中や世代の食い違いなど想定内の拒否はエラーではなく、EventID のないレスポンスになります。
func (g *Game) ProcessMoveRequest(req *statechange.MoveRequest) (*statechange.MoveResponse, error) {
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

	if p.IsLocked() {
		return g.rejectMove(req)
	}
	if req.PlayerNow != p.LastAccepted {
		p.EndRequest()
		return nil, fmt.Errorf("%w: player %d claims %d, accepted %d",
			ErrSequenceViolation, p.ID, req.PlayerNow, p.LastAccepted)
	}
	dest, err := g.tileFor(p, req.Dest)
	if err != nil {
		p.EndRequest()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	src := p.tile
	if !g.moveAllowed(p, req, src, dest) {
		return g.rejectMove(req)
	}

	res, err := g.acceptMove(p, req, src, dest)
	if err != nil {
		p.EndRequest()
		return nil, err
	}
	if err := g.ExecuteMove(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (g *Game) moveAllowed(p *Player, req *statechange.MoveRequest, src, dest *floor.Tile) bool {
	switch {
	case dest == src:
		return false
	case dest.IsOccupied():
		return false
	case dest.Generation != req.DestGeneration:
		return false
	case req.MoveType == statechange.MoveBoost && p.Stockpile < g.cfg.BoostCost:
		return false
	}
	if src == p.bench || dest == p.bench {
		return true
	}
	return g.grid.Distance(src.Point(), dest.Point()) <= g.cfg.MoveRadius
}

func (g *Game) rejectMove(req *statechange.MoveRequest) (*statechange.MoveResponse, error) {
	res := &statechange.MoveResponse{
		PlayerID:  req.PlayerID,
		PlayerNow: req.PlayerNow,
		MoveType:  req.MoveType,
		Dest:      statechange.TileChange{Coord: req.Dest},
	}
	if err := g.ExecuteMove(res); err != nil {
		return nil, err
	}
	return res, nil
}

// acceptMove は受理した移動の派生効果を計算します。状態は変更せず、言語のヒット数だけが進みます。
func (g *Game) acceptMove(p *Player, req *statechange.MoveRequest, src, dest *floor.Tile) (*statechange.MoveResponse, error) {
	gained := dest.ScoreValue
	stock := p.Stockpile
	if req.MoveType == statechange.MoveBoost {
		gained *= 2
		stock -= g.cfg.BoostCost
	}
	if p.IsDowned {
		gained = 0
	}
	if _, clamped := g.cfg.bubbleDuration(stock); !clamped {
		stock += g.cfg.StockpileGain
	}

	pending := make(map[floor.Point]string)

	destCh := tileChange(dest)
	destCh.Generation++
	destCh.Occupant = p.ID
	destCh.ScoreValue = 0
	if dest != p.bench {
		pick, err := g.tree.ChooseNonConflicting(g.avoidSeqs(dest.Point(), pending))
		if err != nil {
			return nil, err
		}
		destCh.Char, destCh.Seq = pick.Char, pick.Seq
		pending[dest.Point()] = pick.Seq
	} else {
		destCh.Coord = floor.BenchPoint
	}

	srcCh := tileChange(src)
	srcCh.Generation++
	srcCh.Occupant = statechange.NoPlayer
	if src != p.bench {
		pick, err := g.tree.ChooseNonConflicting(g.avoidSeqs(src.Point(), pending))
		if err != nil {
			return nil, err
		}
		srcCh.Char, srcCh.Seq = pick.Char, pick.Seq
		pending[src.Point()] = pick.Seq
	} else {
		srcCh.Coord = floor.BenchPoint
	}
	tiles := []statechange.TileChange{srcCh}

	// 取られた得点タイルは同じイベントの中で別の空きタイルへ移す
	if dest.ScoreValue > 0 && dest != p.bench {
		exclude := map[floor.Point]bool{dest.Point(): true, src.Point(): true}
		if t := g.findFreeTile(exclude); t != nil {
			ch := tileChange(t)
			ch.Generation++
			ch.ScoreValue = dest.ScoreValue
			tiles = append(tiles, ch)
		}
	}

	eventID := g.allocEventID()
	return &statechange.MoveResponse{
		EventID:         &eventID,
		PlayerID:        p.ID,
		PlayerNow:       p.LastAccepted + 1,
		MoveType:        req.MoveType,
		Dest:            destCh,
		Tiles:           tiles,
		PlayerScore:     p.Score + gained,
		PlayerStockpile: stock,
	}, nil
}
