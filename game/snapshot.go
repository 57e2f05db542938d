package game

import (
	"errors"
	"fmt"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

// Snapshot は全タイルと全プレイヤーの現在の状態を返します。
func (g *Game) Snapshot() *statechange.Snapshot {
	dim := g.grid.Dimensions()
	snap := &statechange.Snapshot{
		System:      g.grid.System(),
		Width:       dim.Width,
		Height:      dim.Height,
		NextEventID: g.nextEventID,
	}
	g.grid.ForEachTile(func(t *floor.Tile) {
		snap.Tiles = append(snap.Tiles, tileChange(t))
	})
	for _, p := range g.Players() {
		snap.Players = append(snap.Players, p.State())
	}
	return snap
}

// ApplySnapshot はビューアの状態をスナップショットで置き換えます。
// 操作者の処理中の要求は破棄されます。
func (g *Game) ApplySnapshot(snap *statechange.Snapshot) error {
	if g.role != RoleViewer {
		return errors.New("game: snapshots are applied to viewers only")
	}
	dim := g.grid.Dimensions()
	if snap.System != g.grid.System() || snap.Width != dim.Width || snap.Height != dim.Height {
		return fmt.Errorf("%w: snapshot grid %s %dx%d does not match %s %dx%d", ErrProtocolViolation,
			snap.System, snap.Width, snap.Height, g.grid.System(), dim.Width, dim.Height)
	}

	for _, ch := range snap.Tiles {
		t, err := g.grid.TileAt(ch.Coord)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		t.Generation = ch.Generation
		t.Occupant = int(ch.Occupant)
		t.Char, t.Seq = ch.Char, ch.Seq
		t.ScoreValue = ch.ScoreValue
		g.sink.OnTileChanged(*t)
	}

	g.players = make(map[PlayerID]*Player, len(snap.Players))
	for _, st := range snap.Players {
		p := newPlayer(st.ID, st.Name, st.Team, st.Health)
		p.applyState(st)
		if st.Coord.IsBench() {
			p.bench.Occupant = int(st.ID)
			p.tile = p.bench
		} else {
			t, err := g.grid.TileAt(st.Coord)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
			}
			p.tile = t
		}
		g.players[p.ID] = p
		g.sink.OnPlayerStatusChanged(p.State())
	}
	g.log.Reset()
	g.nextEventID = snap.NextEventID
	if g.refresher != nil {
		g.refresher.RefreshSeqBuffer()
	}
	return nil
}
