package game

import (
	"fmt"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

// AddPlayer はプレイヤーを空きタイルに配置します。空きがなければベンチに置きます。
// 参加と退出はイベント ID を消費しません。
func (g *Game) AddPlayer(id PlayerID, name string, team int) (*statechange.PlayerJoin, error) {
	if g.role != RoleManager {
		return nil, ErrNotManager
	}
	if id == statechange.NoPlayer {
		return nil, fmt.Errorf("%w: player id 0 is reserved", ErrInvalidRequest)
	}
	if _, ok := g.players[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrPlayerExists, id)
	}

	p := newPlayer(id, name, team, g.cfg.InitialHealth)
	spawn := g.findFreeTile(nil)
	var spawnCh statechange.TileChange
	if spawn == nil {
		spawnCh = tileChange(p.bench)
		spawnCh.Coord = floor.BenchPoint
	} else {
		spawnCh = tileChange(spawn)
	}
	spawnCh.Generation++
	spawnCh.Occupant = id

	st := p.State()
	st.Coord = spawnCh.Coord
	ev := &statechange.PlayerJoin{Player: st, Spawn: spawnCh}
	if err := g.ApplyPlayerJoin(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ApplyPlayerJoin は参加イベントを適用します。既に参加済みなら状態だけを上書きします。
func (g *Game) ApplyPlayerJoin(ev *statechange.PlayerJoin) error {
	p, ok := g.players[ev.Player.ID]
	if !ok {
		p = newPlayer(ev.Player.ID, ev.Player.Name, ev.Player.Team, ev.Player.Health)
		g.players[p.ID] = p
	}
	p.applyState(ev.Player)
	if _, err := g.applyTileChange(p, ev.Spawn); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	t, err := g.tileFor(p, ev.Spawn.Coord)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if !ok {
		p.tile = t
		g.sink.OnPlayerMoved(p.ID, floor.BenchPoint, p.Coord())
	}
	g.sink.OnPlayerStatusChanged(p.State())
	return nil
}

// RemovePlayer はプレイヤーを退出させ、いたタイルを空けます。
func (g *Game) RemovePlayer(id PlayerID) (*statechange.PlayerLeave, error) {
	if g.role != RoleManager {
		return nil, ErrNotManager
	}
	p, ok := g.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	vacated := tileChange(p.tile)
	if p.OnBench() {
		vacated.Coord = floor.BenchPoint
	}
	vacated.Generation++
	vacated.Occupant = statechange.NoPlayer

	ev := &statechange.PlayerLeave{PlayerID: id, Vacated: vacated}
	if err := g.ApplyPlayerLeave(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ApplyPlayerLeave は退出イベントを適用します。既に退出済みなら何もしません。
func (g *Game) ApplyPlayerLeave(ev *statechange.PlayerLeave) error {
	p, ok := g.players[ev.PlayerID]
	if !ok {
		return nil
	}
	if _, err := g.applyTileChange(p, ev.Vacated); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	g.cancelPlayerTimers(p.ID)
	delete(g.players, p.ID)
	g.sink.OnPlayerMoved(p.ID, p.Coord(), floor.BenchPoint)
	return nil
}
