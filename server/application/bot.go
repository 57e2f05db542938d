package application

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

// botBubbleStock はボットがバブルを使い始めるストックの量です。
const botBubbleStock = 3

// botDriver はサーバー側で動くプレイヤーです。ID は負の値で、人間と同じ処理経路で要求を出します。
type botDriver struct {
	game  *game.Game
	rng   *rand.Rand
	ids   []game.PlayerID
	every int
	ticks int
}

func newBotDriver(g *game.Game, rng *rand.Rand, n, every int) (*botDriver, error) {
	d := &botDriver{game: g, rng: rng, every: max(every, 1)}
	for i := 1; i <= n; i++ {
		id := game.PlayerID(-i)
		if _, err := g.AddPlayer(id, fmt.Sprintf("bot-%d", i), 0); err != nil {
			return nil, err
		}
		d.ids = append(d.ids, id)
	}
	return d, nil
}

// tick は every ティックごとに全ボットを 1 手ずつ動かします。
func (d *botDriver) tick(ctx context.Context, app *GameApplication) {
	d.ticks++
	if d.ticks%d.every != 0 {
		return
	}
	for _, id := range d.ids {
		d.act(ctx, app, id)
	}
}

func (d *botDriver) act(ctx context.Context, app *GameApplication, id game.PlayerID) {
	p, ok := d.game.Player(id)
	if !ok || p.IsLocked() || p.RequestInFlight {
		return
	}
	if d.shouldBubble(p) {
		req, err := d.game.MakeBubbleRequest(id)
		if err == nil {
			_ = app.submitBubble(ctx, "", req)
		}
		return
	}
	dest, ok := d.chooseDest(p)
	if !ok {
		return
	}
	moveType := statechange.MoveNormal
	if t, err := d.game.Grid().TileAt(dest); err == nil && t.ScoreValue > 0 && p.Stockpile >= d.game.Config().BoostCost {
		moveType = statechange.MoveBoost
	}
	req, err := d.game.MakeMoveRequest(id, dest, moveType)
	if err != nil {
		return
	}
	_ = app.submitMove(ctx, "", req)
}

// shouldBubble は十分なストックがあり、倒せる敵が範囲内にいる場合に真です。
func (d *botDriver) shouldBubble(p *game.Player) bool {
	if p.Stockpile < botBubbleStock || p.IsDowned || p.OnBench() {
		return false
	}
	for _, q := range d.game.Players() {
		if q.ID == p.ID || q.OnBench() || q.IsDowned || (p.Team != 0 && q.Team == p.Team) {
			continue
		}
		if d.game.Grid().Distance(p.Coord(), q.Coord()) <= d.game.Config().BubbleRadius {
			return true
		}
	}
	return false
}

// chooseDest はバブル中の敵から逃げ、いなければ最寄りの得点タイルに向かいます。
func (d *botDriver) chooseDest(p *game.Player) (floor.Point, bool) {
	grid := d.game.Grid()
	if p.OnBench() {
		return d.randomFree()
	}
	here := p.Coord()
	var dest floor.Point
	if threat, ok := d.nearestBubbler(p); ok {
		dest = floor.AwayFrom(grid, here, threat)
	} else if target, ok := d.nearestTarget(here); ok {
		dest = grid.StepToward(here, grid.Lift(target))
	} else {
		dest = here
	}
	if t, err := grid.TileAt(dest); err == nil && dest != here && !t.IsOccupied() {
		return dest, true
	}
	return d.randomNeighbor(here)
}

func (d *botDriver) nearestBubbler(p *game.Player) (floor.Point, bool) {
	grid := d.game.Grid()
	reach := d.game.Config().BubbleRadius + 1
	best, bestDist := floor.Point{}, -1
	for _, q := range d.game.Players() {
		if q.ID == p.ID || !q.IsBubbling || q.OnBench() || (p.Team != 0 && q.Team == p.Team) {
			continue
		}
		if dist := grid.Distance(p.Coord(), q.Coord()); dist <= reach && (bestDist < 0 || dist < bestDist) {
			best, bestDist = q.Coord(), dist
		}
	}
	return best, bestDist >= 0
}

func (d *botDriver) nearestTarget(from floor.Point) (floor.Point, bool) {
	grid := d.game.Grid()
	best, bestDist := floor.Point{}, -1
	grid.ForEachTile(func(t *floor.Tile) {
		if t.ScoreValue == 0 || t.IsOccupied() {
			return
		}
		if dist := grid.Distance(from, t.Point()); bestDist < 0 || dist < bestDist {
			best, bestDist = t.Point(), dist
		}
	})
	return best, bestDist >= 0
}

func (d *botDriver) randomNeighbor(from floor.Point) (floor.Point, bool) {
	neighbors, err := d.game.Grid().Neighbors(from, d.game.Config().MoveRadius)
	if err != nil {
		return floor.Point{}, false
	}
	free := make([]floor.Point, 0, len(neighbors))
	for _, t := range neighbors {
		if !t.IsOccupied() {
			free = append(free, t.Point())
		}
	}
	if len(free) == 0 {
		return floor.Point{}, false
	}
	return free[d.rng.IntN(len(free))], true
}

func (d *botDriver) randomFree() (floor.Point, bool) {
	grid := d.game.Grid()
	for i := 0; i < 16; i++ {
		p := grid.RandomPoint(d.rng)
		if t, err := grid.TileAt(p); err == nil && !t.IsOccupied() {
			return p, true
		}
	}
	return floor.Point{}, false
}
