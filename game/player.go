package game

import (
	"fmt"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

type PlayerID = statechange.PlayerID

// Player はプレイヤーごとの可変状態です。Game だけが所有し、他のプレイヤーを直接参照しません。
type Player struct {
	ID   PlayerID
	Name string
	Team int

	tile  *floor.Tile
	bench *floor.Tile

	Score     int
	Stockpile int
	Health    int

	// LastAccepted は最後に受理された要求番号です。受理ごとにちょうど 1 進みます。
	LastAccepted    int
	RequestInFlight bool

	IsDowned   bool
	IsBubbling bool
	IsFrozen   bool
}

func newPlayer(id PlayerID, name string, team, health int) *Player {
	return &Player{
		ID:     id,
		Name:   name,
		Team:   team,
		bench:  floor.NewTile(floor.BenchPoint),
		Health: health,
	}
}

func (p *Player) Tile() *floor.Tile  { return p.tile }
func (p *Player) Bench() *floor.Tile { return p.bench }

// Coord は現在地の座標です。ベンチにいる場合は floor.BenchPoint です。
func (p *Player) Coord() floor.Point {
	if p.tile == nil {
		return floor.BenchPoint
	}
	return p.tile.Point()
}

func (p *Player) OnBench() bool {
	return p.tile == nil || p.tile == p.bench
}

// BeginRequest は Idle から RequestPending へ遷移します。
func (p *Player) BeginRequest() error {
	if p.RequestInFlight {
		return fmt.Errorf("%w: player %d already has a request in flight", ErrSequenceViolation, p.ID)
	}
	p.RequestInFlight = true
	return nil
}

func (p *Player) EndRequest() {
	p.RequestInFlight = false
}

// IsLocked はバブル中か凍結中で要求を受け付けられない状態です。
func (p *Player) IsLocked() bool {
	return p.IsBubbling || p.IsFrozen
}

func (p *Player) State() statechange.PlayerState {
	return statechange.PlayerState{
		ID:              p.ID,
		Name:            p.Name,
		Team:            p.Team,
		Coord:           p.Coord(),
		Score:           p.Score,
		Stockpile:       p.Stockpile,
		Health:          p.Health,
		LastAccepted:    p.LastAccepted,
		IsDowned:        p.IsDowned,
		IsBubbling:      p.IsBubbling,
		IsFrozen:        p.IsFrozen,
		BenchGeneration: p.bench.Generation,
	}
}

// applyState はスナップショットや参加イベントの値を反映します。位置は呼び出し側が設定します。
func (p *Player) applyState(st statechange.PlayerState) {
	p.Name = st.Name
	p.Team = st.Team
	p.Score = st.Score
	p.Stockpile = st.Stockpile
	p.Health = st.Health
	p.LastAccepted = st.LastAccepted
	p.IsDowned = st.IsDowned
	p.IsBubbling = st.IsBubbling
	p.IsFrozen = st.IsFrozen
	if st.BenchGeneration > p.bench.Generation {
		p.bench.Generation = st.BenchGeneration
	}
}

func (p *Player) reset(health int) {
	p.Score = 0
	p.Stockpile = 0
	p.Health = health
	p.RequestInFlight = false
	p.IsDowned = false
	p.IsBubbling = false
	p.IsFrozen = false
}
