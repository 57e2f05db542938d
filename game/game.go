// Package game はグリッド、プレイヤー、イベントログを所有するゲーム状態コンテナです。
// マネージャは要求を検証してイベントを発行し、全てのレプリカが同じイベントを適用して収束します。
//
// Game はゴルーチンセーフではありません。1 つのゴルーチンから操作するか、外側で排他してください。
package game

import (
	"math/rand/v2"
	"slices"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/lang"
	"github.com/touka-aoi/snakey/game/statechange"
)

type Role uint8

const (
	RoleManager Role = iota + 1
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleManager:
		return "manager"
	case RoleViewer:
		return "viewer"
	default:
		return "unknown"
	}
}

type Game struct {
	role Role
	cfg  Config
	grid floor.Grid
	tree *lang.Tree

	players map[PlayerID]*Player
	log     EventLog
	// nextEventID はマネージャでは次に発行する ID、ビューアでは観測した最大 ID + 1 です。
	nextEventID int

	// operator はこのレプリカを操作しているローカルプレイヤーです。
	operator PlayerID

	sink      Sink
	refresher SeqBufferRefresher
	timer     Timer
	publisher Publisher
	rng       *rand.Rand

	bubbles map[PlayerID]TimerHandle
	freezes map[PlayerID]TimerHandle
}

type Option func(*Game)

func WithSink(s Sink) Option {
	return func(g *Game) { g.sink = s }
}

func WithRefresher(r SeqBufferRefresher) Option {
	return func(g *Game) { g.refresher = r }
}

func WithTimer(t Timer) Option {
	return func(g *Game) { g.timer = t }
}

func WithPublisher(p Publisher) Option {
	return func(g *Game) { g.publisher = p }
}

func WithRand(r *rand.Rand) Option {
	return func(g *Game) { g.rng = r }
}

// WithOperator はローカルで操作するプレイヤーを指定します。
// そのプレイヤーの要求番号の異常は致命的なエラーとして扱われます。
func WithOperator(id PlayerID) Option {
	return func(g *Game) { g.operator = id }
}

func newGame(role Role, grid floor.Grid, cfg Config, opts []Option) *Game {
	g := &Game{
		role:      role,
		cfg:       cfg,
		grid:      grid,
		players:   make(map[PlayerID]*Player),
		sink:      NopSink{},
		timer:     nopTimer{},
		publisher: nopPublisher{},
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		bubbles:   make(map[PlayerID]TimerHandle),
		freezes:   make(map[PlayerID]TimerHandle),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewManager は権威レプリカを作成し、全タイルにシンボルを割り当てます。
// 言語の葉の数が回避集合の最大サイズに満たない場合は *floor.ConfigurationError を返します。
func NewManager(grid floor.Grid, tree *lang.Tree, cfg Config, opts ...Option) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := floor.CheckAmbiguity(grid, cfg.AvoidanceRadius, tree.LeafCount()); err != nil {
		return nil, err
	}
	g := newGame(RoleManager, grid, cfg, opts)
	g.tree = tree
	if err := g.Reset(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewViewer は空のビューアレプリカを作成します。状態はスナップショットで埋めます。
func NewViewer(grid floor.Grid, cfg Config, opts ...Option) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newGame(RoleViewer, grid, cfg, opts), nil
}

// NewViewerFromSnapshot はスナップショットからグリッドを構築してビューアを作成します。
func NewViewerFromSnapshot(reg floor.Registry, snap *statechange.Snapshot, cfg Config, opts ...Option) (*Game, error) {
	grid, err := reg.NewGrid(snap.System, floor.Dimensions{Width: snap.Width, Height: snap.Height})
	if err != nil {
		return nil, err
	}
	g, err := NewViewer(grid, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := g.ApplySnapshot(snap); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Game) Role() Role            { return g.role }
func (g *Game) Config() Config        { return g.cfg }
func (g *Game) Grid() floor.Grid      { return g.grid }
func (g *Game) Operator() PlayerID    { return g.operator }
func (g *Game) NextEventID() int      { return g.nextEventID }
func (g *Game) EventSeen(id int) bool { return g.log.Has(id) }

func (g *Game) Player(id PlayerID) (*Player, bool) {
	p, ok := g.players[id]
	return p, ok
}

// Players は ID 順に並べたプレイヤーを返します。
func (g *Game) Players() []*Player {
	ids := make([]PlayerID, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.players[id])
	}
	return out
}

// Reset は言語のヒット数を初期化し、全タイルのシンボルと得点タイルを引き直して全員を再配置します。
// イベント ID はコンテナの生存期間中に再利用しないため、カウンタとログは維持します。
func (g *Game) Reset() error {
	if g.role != RoleManager {
		return ErrNotManager
	}
	g.cancelTimers()
	g.tree.Reset()
	g.grid.Reset()

	for _, p := range g.Players() {
		p.reset(g.cfg.InitialHealth)
		p.bench.Occupant = 0
		p.bench.Generation++
		p.tile = nil
		tile := g.findFreeTile(nil)
		if tile == nil {
			tile = p.bench
		}
		tile.Occupant = int(p.ID)
		p.tile = tile
	}
	for i := 0; i < g.cfg.Targets; i++ {
		if t := g.findFreeTile(nil); t != nil {
			t.ScoreValue = g.cfg.TargetScore
		}
	}

	var err error
	g.grid.ForEachTile(func(t *floor.Tile) {
		if err != nil {
			return
		}
		var pick lang.CharSeq
		pick, err = g.tree.ChooseNonConflicting(g.avoidSeqs(t.Point(), nil))
		if err != nil {
			return
		}
		t.Char, t.Seq = pick.Char, pick.Seq
		t.Generation++
	})
	if err != nil {
		return err
	}

	g.grid.ForEachTile(func(t *floor.Tile) { g.sink.OnTileChanged(*t) })
	for _, p := range g.Players() {
		g.sink.OnPlayerStatusChanged(p.State())
	}
	return nil
}

// cancelTimers は予約済みのバブルと凍結解除を全て取り消します。
func (g *Game) cancelTimers() {
	for id, h := range g.bubbles {
		g.timer.Cancel(h)
		delete(g.bubbles, id)
	}
	for id, h := range g.freezes {
		g.timer.Cancel(h)
		delete(g.freezes, id)
	}
}

// cancelPlayerTimers はプレイヤー id の予約を取り消します。
func (g *Game) cancelPlayerTimers(id PlayerID) {
	if h, ok := g.bubbles[id]; ok {
		g.timer.Cancel(h)
		delete(g.bubbles, id)
	}
	if h, ok := g.freezes[id]; ok {
		g.timer.Cancel(h)
		delete(g.freezes, id)
	}
}

// avoidSeqs は p から回避半径以内にあるタイルの現在のシーケンスを集めます。
// pending に値があるタイルはその値を使います。
func (g *Game) avoidSeqs(p floor.Point, pending map[floor.Point]string) []string {
	neighbors, err := g.grid.Neighbors(p, g.cfg.AvoidanceRadius)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		seq := n.Seq
		if s, ok := pending[n.Point()]; ok {
			seq = s
		}
		if seq != "" {
			out = append(out, seq)
		}
	}
	return out
}

// findFreeTile は誰もいない得点なしのタイルを乱数で探します。exclude に含まれるタイルは選びません。
func (g *Game) findFreeTile(exclude map[floor.Point]bool) *floor.Tile {
	free := func(t *floor.Tile) bool {
		return !t.IsOccupied() && t.ScoreValue == 0 && !exclude[t.Point()]
	}
	for i := 0; i < 32; i++ {
		t, err := g.grid.TileAt(g.grid.RandomPoint(g.rng))
		if err == nil && free(t) {
			return t
		}
	}
	var found *floor.Tile
	g.grid.ForEachTile(func(t *floor.Tile) {
		if found == nil && free(t) {
			found = t
		}
	})
	return found
}

// tileFor は変更や要求の座標を実際のタイルに解決します。ベンチはプレイヤーに属します。
func (g *Game) tileFor(p *Player, coord floor.Point) (*floor.Tile, error) {
	if coord.IsBench() {
		return p.bench, nil
	}
	return g.grid.TileAt(coord)
}

func (g *Game) isLocal(p *Player) bool {
	return g.role == RoleManager || (g.operator != statechange.NoPlayer && p.ID == g.operator)
}

func (g *Game) observeEvent(id int) {
	if id >= g.nextEventID {
		g.nextEventID = id + 1
	}
}

func (g *Game) allocEventID() int {
	id := g.nextEventID
	g.nextEventID++
	return id
}

func tileChange(t *floor.Tile) statechange.TileChange {
	return statechange.TileChange{
		Coord:      t.Point(),
		Generation: t.Generation,
		Occupant:   PlayerID(t.Occupant),
		Char:       t.Char,
		Seq:        t.Seq,
		ScoreValue: t.ScoreValue,
	}
}

// applyTileChange は世代が進んでいる場合だけ変更を反映します。何度適用しても結果は同じです。
func (g *Game) applyTileChange(p *Player, ch statechange.TileChange) (bool, error) {
	t, err := g.tileFor(p, ch.Coord)
	if err != nil {
		return false, err
	}
	if t.Generation >= ch.Generation {
		return false, nil
	}
	t.Generation = ch.Generation
	t.Occupant = int(ch.Occupant)
	t.Char = ch.Char
	t.Seq = ch.Seq
	t.ScoreValue = ch.ScoreValue
	g.sink.OnTileChanged(*t)
	return true, nil
}
