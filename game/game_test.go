package game

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/lang"
	"github.com/touka-aoi/snakey/game/mocks"
	"github.com/touka-aoi/snakey/game/statechange"
)

type fakeTimer struct {
	next    TimerHandle
	pending map[TimerHandle]func()
	delays  map[TimerHandle]time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{pending: map[TimerHandle]func(){}, delays: map[TimerHandle]time.Duration{}}
}

func (f *fakeTimer) Schedule(d time.Duration, fn func()) TimerHandle {
	f.next++
	f.pending[f.next] = fn
	f.delays[f.next] = d
	return f.next
}

func (f *fakeTimer) Cancel(h TimerHandle) {
	delete(f.pending, h)
	delete(f.delays, h)
}

// fire は現時点で予約されているコールバックだけを予約順に呼びます。
func (f *fakeTimer) fire() {
	handles := make([]TimerHandle, 0, len(f.pending))
	for h := range f.pending {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	for _, h := range handles {
		fn := f.pending[h]
		f.Cancel(h)
		fn()
	}
}

type recordingPublisher struct {
	events []any
}

func (r *recordingPublisher) PublishEvent(_ statechange.GameSubType, ev any) {
	r.events = append(r.events, ev)
}

type countingRefresher struct{ n int }

func (c *countingRefresher) RefreshSeqBuffer() { c.n++ }

func newTestTree(t *testing.T) *lang.Tree {
	t.Helper()
	tree, err := lang.NewTree(lang.EnglishLowercase(), 1, lang.WithRand(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	return tree
}

func newTestManager(t *testing.T, w, h int, cfg Config, opts ...Option) *Game {
	t.Helper()
	grid, err := floor.NewEuclid2Grid(floor.Dimensions{Width: w, Height: h})
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(3, 4)))}, opts...)
	g, err := NewManager(grid, newTestTree(t), cfg, opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return g
}

// newScenario は 3x3 のグリッドに a から i を行優先で並べ、プレイヤー 1 を (1,1) に置きます。
func newScenario(t *testing.T, opts ...Option) (*Game, *Player) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Targets = 0
	g := newTestManager(t, 3, 3, cfg, opts...)

	letters := strings.Split("abcdefghi", "")
	i := 0
	g.grid.ForEachTile(func(tile *floor.Tile) {
		tile.Char, tile.Seq = letters[i], letters[i]
		i++
	})
	p := placePlayer(t, g, 1, floor.Point{X: 1, Y: 1})
	return g, p
}

func placePlayer(t *testing.T, g *Game, id PlayerID, at floor.Point) *Player {
	t.Helper()
	tile, err := g.grid.TileAt(at)
	if err != nil {
		t.Fatal(err)
	}
	p := newPlayer(id, "p", 0, g.cfg.InitialHealth)
	tile.Occupant = int(id)
	p.tile = tile
	g.players[id] = p
	return p
}

func tileAt(t *testing.T, g *Game, x, y int) *floor.Tile {
	t.Helper()
	tile, err := g.grid.TileAt(floor.Point{X: x, Y: y})
	if err != nil {
		t.Fatal(err)
	}
	return tile
}

func assertNoConflicts(t *testing.T, g *Game) {
	t.Helper()
	g.grid.ForEachTile(func(a *floor.Tile) {
		neighbors, _ := g.grid.Neighbors(a.Point(), g.cfg.AvoidanceRadius)
		for _, b := range neighbors {
			if strings.HasPrefix(a.Seq, b.Seq) || strings.HasPrefix(b.Seq, a.Seq) {
				t.Errorf("tiles %s (%q) and %s (%q) conflict", a.Point(), a.Seq, b.Point(), b.Seq)
			}
		}
	})
}

func TestNewManager_AmbiguityThreshold(t *testing.T) {
	grid, _ := floor.NewEuclid2Grid(floor.Dimensions{Width: 5, Height: 5})
	fm := lang.ForwardMap{}
	for _, c := range strings.Split("abcdefghij", "") {
		fm[c] = lang.CharDesc{Seq: c, Weight: 1}
	}
	tree, err := lang.NewTree(fm, 1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewManager(grid, tree, DefaultConfig())
	var cerr *floor.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Errorf("NewManager error = %v, want *floor.ConfigurationError", err)
	}
}

func TestNewManager_AssignsNonConflictingSymbols(t *testing.T) {
	g := newTestManager(t, 6, 5, DefaultConfig())
	assertNoConflicts(t, g)

	scored := 0
	g.grid.ForEachTile(func(tile *floor.Tile) {
		if tile.Seq == "" || tile.Generation != 1 {
			t.Errorf("tile %s = %+v, want symbol at generation 1", tile.Point(), tile)
		}
		if tile.ScoreValue > 0 {
			scored++
		}
	})
	if scored != DefaultConfig().Targets {
		t.Errorf("scored tiles = %d, want %d", scored, DefaultConfig().Targets)
	}
}

func TestProcessMoveRequest_Scenario(t *testing.T) {
	g, p := newScenario(t)
	dest := tileAt(t, g, 1, 0)
	destGen := dest.Generation

	req, err := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
	if err != nil {
		t.Fatalf("MakeMoveRequest failed: %v", err)
	}
	res, err := g.ProcessMoveRequest(req)
	if err != nil {
		t.Fatalf("ProcessMoveRequest failed: %v", err)
	}

	if res.IsReject() || *res.EventID != 0 {
		t.Fatalf("EventID = %v, want 0", res.EventID)
	}
	if res.PlayerNow != 1 {
		t.Errorf("PlayerNow = %d, want 1", res.PlayerNow)
	}
	if res.Dest.Generation != destGen+1 {
		t.Errorf("Dest.Generation = %d, want %d", res.Dest.Generation, destGen+1)
	}
	if len(res.Tiles) != 1 || res.Tiles[0].Coord != (floor.Point{X: 1, Y: 1}) {
		t.Fatalf("Tiles = %+v, want the vacated tile (1, 1)", res.Tiles)
	}

	vacated := tileAt(t, g, 1, 1)
	if vacated.IsOccupied() {
		t.Errorf("vacated tile still occupied by %d", vacated.Occupant)
	}
	neighbors, _ := g.grid.Neighbors(vacated.Point(), 1)
	for _, n := range neighbors {
		if n.Seq == vacated.Seq {
			t.Errorf("vacated seq %q equals neighbour %s", vacated.Seq, n.Point())
		}
	}
	if p.Coord() != (floor.Point{X: 1, Y: 0}) || p.LastAccepted != 1 || p.RequestInFlight {
		t.Errorf("player = %+v, want at (1, 0) with LastAccepted 1 and no request in flight", p.State())
	}
	assertNoConflicts(t, g)
}

func TestProcessMoveRequest_StaleGenerationRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().OnTileChanged(gomock.Any()).AnyTimes()
	sink.EXPECT().OnPlayerStatusChanged(gomock.Any()).AnyTimes()

	g, p := newScenario(t, WithSink(sink))
	before := g.Snapshot()

	sink.EXPECT().OnRequestRejected(p.ID).Times(1)
	req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
	req.DestGeneration--
	res, err := g.ProcessMoveRequest(req)
	if err != nil {
		t.Fatalf("ProcessMoveRequest failed: %v", err)
	}
	if !res.IsReject() {
		t.Errorf("EventID = %d, want reject", *res.EventID)
	}
	if p.RequestInFlight {
		t.Errorf("RequestInFlight = true after reject")
	}
	if after := g.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed on reject")
	}
	if g.NextEventID() != 0 {
		t.Errorf("NextEventID() = %d, want 0", g.NextEventID())
	}
}

func TestProcessMoveRequest_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *Game, p *Player) *statechange.MoveRequest
	}{
		{"occupied", func(g *Game, p *Player) *statechange.MoveRequest {
			placePlayer(t, g, 2, floor.Point{X: 1, Y: 0})
			req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
			return req
		}},
		{"bubbling", func(g *Game, p *Player) *statechange.MoveRequest {
			req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
			p.IsBubbling = true
			return req
		}},
		{"not adjacent", func(g *Game, p *Player) *statechange.MoveRequest {
			req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 0, Y: 0}, statechange.MoveNormal)
			tileAt(t, g, 1, 1).Occupant = 0
			p.tile = tileAt(t, g, 2, 2)
			p.tile.Occupant = int(p.ID)
			return req
		}},
		{"own tile", func(g *Game, p *Player) *statechange.MoveRequest {
			req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 1}, statechange.MoveNormal)
			return req
		}},
		{"boost without stockpile", func(g *Game, p *Player) *statechange.MoveRequest {
			req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveBoost)
			return req
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, p := newScenario(t)
			req := tt.setup(g, p)
			res, err := g.ProcessMoveRequest(req)
			if err != nil {
				t.Fatalf("ProcessMoveRequest failed: %v", err)
			}
			if !res.IsReject() {
				t.Errorf("response accepted, want reject")
			}
			if p.RequestInFlight || p.LastAccepted != 0 {
				t.Errorf("player = %+v, want idle at counter 0", p.State())
			}
		})
	}
}

func TestProcessMoveRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *Game, p *Player) *statechange.MoveRequest
		want  error
	}{
		{"unknown player", func(g *Game, p *Player) *statechange.MoveRequest {
			return &statechange.MoveRequest{PlayerID: 9}
		}, ErrUnknownPlayer},
		{"counter mismatch", func(g *Game, p *Player) *statechange.MoveRequest {
			req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
			req.PlayerNow = 4
			return req
		}, ErrSequenceViolation},
		{"request in flight", func(g *Game, p *Player) *statechange.MoveRequest {
			req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
			p.RequestInFlight = true
			return req
		}, ErrSequenceViolation},
		{"out of bounds", func(g *Game, p *Player) *statechange.MoveRequest {
			return &statechange.MoveRequest{PlayerID: p.ID, Dest: floor.Point{X: 7, Y: 0}}
		}, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, p := newScenario(t)
			_, err := g.ProcessMoveRequest(tt.setup(g, p))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestViewer_AtMostOneRequestInFlight(t *testing.T) {
	g, p := newScenario(t)
	viewer, err := NewViewerFromSnapshot(floor.DefaultRegistry(), g.Snapshot(), g.cfg, WithOperator(p.ID))
	if err != nil {
		t.Fatalf("NewViewerFromSnapshot failed: %v", err)
	}

	if _, err := viewer.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal); err != nil {
		t.Fatalf("first MakeMoveRequest failed: %v", err)
	}
	if _, err := viewer.MakeMoveRequest(p.ID, floor.Point{X: 0, Y: 0}, statechange.MoveNormal); !errors.Is(err, ErrSequenceViolation) {
		t.Errorf("second MakeMoveRequest error = %v, want ErrSequenceViolation", err)
	}
	if _, err := viewer.MakeBubbleRequest(p.ID); !errors.Is(err, ErrSequenceViolation) {
		t.Errorf("MakeBubbleRequest error = %v, want ErrSequenceViolation", err)
	}
}

func TestViewer_OperatorDelivery(t *testing.T) {
	g, p := newScenario(t)
	refresher := &countingRefresher{}
	viewer, err := NewViewerFromSnapshot(floor.DefaultRegistry(), g.Snapshot(), g.cfg,
		WithOperator(p.ID), WithRefresher(refresher))
	if err != nil {
		t.Fatal(err)
	}

	vreq, _ := viewer.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
	res, err := g.ProcessMoveRequest(vreq)
	if err != nil {
		t.Fatal(err)
	}

	ahead := *res
	ahead.PlayerNow = 2
	if err := viewer.ExecuteMove(&ahead); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("lag 2 error = %v, want ErrProtocolViolation", err)
	}

	refresher.n = 0
	if err := viewer.ExecuteMove(res); err != nil {
		t.Fatalf("ExecuteMove failed: %v", err)
	}
	vp, _ := viewer.Player(p.ID)
	if vp.RequestInFlight || vp.LastAccepted != 1 {
		t.Errorf("viewer player = %+v, want idle at counter 1", vp.State())
	}
	if refresher.n == 0 {
		t.Errorf("RefreshSeqBuffer not called after operator move")
	}

	if err := viewer.ExecuteMove(res); !errors.Is(err, ErrDuplicateEvent) && !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("replay error = %v, want a fatal error", err)
	}
	if !IsFatal(ErrDuplicateEvent) {
		t.Errorf("IsFatal(ErrDuplicateEvent) = false")
	}
}

// moveTo はマネージャ上でプレイヤー id を at へ動かし、受理されたレスポンスを返します。
func moveTo(t *testing.T, g *Game, id PlayerID, at floor.Point) *statechange.MoveResponse {
	t.Helper()
	req, err := g.MakeMoveRequest(id, at, statechange.MoveNormal)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.ProcessMoveRequest(req)
	if err != nil {
		t.Fatalf("ProcessMoveRequest failed: %v", err)
	}
	if res.IsReject() {
		t.Fatalf("move to %s rejected", at)
	}
	return res
}

func TestExecuteMove_LagBranches(t *testing.T) {
	tests := []struct {
		name     string
		operator bool
		// deliver は 2 回の移動 (1,1)->(2,1)->(2,2) のレスポンスから viewer に届ける順番を選びます。
		deliver []int
		wantErr error
		check   func(t *testing.T, viewer *Game)
	}{
		{
			name:    "remote gap is applied",
			deliver: []int{1},
			check: func(t *testing.T, viewer *Game) {
				p, _ := viewer.Player(1)
				if p.Coord() != (floor.Point{X: 2, Y: 2}) || p.LastAccepted != 2 {
					t.Errorf("player = %s at counter %d, want (2, 2) at counter 2", p.Coord(), p.LastAccepted)
				}
				// 取りこぼした移動で空いたタイルには古い占有者が残る
				if got := tileAt(t, viewer, 1, 1).Occupant; got != 1 {
					t.Errorf("missed vacated tile occupant = %d, want 1", got)
				}
			},
		},
		{
			name:    "remote late delivery is stale",
			deliver: []int{1, 0},
			check: func(t *testing.T, viewer *Game) {
				p, _ := viewer.Player(1)
				if p.Coord() != (floor.Point{X: 2, Y: 2}) || p.LastAccepted != 2 {
					t.Errorf("player = %s at counter %d, want (2, 2) at counter 2", p.Coord(), p.LastAccepted)
				}
				if viewer.EventSeen(0) {
					t.Errorf("stale event 0 was recorded")
				}
				// 遅れて届いた移動の世代の追い付きで古い占有者が消える
				if got := tileAt(t, viewer, 1, 1).Occupant; got != 0 {
					t.Errorf("vacated tile occupant = %d after catch-up, want 0", got)
				}
			},
		},
		{
			name:     "local negative lag is fatal",
			operator: true,
			deliver:  []int{0, 1, 0},
			wantErr:  ErrProtocolViolation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, p := newScenario(t)
			var opts []Option
			if tt.operator {
				opts = append(opts, WithOperator(p.ID))
			}
			viewer, err := NewViewerFromSnapshot(floor.DefaultRegistry(), g.Snapshot(), g.cfg, opts...)
			if err != nil {
				t.Fatal(err)
			}
			responses := []*statechange.MoveResponse{
				moveTo(t, g, p.ID, floor.Point{X: 2, Y: 1}),
				moveTo(t, g, p.ID, floor.Point{X: 2, Y: 2}),
			}

			var last error
			for _, i := range tt.deliver {
				if last = viewer.ExecuteMove(responses[i]); last != nil {
					break
				}
			}
			if tt.wantErr == nil && last != nil {
				t.Fatalf("ExecuteMove failed: %v", last)
			}
			if tt.wantErr != nil && !errors.Is(last, tt.wantErr) {
				t.Fatalf("ExecuteMove error = %v, want %v", last, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, viewer)
			}
		})
	}
}

func TestExecuteMove_DuplicateAtManager(t *testing.T) {
	g, p := newScenario(t)
	req, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 1, Y: 0}, statechange.MoveNormal)
	res, err := g.ProcessMoveRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.ExecuteMove(res); !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("replay at manager error = %v, want ErrDuplicateEvent", err)
	}
}

// step はプレイヤー id を最初に見つかった空き隣接タイルへ動かします。
func step(t *testing.T, g *Game, id PlayerID) *statechange.MoveResponse {
	t.Helper()
	p, _ := g.Player(id)
	neighbors, _ := g.grid.Neighbors(p.Coord(), 1)
	for _, n := range neighbors {
		if n.IsOccupied() {
			continue
		}
		req, err := g.MakeMoveRequest(id, n.Point(), statechange.MoveNormal)
		if err != nil {
			t.Fatal(err)
		}
		res, err := g.ProcessMoveRequest(req)
		if err != nil {
			t.Fatalf("ProcessMoveRequest failed: %v", err)
		}
		return res
	}
	t.Fatalf("player %d is boxed in", id)
	return nil
}

func TestConvergence(t *testing.T) {
	cfg := DefaultConfig()
	g := newTestManager(t, 5, 5, cfg)
	for _, id := range []PlayerID{1, 2, -1} {
		if _, err := g.AddPlayer(id, "p", 0); err != nil {
			t.Fatal(err)
		}
	}
	viewer, err := NewViewerFromSnapshot(floor.DefaultRegistry(), g.Snapshot(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	var delivered []*statechange.MoveResponse
	for i := 0; i < 40; i++ {
		id := []PlayerID{1, 2, -1}[i%3]
		res := step(t, g, id)

		// 拒否と古い重複を間に挟んでも結果は変わらない
		p, _ := g.Player(id)
		req, _ := g.MakeMoveRequest(id, p.Coord(), statechange.MoveNormal)
		rej, err := g.ProcessMoveRequest(req)
		if err != nil || !rej.IsReject() {
			t.Fatalf("expected reject, got %+v, %v", rej, err)
		}
		if err := viewer.ExecuteMove(rej); err != nil {
			t.Fatal(err)
		}
		if len(delivered) > 0 {
			if err := viewer.ExecuteMove(delivered[len(delivered)/2]); err != nil {
				t.Fatalf("stale delivery failed: %v", err)
			}
		}
		if err := viewer.ExecuteMove(res); err != nil {
			t.Fatalf("ExecuteMove failed: %v", err)
		}
		delivered = append(delivered, res)
	}

	if want, got := g.Snapshot(), viewer.Snapshot(); !reflect.DeepEqual(want, got) {
		t.Errorf("viewer diverged from manager\nwant %+v\ngot  %+v", want, got)
	}
	assertNoConflicts(t, g)
}

func TestExecuteMove_StaleDeliveryIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	g := newTestManager(t, 5, 5, cfg)
	g.AddPlayer(1, "a", 0)
	g.AddPlayer(2, "b", 0)
	viewer, err := NewViewerFromSnapshot(floor.DefaultRegistry(), g.Snapshot(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	first := step(t, g, 1)
	second := step(t, g, 1)
	for _, res := range []*statechange.MoveResponse{first, second} {
		if err := viewer.ExecuteMove(res); err != nil {
			t.Fatal(err)
		}
	}

	once := viewer.Snapshot()
	for i := 0; i < 2; i++ {
		if err := viewer.ExecuteMove(first); err != nil {
			t.Fatalf("stale ExecuteMove failed: %v", err)
		}
		if got := viewer.Snapshot(); !reflect.DeepEqual(once, got) {
			t.Fatalf("stale delivery %d changed state", i+1)
		}
	}
}

func TestStockpileClamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Targets = 0
	cfg.BubbleBase = 0
	cfg.BubblePerStock = time.Second
	cfg.BubbleMax = 2 * time.Second
	g := newTestManager(t, 5, 5, cfg)
	g.AddPlayer(1, "a", 0)

	want := []int{1, 2, 2, 2}
	for i, w := range want {
		res := step(t, g, 1)
		if res.PlayerStockpile != w {
			t.Errorf("move %d: stockpile = %d, want %d", i, res.PlayerStockpile, w)
		}
	}
}

func TestTargets_RelocatedOnCollect(t *testing.T) {
	g, p := newScenario(t)
	g.cfg.Targets = 1
	dest := tileAt(t, g, 1, 0)
	dest.ScoreValue = 5

	req, _ := g.MakeMoveRequest(p.ID, dest.Point(), statechange.MoveNormal)
	res, err := g.ProcessMoveRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.PlayerScore != 5 || p.Score != 5 {
		t.Errorf("score = %d/%d, want 5", res.PlayerScore, p.Score)
	}
	if dest.ScoreValue != 0 {
		t.Errorf("collected tile still scores %d", dest.ScoreValue)
	}
	if len(res.Tiles) != 2 {
		t.Fatalf("Tiles = %+v, want vacated tile and relocated target", res.Tiles)
	}
	moved := res.Tiles[1]
	if moved.ScoreValue != 5 || moved.Occupant != statechange.NoPlayer {
		t.Errorf("relocated target = %+v", moved)
	}
}

func TestBench_MoveSkipsAdjacency(t *testing.T) {
	g, p := newScenario(t)

	req, _ := g.MakeMoveRequest(p.ID, floor.BenchPoint, statechange.MoveNormal)
	res, err := g.ProcessMoveRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsReject() || !p.OnBench() {
		t.Fatalf("player not on bench after move: %+v", p.State())
	}
	if res.Dest.Seq != "" {
		t.Errorf("bench got a symbol %q", res.Dest.Seq)
	}

	req, _ = g.MakeMoveRequest(p.ID, floor.Point{X: 2, Y: 2}, statechange.MoveNormal)
	res, err = g.ProcessMoveRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsReject() || p.Coord() != (floor.Point{X: 2, Y: 2}) {
		t.Errorf("move from bench rejected: %+v", p.State())
	}
	if p.Bench().IsOccupied() {
		t.Errorf("bench still occupied")
	}
}

func TestBubble(t *testing.T) {
	timer := newFakeTimer()
	pub := &recordingPublisher{}
	g, p := newScenario(t, WithTimer(timer), WithPublisher(pub))
	enemy := placePlayer(t, g, 2, floor.Point{X: 1, Y: 0})
	enemy.Team = 2
	p.Team = 1
	mate := placePlayer(t, g, 3, floor.Point{X: 0, Y: 0})
	mate.Team = 1
	mate.IsDowned = true
	mate.Health = 0
	p.Stockpile = 2

	req, _ := g.MakeBubbleRequest(p.ID)
	res, err := g.ProcessBubbleRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsReject() || !p.IsBubbling || p.Stockpile != 0 || p.LastAccepted != 1 {
		t.Fatalf("player after bubble = %+v", p.State())
	}
	wantMs := int((g.cfg.BubbleBase + 2*g.cfg.BubblePerStock).Milliseconds())
	if res.DurationMs != wantMs {
		t.Errorf("DurationMs = %d, want %d", res.DurationMs, wantMs)
	}

	// バブル中の移動は拒否される
	mreq, _ := g.MakeMoveRequest(p.ID, floor.Point{X: 2, Y: 2}, statechange.MoveNormal)
	if mres, _ := g.ProcessMoveRequest(mreq); !mres.IsReject() {
		t.Errorf("move while bubbling accepted")
	}

	timer.fire()
	if p.IsBubbling {
		t.Errorf("still bubbling after pop")
	}
	if !enemy.IsDowned || enemy.Health != 0 {
		t.Errorf("enemy = %+v, want downed", enemy.State())
	}
	if mate.IsDowned || mate.Health != g.cfg.InitialHealth {
		t.Errorf("teammate = %+v, want raised", mate.State())
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}

	// 二度目のバブルで倒れている敵は凍結される
	req, _ = g.MakeBubbleRequest(p.ID)
	if _, err := g.ProcessBubbleRequest(req); err != nil {
		t.Fatal(err)
	}
	timer.fire()
	if !enemy.IsFrozen {
		t.Fatalf("enemy = %+v, want frozen", enemy.State())
	}
	timer.fire()
	if enemy.IsFrozen {
		t.Errorf("enemy still frozen after unfreeze")
	}
	if _, ok := pub.events[len(pub.events)-1].(*statechange.Unfreeze); !ok {
		t.Errorf("last event = %T, want *statechange.Unfreeze", pub.events[len(pub.events)-1])
	}
}

func TestBubble_UnfreezeCancelled(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(t *testing.T, g *Game)
	}{
		{
			name: "reset",
			cancel: func(t *testing.T, g *Game) {
				if err := g.Reset(); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "leave",
			cancel: func(t *testing.T, g *Game) {
				if _, err := g.RemovePlayer(2); err != nil {
					t.Fatal(err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timer := newFakeTimer()
			g, p := newScenario(t, WithTimer(timer))
			p.Team = 1
			enemy := placePlayer(t, g, 2, floor.Point{X: 1, Y: 0})
			enemy.Team = 2
			enemy.IsDowned = true

			req, _ := g.MakeBubbleRequest(p.ID)
			if _, err := g.ProcessBubbleRequest(req); err != nil {
				t.Fatal(err)
			}
			timer.fire()
			if !enemy.IsFrozen || len(timer.pending) != 1 {
				t.Fatalf("enemy = %+v with %d timers, want frozen with 1 unfreeze", enemy.State(), len(timer.pending))
			}

			tt.cancel(t, g)
			if len(timer.pending) != 0 {
				t.Errorf("%d timers left after %s, want 0", len(timer.pending), tt.name)
			}
			if len(g.freezes) != 0 {
				t.Errorf("freezes = %v after %s, want empty", g.freezes, tt.name)
			}
		})
	}
}

func TestBubblePop_AppliedOnceOnViewer(t *testing.T) {
	g, p := newScenario(t)
	enemy := placePlayer(t, g, 2, floor.Point{X: 1, Y: 0})
	viewer, err := NewViewerFromSnapshot(floor.DefaultRegistry(), g.Snapshot(), g.cfg)
	if err != nil {
		t.Fatal(err)
	}

	ev := &statechange.BubblePop{EventID: 0, BubblerID: p.ID, Downed: []PlayerID{enemy.ID}}
	viewer.ApplyBubblePop(ev)
	ve, _ := viewer.Player(enemy.ID)
	if !ve.IsDowned {
		t.Fatalf("enemy not downed on viewer")
	}
	ve.IsDowned = false
	viewer.ApplyBubblePop(ev)
	if ve.IsDowned {
		t.Errorf("duplicate pop applied twice")
	}
	if viewer.NextEventID() != 1 {
		t.Errorf("NextEventID() = %d, want 1", viewer.NextEventID())
	}
}

func TestMembership(t *testing.T) {
	g := newTestManager(t, 4, 4, DefaultConfig())
	viewer, err := NewViewerFromSnapshot(floor.DefaultRegistry(), g.Snapshot(), g.cfg)
	if err != nil {
		t.Fatal(err)
	}

	join, err := g.AddPlayer(4, "kei", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddPlayer(4, "kei", 1); !errors.Is(err, ErrPlayerExists) {
		t.Errorf("duplicate AddPlayer error = %v, want ErrPlayerExists", err)
	}
	for i := 0; i < 2; i++ {
		if err := viewer.ApplyPlayerJoin(join); err != nil {
			t.Fatal(err)
		}
	}
	if !reflect.DeepEqual(g.Snapshot(), viewer.Snapshot()) {
		t.Errorf("viewer diverged after join")
	}

	leave, err := g.RemovePlayer(4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := viewer.ApplyPlayerLeave(leave); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := viewer.Player(4); ok {
		t.Errorf("player still present after leave")
	}
	if !reflect.DeepEqual(g.Snapshot(), viewer.Snapshot()) {
		t.Errorf("viewer diverged after leave")
	}
	if g.NextEventID() != 0 {
		t.Errorf("membership consumed event ids: %d", g.NextEventID())
	}
}

func TestReset(t *testing.T) {
	g := newTestManager(t, 5, 5, DefaultConfig())
	g.AddPlayer(1, "a", 0)
	step(t, g, 1)
	p, _ := g.Player(1)
	gens := map[floor.Point]int{}
	g.grid.ForEachTile(func(tile *floor.Tile) { gens[tile.Point()] = tile.Generation })

	if err := g.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	g.grid.ForEachTile(func(tile *floor.Tile) {
		if tile.Generation <= gens[tile.Point()] {
			t.Errorf("tile %s generation did not advance", tile.Point())
		}
	})
	if p.Score != 0 || p.Stockpile != 0 || p.LastAccepted != 1 {
		t.Errorf("player after reset = %+v", p.State())
	}
	if g.NextEventID() != 1 {
		t.Errorf("NextEventID() = %d, want 1", g.NextEventID())
	}
	assertNoConflicts(t, g)
}

func TestEventLog(t *testing.T) {
	var l EventLog
	if err := l.Record(3); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(3); !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("Record(3) twice error = %v, want ErrDuplicateEvent", err)
	}
	for id := 4; id < 3+EventLogCapacity; id++ {
		if err := l.Record(id); err != nil {
			t.Fatalf("Record(%d) failed: %v", id, err)
		}
	}
	// 周回したイベント ID は前方ウィンドウで消されている
	if err := l.Record(3 + EventLogCapacity); err != nil {
		t.Errorf("Record after wraparound failed: %v", err)
	}
}
