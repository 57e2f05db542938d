// Package application はルームに載るゲームアプリケーションです。
// ルームのゴルーチンでマネージャレプリカを動かし、受理したイベントを全セッションへ配ります。
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/lang"
	"github.com/touka-aoi/snakey/game/statechange"
	"github.com/touka-aoi/snakey/server/domain"
)

var (
	// ErrAlreadyJoined は参加済みのセッションが再度 Hello を送った場合に返されます。
	ErrAlreadyJoined = errors.New("application: session already joined")
	// ErrNotJoined は Hello の前にゲームの要求を送った場合に返されます。
	ErrNotJoined = errors.New("application: session has not joined")
	// ErrImpersonation は他のプレイヤーの ID で要求を送った場合に返されます。
	ErrImpersonation = errors.New("application: request for another player")
	// ErrUnexpectedFrame はクライアントが送るべきでないフレームを受け取った場合に返されます。
	ErrUnexpectedFrame = errors.New("application: unexpected frame")
)

// クライアントへ返すエラーコードです。
const (
	CodeInvalidRequest    = "invalid_request"
	CodeProtocolViolation = "protocol_violation"
	CodeNotJoined         = "not_joined"
	CodeAlreadyJoined     = "already_joined"
)

type outboundEvent struct {
	sub statechange.GameSubType
	ev  any
}

type Option func(*GameApplication)

func WithStore(s *Store) Option {
	return func(a *GameApplication) { a.store = s }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(a *GameApplication) { a.metrics = m }
}

// WithBots はルームにボットを n 体参加させ、every ティックごとに行動させます。
func WithBots(n, every int) Option {
	return func(a *GameApplication) {
		a.botCount = n
		a.botEvery = every
	}
}

// WithSeed は配置とボットの乱数を固定します。
func WithSeed(seed uint64) Option {
	return func(a *GameApplication) { a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLang は Welcome でクライアントに伝える言語のカタログ ID を指定します。
func WithLang(id string) Option {
	return func(a *GameApplication) { a.lang = id }
}

// WithClock はタイマーの時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(a *GameApplication) { a.now = now }
}

// GameApplication は domain.Application の実装です。
// セッションとプレイヤーの対応を持ち、要求をマネージャレプリカで処理します。
type GameApplication struct {
	roomID domain.RoomID
	game   *game.Game
	out    domain.Outbox

	scheduler *TickScheduler
	store     *Store
	metrics   MetricsRecorder
	rng       *rand.Rand
	now       func() time.Time
	lang      string

	sessions     map[domain.SessionID]game.PlayerID
	owners       map[game.PlayerID]domain.SessionID
	nextPlayerID game.PlayerID

	botCount int
	botEvery int
	bots     *botDriver

	pending        []outboundEvent
	resetRequested atomic.Bool
	dirty          bool
}

// NewGameApplication はマネージャレプリカを作り、ボットを参加させます。
func NewGameApplication(roomID domain.RoomID, grid floor.Grid, tree *lang.Tree, cfg game.Config, opts ...Option) (*GameApplication, error) {
	a := &GameApplication{
		roomID:       roomID,
		metrics:      nopMetrics{},
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:          time.Now,
		sessions:     make(map[domain.SessionID]game.PlayerID),
		owners:       make(map[game.PlayerID]domain.SessionID),
		nextPlayerID: 1,
		botEvery:     30,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.scheduler = NewTickScheduler(a.now)
	g, err := game.NewManager(grid, tree, cfg,
		game.WithTimer(a.scheduler),
		game.WithPublisher(a),
		game.WithRand(a.rng),
	)
	if err != nil {
		return nil, err
	}
	a.game = g
	if a.botCount > 0 {
		bots, err := newBotDriver(g, a.rng, a.botCount, a.botEvery)
		if err != nil {
			return nil, err
		}
		a.bots = bots
	}
	a.dirty = true
	a.publishSnapshot()
	return a, nil
}

func (a *GameApplication) Bind(out domain.Outbox) {
	a.out = out
}

// Game はマネージャレプリカを返します。ルームのゴルーチン以外から触ってはいけません。
func (a *GameApplication) Game() *game.Game {
	return a.game
}

// RequestReset は次のティックでのゲームのリセットを予約します。どのゴルーチンからも呼べます。
func (a *GameApplication) RequestReset() {
	a.resetRequested.Store(true)
}

// PublishEvent はタイマーから起きたマネージャイベントを次の送信にまとめます。
func (a *GameApplication) PublishEvent(sub statechange.GameSubType, ev any) {
	a.pending = append(a.pending, outboundEvent{sub: sub, ev: ev})
}

func (a *GameApplication) HandleMessage(ctx context.Context, sessionID domain.SessionID, data []byte) error {
	frame, err := statechange.DecodeFrame(data)
	if err != nil {
		a.kick(ctx, sessionID, CodeProtocolViolation, err)
		return err
	}
	switch {
	case frame.IsControl(statechange.ControlSubTypeJoin):
		a.sessions[sessionID] = statechange.NoPlayer
		return nil
	case frame.IsControl(statechange.ControlSubTypeLeave):
		return a.leave(ctx, sessionID)
	case frame.DataType == statechange.DataTypeControl:
		return nil
	}

	start := time.Now()
	sub := frame.GameSubType()
	defer func() {
		a.metrics.RecordLatency(ctx, sub.String(), time.Since(start))
		a.metrics.IncrementCounter(ctx, "requests."+sub.String(), 1)
	}()

	switch sub {
	case statechange.GameSubTypeHello:
		var hello statechange.Hello
		if err := frame.Unmarshal(&hello); err != nil {
			a.kick(ctx, sessionID, CodeProtocolViolation, err)
			return err
		}
		return a.hello(ctx, sessionID, &hello)
	case statechange.GameSubTypeMoveRequest:
		var req statechange.MoveRequest
		if err := frame.Unmarshal(&req); err != nil {
			a.kick(ctx, sessionID, CodeProtocolViolation, err)
			return err
		}
		if err := a.authorize(sessionID, req.PlayerID); err != nil {
			a.refuse(ctx, sessionID, err)
			return err
		}
		return a.submitMove(ctx, sessionID, &req)
	case statechange.GameSubTypeBubbleRequest:
		var req statechange.BubbleRequest
		if err := frame.Unmarshal(&req); err != nil {
			a.kick(ctx, sessionID, CodeProtocolViolation, err)
			return err
		}
		if err := a.authorize(sessionID, req.PlayerID); err != nil {
			a.refuse(ctx, sessionID, err)
			return err
		}
		return a.submitBubble(ctx, sessionID, &req)
	default:
		err := fmt.Errorf("%w: %s", ErrUnexpectedFrame, sub)
		a.kick(ctx, sessionID, CodeProtocolViolation, err)
		return err
	}
}

func (a *GameApplication) Tick(ctx context.Context) {
	if a.resetRequested.Swap(false) {
		a.reset(ctx)
	}
	if a.scheduler.Fire() > 0 {
		a.dirty = true
	}
	if a.bots != nil {
		a.bots.tick(ctx, a)
	}
	a.flushEvents(ctx)
	a.publishSnapshot()
}

func (a *GameApplication) hello(ctx context.Context, sessionID domain.SessionID, hello *statechange.Hello) error {
	if id, ok := a.sessions[sessionID]; ok && id != statechange.NoPlayer {
		a.sendError(ctx, sessionID, CodeAlreadyJoined, ErrAlreadyJoined)
		return ErrAlreadyJoined
	}
	if err := hello.Validate(); err != nil {
		a.sendError(ctx, sessionID, CodeInvalidRequest, err)
		return err
	}
	id := a.nextPlayerID
	ev, err := a.game.AddPlayer(id, hello.Name, hello.Team)
	if err != nil {
		a.sendError(ctx, sessionID, CodeInvalidRequest, err)
		return err
	}
	a.nextPlayerID++
	a.sessions[sessionID] = id
	a.owners[id] = sessionID
	a.dirty = true

	a.sendTo(ctx, sessionID, statechange.GameSubTypeWelcome, &statechange.Welcome{
		PlayerID: id,
		Lang:     a.lang,
		Snapshot: *a.game.Snapshot(),
	})
	a.broadcast(ctx, statechange.GameSubTypePlayerJoin, ev)
	a.metrics.IncrementCounter(ctx, "players.joined", 1)
	slog.InfoContext(ctx, "game: player joined", "roomID", a.roomID, "sessionID", sessionID, "playerID", id, "name", hello.Name, "team", hello.Team)
	return nil
}

func (a *GameApplication) leave(ctx context.Context, sessionID domain.SessionID) error {
	id, ok := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	if !ok || id == statechange.NoPlayer {
		return nil
	}
	delete(a.owners, id)
	ev, err := a.game.RemovePlayer(id)
	if err != nil {
		return err
	}
	a.dirty = true
	a.broadcast(ctx, statechange.GameSubTypePlayerLeave, ev)
	a.metrics.IncrementCounter(ctx, "players.left", 1)
	slog.InfoContext(ctx, "game: player left", "roomID", a.roomID, "sessionID", sessionID, "playerID", id)
	return nil
}

// authorize はセッションが要求者本人であることを確かめます。
func (a *GameApplication) authorize(sessionID domain.SessionID, id game.PlayerID) error {
	owned, ok := a.sessions[sessionID]
	if !ok || owned == statechange.NoPlayer {
		return ErrNotJoined
	}
	if owned != id {
		return fmt.Errorf("%w: session plays %d, request names %d", ErrImpersonation, owned, id)
	}
	return nil
}

// submitMove は移動要求を処理します。受理は全員に、拒否は要求者だけに送ります。
// sessionID が空の要求はボットのものです。
func (a *GameApplication) submitMove(ctx context.Context, sessionID domain.SessionID, req *statechange.MoveRequest) error {
	res, err := a.game.ProcessMoveRequest(req)
	if err != nil {
		a.refuse(ctx, sessionID, err)
		return err
	}
	if res.IsReject() {
		a.metrics.IncrementCounter(ctx, "moves.rejected", 1)
		a.sendTo(ctx, sessionID, statechange.GameSubTypeMoveResponse, res)
		return nil
	}
	a.metrics.IncrementCounter(ctx, "moves.accepted", 1)
	a.dirty = true
	a.broadcast(ctx, statechange.GameSubTypeMoveResponse, res)
	return nil
}

func (a *GameApplication) submitBubble(ctx context.Context, sessionID domain.SessionID, req *statechange.BubbleRequest) error {
	res, err := a.game.ProcessBubbleRequest(req)
	if err != nil {
		a.refuse(ctx, sessionID, err)
		return err
	}
	if res.IsReject() {
		a.metrics.IncrementCounter(ctx, "bubbles.rejected", 1)
		a.sendTo(ctx, sessionID, statechange.GameSubTypeBubbleResponse, res)
		return nil
	}
	a.metrics.IncrementCounter(ctx, "bubbles.accepted", 1)
	a.dirty = true
	a.broadcast(ctx, statechange.GameSubTypeBubbleResponse, res)
	return nil
}

// refuse は処理できなかった要求をエラーの種類に応じて要求者へ返します。
// 要求番号の破綻は回復できないので接続を切ります。
func (a *GameApplication) refuse(ctx context.Context, sessionID domain.SessionID, err error) {
	switch {
	case sessionID == "":
		slog.WarnContext(ctx, "game: bot request failed", "roomID", a.roomID, "err", err)
	case game.IsFatal(err), errors.Is(err, ErrImpersonation):
		a.kick(ctx, sessionID, CodeProtocolViolation, err)
	case errors.Is(err, ErrNotJoined):
		a.sendError(ctx, sessionID, CodeNotJoined, err)
	default:
		a.sendError(ctx, sessionID, CodeInvalidRequest, err)
	}
}

func (a *GameApplication) kick(ctx context.Context, sessionID domain.SessionID, code string, cause error) {
	slog.ErrorContext(ctx, "game: kicking session", "roomID", a.roomID, "sessionID", sessionID, "err", cause)
	a.metrics.IncrementCounter(ctx, "sessions.kicked", 1)
	a.sendError(ctx, sessionID, code, cause)
	if err := a.out.EnqueueKick(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "game: enqueue kick failed", "sessionID", sessionID, "err", err)
	}
}

func (a *GameApplication) sendError(ctx context.Context, sessionID domain.SessionID, code string, cause error) {
	a.sendTo(ctx, sessionID, statechange.GameSubTypeError, &statechange.ErrorMessage{Code: code, Message: cause.Error()})
}

func (a *GameApplication) sendTo(ctx context.Context, sessionID domain.SessionID, sub statechange.GameSubType, v any) {
	if sessionID == "" {
		return
	}
	data, err := statechange.Encode(sub, v)
	if err != nil {
		slog.ErrorContext(ctx, "game: encode failed", "sub", sub, "err", err)
		return
	}
	if err := a.out.EnqueueSendTo(ctx, sessionID, data); err != nil {
		slog.WarnContext(ctx, "game: enqueue send failed", "sessionID", sessionID, "sub", sub, "err", err)
	}
}

func (a *GameApplication) broadcast(ctx context.Context, sub statechange.GameSubType, v any) {
	data, err := statechange.Encode(sub, v)
	if err != nil {
		slog.ErrorContext(ctx, "game: encode failed", "sub", sub, "err", err)
		return
	}
	if err := a.out.EnqueueBroadcast(ctx, data); err != nil {
		slog.WarnContext(ctx, "game: enqueue broadcast failed", "sub", sub, "err", err)
	}
}

func (a *GameApplication) flushEvents(ctx context.Context) {
	for _, ev := range a.pending {
		a.broadcast(ctx, ev.sub, ev.ev)
		a.dirty = true
	}
	a.pending = a.pending[:0]
}

// reset はゲームを引き直し、全セッションにスナップショットを送ります。
func (a *GameApplication) reset(ctx context.Context) {
	if err := a.game.Reset(); err != nil {
		slog.ErrorContext(ctx, "game: reset failed", "roomID", a.roomID, "err", err)
		return
	}
	a.pending = a.pending[:0]
	a.dirty = true
	a.broadcast(ctx, statechange.GameSubTypeSnapshot, a.game.Snapshot())
	a.metrics.IncrementCounter(ctx, "resets", 1)
	slog.InfoContext(ctx, "game: reset", "roomID", a.roomID)
}

func (a *GameApplication) publishSnapshot() {
	if !a.dirty || a.store == nil {
		return
	}
	a.store.Put(a.roomID, a.game.Snapshot())
	a.dirty = false
}

var _ domain.Application = (*GameApplication)(nil)
var _ game.Publisher = (*GameApplication)(nil)
