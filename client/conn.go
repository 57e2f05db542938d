// Package client はビューアレプリカを持つクライアントです。
// サーバーから届くイベントをローカルのゲーム状態に適用し、入力から要求を作って送ります。
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/lang"
	"github.com/touka-aoi/snakey/game/statechange"
)

var (
	// ErrNotWelcomed は参加が受け付けられる前に操作した場合に返されます。
	ErrNotWelcomed = errors.New("client: not welcomed yet")
	// ErrClosed は接続が閉じた後に送信しようとした場合に返されます。
	ErrClosed = errors.New("client: connection closed")
	// ErrBusy は前の要求の応答待ちか、バブル中や凍結中で操作できない場合に返されます。
	ErrBusy = errors.New("client: player is busy")
)

// DefaultRequestTimeout は応答の届かない要求を諦めるまでの既定の時間です。
const DefaultRequestTimeout = 5 * time.Second

type Option func(*Conn)

// WithSink は描画側の通知先を指定します。
func WithSink(s game.Sink) Option {
	return func(c *Conn) { c.sink = s }
}

// WithConfig はビューアのゲーム設定を指定します。サーバーと同じ半径を使う必要があります。
func WithConfig(cfg game.Config) Option {
	return func(c *Conn) { c.cfg = cfg }
}

// WithRequestTimeout は応答が届かない要求を諦めるまでの時間を指定します。
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Conn) { c.requestTimeout = d }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// Conn はサーバーとの接続とビューアレプリカです。
// ゲーム状態は mu で守られ、読み取りループと入力側のゴルーチンから触られます。
type Conn struct {
	ws      *websocket.Conn
	dialer  *websocket.Dialer
	cfg     game.Config
	sink    game.Sink
	catalog lang.Catalog

	mu       sync.Mutex
	game     *game.Game
	self     game.PlayerID
	operator *Operator
	boost    bool
	lastErr  *statechange.ErrorMessage

	// sentAt は応答待ちの要求を送った時刻です。
	sentAt         time.Time
	requestTimeout time.Duration

	writeCh  chan []byte
	done     chan struct{}
	welcomed chan struct{}
}

// Dial はサーバーに接続し、Hello を送る準備をします。読み書きは Run で始まります。
func Dial(ctx context.Context, url string, hello statechange.Hello, opts ...Option) (*Conn, error) {
	if err := hello.Validate(); err != nil {
		return nil, err
	}
	c := &Conn{
		dialer:         websocket.DefaultDialer,
		cfg:            game.DefaultConfig(),
		sink:           game.NopSink{},
		catalog:        lang.DefaultCatalog(),
		requestTimeout: DefaultRequestTimeout,
		writeCh:        make(chan []byte, 64),
		done:           make(chan struct{}),
		welcomed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	ws, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	ws.SetReadLimit(statechange.HeaderSize + statechange.MaxFrameSize)
	c.ws = ws

	data, err := statechange.Encode(statechange.GameSubTypeHello, &hello)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	c.writeCh <- data
	return c, nil
}

// Run は接続が閉じるか ctx が終わるまで読み書きします。ctx の終了による切断はエラーにしません。
func (c *Conn) Run(ctx context.Context) error {
	defer close(c.done)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.readLoop(egCtx)
	})
	eg.Go(func() error {
		return c.writeLoop(egCtx)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return c.ws.Close()
	})
	err := eg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Welcomed は参加が受け付けられると閉じるチャネルを返します。
func (c *Conn) Welcomed() <-chan struct{} {
	return c.welcomed
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if err := c.handle(ctx, data); err != nil {
			slog.ErrorContext(ctx, "client: tearing down connection", "err", err)
			return err
		}
	}
}

func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-c.writeCh:
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return err
			}
		}
	}
}

// handle はフレームをビューアに適用します。返すのは接続を続けられないエラーだけです。
func (c *Conn) handle(ctx context.Context, data []byte) error {
	frame, err := statechange.DecodeFrame(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := frame.GameSubType()
	if sub == statechange.GameSubTypeWelcome {
		var w statechange.Welcome
		if err := frame.Unmarshal(&w); err != nil {
			return err
		}
		return c.welcome(ctx, &w)
	}
	if sub == statechange.GameSubTypeError {
		var m statechange.ErrorMessage
		if err := frame.Unmarshal(&m); err != nil {
			return err
		}
		c.lastErr = &m
		slog.WarnContext(ctx, "client: server error", "code", m.Code, "message", m.Message)
		// 要求が拒否されエラーだけが返った場合は応答が来ないので待ちを解く
		c.endRequest()
		return nil
	}
	if c.game == nil {
		// 参加前のイベントは Welcome のスナップショットに含まれている
		return nil
	}

	err = c.apply(frame, sub)
	switch {
	case err == nil:
		return nil
	case game.IsFatal(err):
		return err
	default:
		slog.WarnContext(ctx, "client: event not applied", "sub", sub, "err", err)
		return nil
	}
}

func (c *Conn) apply(frame statechange.Frame, sub statechange.GameSubType) error {
	switch sub {
	case statechange.GameSubTypeMoveResponse:
		var res statechange.MoveResponse
		if err := frame.Unmarshal(&res); err != nil {
			return err
		}
		return c.game.ExecuteMove(&res)
	case statechange.GameSubTypeBubbleResponse:
		var res statechange.BubbleResponse
		if err := frame.Unmarshal(&res); err != nil {
			return err
		}
		return c.game.ExecuteBubble(&res)
	case statechange.GameSubTypeBubblePop:
		var ev statechange.BubblePop
		if err := frame.Unmarshal(&ev); err != nil {
			return err
		}
		c.game.ApplyBubblePop(&ev)
		return nil
	case statechange.GameSubTypeUnfreeze:
		var ev statechange.Unfreeze
		if err := frame.Unmarshal(&ev); err != nil {
			return err
		}
		c.game.ApplyUnfreeze(&ev)
		return nil
	case statechange.GameSubTypePlayerJoin:
		var ev statechange.PlayerJoin
		if err := frame.Unmarshal(&ev); err != nil {
			return err
		}
		return c.game.ApplyPlayerJoin(&ev)
	case statechange.GameSubTypePlayerLeave:
		var ev statechange.PlayerLeave
		if err := frame.Unmarshal(&ev); err != nil {
			return err
		}
		return c.game.ApplyPlayerLeave(&ev)
	case statechange.GameSubTypeSnapshot:
		var snap statechange.Snapshot
		if err := frame.Unmarshal(&snap); err != nil {
			return err
		}
		c.operator.Clear()
		return c.game.ApplySnapshot(&snap)
	default:
		return fmt.Errorf("%w: unexpected %s from server", game.ErrProtocolViolation, sub)
	}
}

func (c *Conn) welcome(ctx context.Context, w *statechange.Welcome) error {
	if c.game != nil {
		return fmt.Errorf("%w: second welcome", game.ErrProtocolViolation)
	}
	remap := func(s string) string { return s }
	if desc, err := c.catalog.Lookup(w.Lang); err == nil {
		remap = desc.Remap
	}
	c.self = w.PlayerID
	c.operator = NewOperator(remap, c.candidates)
	g, err := game.NewViewerFromSnapshot(floor.DefaultRegistry(), &w.Snapshot, c.cfg,
		game.WithOperator(w.PlayerID),
		game.WithSink(c.sink),
		game.WithRefresher(c.operator),
	)
	if err != nil {
		return err
	}
	c.game = g
	close(c.welcomed)
	slog.InfoContext(ctx, "client: welcomed", "playerID", w.PlayerID, "lang", w.Lang,
		"grid", fmt.Sprintf("%s %dx%d", w.Snapshot.System, w.Snapshot.Width, w.Snapshot.Height))
	return nil
}

// candidates は操作者の移動先候補です。ベンチにいる間は盤面の全ての空きタイルが候補です。
// ビューアの構築中はスナップショットの適用から呼ばれるので、c.game がまだ nil のことがあります。
func (c *Conn) candidates() []floor.Tile {
	if c.game == nil {
		return nil
	}
	p, ok := c.game.Player(c.self)
	if !ok {
		return nil
	}
	if !p.OnBench() {
		return c.game.OperatorNeighbors()
	}
	var out []floor.Tile
	c.game.Grid().ForEachTile(func(t *floor.Tile) {
		if !t.IsOccupied() {
			out = append(out, *t)
		}
	})
	return out
}

// Do はロックを取った状態で fn にビューアを渡します。参加前は false を返します。
func (c *Conn) Do(fn func(g *game.Game, self game.PlayerID)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.game == nil {
		return false
	}
	fn(c.game, c.self)
	return true
}

// Status は入力バッファ、ブースト予約、最後に受け取ったサーバーエラーを返します。
func (c *Conn) Status() (buffer string, boost bool, lastErr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.operator != nil {
		buffer = c.operator.Buffer()
	}
	if c.lastErr != nil {
		lastErr = c.lastErr.Code + ": " + c.lastErr.Message
	}
	return buffer, c.boost, lastErr
}

// Type はキーを入力します。シーケンスが完成したら移動要求を送ります。
func (c *Conn) Type(key string) error {
	c.mu.Lock()
	if c.game == nil {
		c.mu.Unlock()
		return ErrNotWelcomed
	}
	if err := c.ready(); err != nil {
		c.mu.Unlock()
		return err
	}
	dest, ok := c.operator.Type(key)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	moveType := statechange.MoveNormal
	if c.boost {
		moveType = statechange.MoveBoost
		c.boost = false
	}
	req, err := c.game.MakeMoveRequest(c.self, dest, moveType)
	if err == nil {
		c.sentAt = time.Now()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(statechange.GameSubTypeMoveRequest, req)
}

// ready は新しい要求を出せるかを確かめます。c.mu を取った状態で呼びます。
// 応答が requestTimeout を過ぎても届かない要求は失われたものとして待ちを解きます。
func (c *Conn) ready() error {
	p, ok := c.game.Player(c.self)
	if !ok {
		return ErrBusy
	}
	if p.RequestInFlight && c.requestTimeout > 0 && time.Since(c.sentAt) > c.requestTimeout {
		slog.Warn("client: request timed out", "playerID", c.self, "after", c.requestTimeout)
		p.EndRequest()
	}
	if p.RequestInFlight || p.IsLocked() {
		return ErrBusy
	}
	return nil
}

// endRequest は応答待ちの状態を解きます。c.mu を取った状態で呼びます。
func (c *Conn) endRequest() {
	if c.game == nil {
		return
	}
	if p, ok := c.game.Player(c.self); ok && p.RequestInFlight {
		p.EndRequest()
	}
}

// Backspace は入力バッファを捨てます。
func (c *Conn) Backspace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.operator != nil {
		c.operator.Clear()
	}
}

// ToggleBoost は次の移動をブーストにするかどうかを切り替えます。
func (c *Conn) ToggleBoost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boost = !c.boost
	return c.boost
}

// Bubble はバブルの発動を要求します。
func (c *Conn) Bubble() error {
	c.mu.Lock()
	if c.game == nil {
		c.mu.Unlock()
		return ErrNotWelcomed
	}
	if err := c.ready(); err != nil {
		c.mu.Unlock()
		return err
	}
	req, err := c.game.MakeBubbleRequest(c.self)
	if err == nil {
		c.sentAt = time.Now()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(statechange.GameSubTypeBubbleRequest, req)
}

// Bench は盤面にいればベンチへ下がり、ベンチにいればランダムな空きタイルへ出ます。
func (c *Conn) Bench() error {
	c.mu.Lock()
	if c.game == nil {
		c.mu.Unlock()
		return ErrNotWelcomed
	}
	if err := c.ready(); err != nil {
		c.mu.Unlock()
		return err
	}
	dest := floor.BenchPoint
	if p, ok := c.game.Player(c.self); ok && p.OnBench() {
		free := c.candidates()
		if len(free) == 0 {
			c.mu.Unlock()
			return nil
		}
		dest = free[rand.IntN(len(free))].Point()
	}
	req, err := c.game.MakeMoveRequest(c.self, dest, statechange.MoveNormal)
	if err == nil {
		c.sentAt = time.Now()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(statechange.GameSubTypeMoveRequest, req)
}

func (c *Conn) send(sub statechange.GameSubType, v any) error {
	data, err := statechange.Encode(sub, v)
	if err != nil {
		return err
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}
