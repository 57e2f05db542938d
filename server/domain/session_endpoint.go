package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/touka-aoi/snakey/game/statechange"
)

// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
var ErrInitializationFailed = errors.New("failed to initialize session endpoint")

const (
	DefaultIdleTimeout  = 30 * time.Second
	DefaultPingInterval = 10 * time.Second
)

type EndpointOption func(*SessionEndpoint)

// WithIdleTimeout は無応答とみなすまでの時間を変更します。0 以下で無効になります。
func WithIdleTimeout(d time.Duration) EndpointOption {
	return func(se *SessionEndpoint) { se.idleTimeout = d }
}

// WithPingInterval は ping の間隔を変更します。0 以下で ping を送りません。
func WithPingInterval(d time.Duration) EndpointOption {
	return func(se *SessionEndpoint) { se.pingInterval = d }
}

type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session     *Session
	connection  *Connection
	pubsub      PubSub
	roomManager RoomManager
	roomID      RoomID // 実行時にRoomManagerから取得

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	idleTimeout  time.Duration
	pingInterval time.Duration

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(session *Session, connection *Connection, pubsub PubSub, roomManager RoomManager, opts ...EndpointOption) (*SessionEndpoint, error) {
	if session == nil || connection == nil || pubsub == nil || roomManager == nil {
		return nil, ErrInitializationFailed
	}
	ctx, cancel := context.WithCancel(context.Background())
	se := &SessionEndpoint{
		ctx:          ctx,
		cancel:       cancel,
		session:      session,
		connection:   connection,
		pubsub:       pubsub,
		roomManager:  roomManager,
		ctrlCh:       make(chan endpointEvent, 16),
		writeCh:      make(chan []byte, 1024),
		idleTimeout:  DefaultIdleTimeout,
		pingInterval: DefaultPingInterval,
	}
	for _, opt := range opts {
		opt(se)
	}
	return se, nil
}

// Run はセッションをルームに参加させ、接続が閉じるまでブロックします。
func (se *SessionEndpoint) Run() error {
	defer se.close(CloseNormal, "")

	// RoomManagerにルームを問い合わせ
	roomID, err := se.roomManager.GetRoom(se.ctx, se.session.ID())
	if err != nil {
		return err
	}
	se.roomID = roomID

	// 自分宛のメッセージとルームからの制御を購読
	msgCh := se.pubsub.Subscribe(sessionTopic(se.session.ID()))
	defer se.pubsub.Unsubscribe(sessionTopic(se.session.ID()), msgCh)
	kickCh := se.pubsub.Subscribe(sessionCtrlTopic(se.session.ID()))
	defer se.pubsub.Unsubscribe(sessionCtrlTopic(se.session.ID()), kickCh)

	// room側にセッション追加を通知
	se.pubsub.Publish(se.ctx, roomTopic(se.roomID), Message{
		SessionID: se.session.ID(),
		Data:      statechange.EncodeControl(statechange.ControlSubTypeJoin),
	})
	defer se.pubsub.Publish(context.WithoutCancel(se.ctx), roomTopic(se.roomID), Message{
		SessionID: se.session.ID(),
		Data:      statechange.EncodeControl(statechange.ControlSubTypeLeave),
	})
	slog.InfoContext(se.ctx, "endpoint: session joined", "sessionID", se.session.ID(), "roomID", se.roomID)

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	eg.Go(func() error {
		se.kickLoop(ctx, kickCh)
		return nil
	})
	eg.Go(func() error {
		se.pingLoop(ctx)
		return nil
	})
	return eg.Wait()
}

func (se *SessionEndpoint) Session() *Session {
	return se.session
}

// Close はエンドポイントに終了を依頼します。
func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose})
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			if reason := se.idleReason(); reason != IdleNone {
				se.handleControlEvent(ctx, endpointEvent{
					kind: evClose,
					err:  errors.New(reason.String()),
				})
			}
		}
	}
}

// idleReason は接続の生存確認に使う指標がタイムアウトしていればその理由を返します。
// ping を送っている間は pong、送っていなければ受信を見ます。
func (se *SessionEndpoint) idleReason() IdleReason {
	idle, reason := se.session.IsIdle(se.idleTimeout)
	if !idle {
		return IdleNone
	}
	liveness := IdleRead
	if se.pingInterval > 0 {
		liveness = IdlePong
	}
	return reason & liveness
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
			}
			return
		}
		se.session.TouchRead()
		if isControlFrame(data) {
			slog.WarnContext(ctx, "endpoint: control frame from client dropped", "sessionID", se.session.ID())
			continue
		}
		// roomにpublish（sessionIDを含める）
		se.pubsub.Publish(ctx, roomTopic(se.roomID), Message{
			SessionID: se.session.ID(),
			Data:      data,
		})
	}
}

// isControlFrame は参加と退出の偽装を防ぐため、クライアントからの制御フレームを見分けます。
func isControlFrame(data []byte) bool {
	if len(data) < statechange.HeaderSize+statechange.PayloadHeaderSize {
		return false
	}
	ph, err := statechange.ParsePayloadHeader(data[statechange.HeaderSize:])
	return err == nil && ph.DataType == statechange.DataTypeControl
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			if err := se.connection.Write(ctx, data); err != nil {
				if ctx.Err() == nil {
					se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				}
				return
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case se.writeCh <- msg.Data:
			default:
				slog.WarnContext(ctx, "endpoint: writeCh full, message dropped", "sessionID", se.session.ID())
			}
		}
	}
}

// kickLoop はルームからの Kick を制御イベントに変換します。
func (se *SessionEndpoint) kickLoop(ctx context.Context, kickCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-kickCh:
			if !ok {
				return
			}
			frame, err := statechange.DecodeFrame(msg.Data)
			if err != nil || !frame.IsControl(statechange.ControlSubTypeKick) {
				continue
			}
			se.sendCtrlEvent(ctx, endpointEvent{kind: evKick})
		}
	}
}

func (se *SessionEndpoint) pingLoop(ctx context.Context) {
	if se.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(se.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, se.pingInterval)
			err := se.connection.Ping(pingCtx)
			cancel()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evPingError, err: err})
				continue
			}
			se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
		}
	}
}

func (se *SessionEndpoint) close(code int32, reason string) {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.cancel()
	se.session.Close()
	se.connection.Close(code, reason)
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		if ev.err != nil {
			slog.InfoContext(ctx, "endpoint: closing session", "sessionID", se.session.ID(), "reason", ev.err)
		}
		se.close(CloseGoingAway, "")
	case evKick:
		slog.WarnContext(ctx, "endpoint: session kicked", "sessionID", se.session.ID())
		se.close(ClosePolicyViolation, "kicked")
	case evPong:
		se.session.TouchPong()
	case evReadError:
		slog.InfoContext(ctx, "endpoint: read failed", "sessionID", se.session.ID(), "err", ev.err)
		se.close(CloseNormal, "")
	case evWriteError:
		slog.WarnContext(ctx, "endpoint: write failed", "sessionID", se.session.ID(), "err", ev.err)
		se.close(CloseGoingAway, "")
	case evPingError:
		slog.DebugContext(ctx, "endpoint: ping failed", "sessionID", se.session.ID(), "err", ev.err)
	default:
		slog.WarnContext(ctx, "endpoint: unknown event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
