package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/touka-aoi/snakey/game/statechange"
)

type RoomID [16]byte

// NewRoomID はランダムな RoomID を生成します
func NewRoomID() RoomID {
	return RoomID(uuid.New())
}

// ParseRoomID は UUID 文字列から RoomID を復元します
func ParseRoomID(s string) (RoomID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RoomID{}, err
	}
	return RoomID(u), nil
}

// IsEmpty はRoomIDが空（ゼロ値）かどうかを判定します
func (id RoomID) IsEmpty() bool {
	return id == RoomID{}
}

// String はRoomIDをUUID形式の文字列で返します
func (id RoomID) String() string {
	return uuid.UUID(id).String()
}

func roomTopic(id RoomID) Topic {
	return Topic("room:" + id.String())
}

func sessionTopic(id SessionID) Topic {
	return Topic("session:" + id.String())
}

func sessionCtrlTopic(id SessionID) Topic {
	return Topic("session:" + id.String() + ":ctrl")
}

var ErrRoomBusy = errors.New("room send channel is full")

// DefaultTickInterval はルームの既定のティック間隔です。
const DefaultTickInterval = time.Second / 60

type RoomOption func(*Room)

// WithTickInterval はティック間隔を変更します。
func WithTickInterval(d time.Duration) RoomOption {
	return func(r *Room) {
		if d > 0 {
			r.tickInterval = d
		}
	}
}

// Room はセッションの集合と 1 つのアプリケーションを束ねる実行単位です。
// アプリケーションは Run のゴルーチンからのみ呼び出されます。
type Room struct {
	ID       RoomID
	sessions map[SessionID]struct{}

	pubsub      PubSub
	application Application // 外部からアプリケーションロジックを注入できる

	sendCh chan roomSend

	tickInterval time.Duration
}

func NewRoom(id RoomID, pubsub PubSub, application Application, opts ...RoomOption) *Room {
	r := &Room{
		ID:           id,
		sessions:     make(map[SessionID]struct{}),
		pubsub:       pubsub,
		application:  application,
		sendCh:       make(chan roomSend, 1024),
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	application.Bind(r)
	return r
}

func (r *Room) Broadcast(ctx context.Context, data []byte) {
	for sessionID := range r.sessions {
		r.pubsub.Publish(ctx, sessionTopic(sessionID), Message{Data: data})
	}
}

func (r *Room) SendTo(ctx context.Context, sessionID SessionID, data []byte) {
	r.pubsub.Publish(ctx, sessionTopic(sessionID), Message{Data: data})
}

// Kick はセッションの制御トピックに Kick を送り、接続を閉じさせます。
func (r *Room) Kick(ctx context.Context, sessionID SessionID) {
	r.pubsub.Publish(ctx, sessionCtrlTopic(sessionID), Message{
		SessionID: sessionID,
		Data:      statechange.EncodeControl(statechange.ControlSubTypeKick),
	})
}

func (r *Room) EnqueueBroadcast(ctx context.Context, data []byte) error {
	return r.enqueueSend(ctx, roomSend{kind: roomSendBroadcast, data: data})
}

func (r *Room) EnqueueSendTo(ctx context.Context, sessionID SessionID, data []byte) error {
	return r.enqueueSend(ctx, roomSend{kind: roomSendTo, sessionID: sessionID, data: data})
}

func (r *Room) EnqueueKick(ctx context.Context, sessionID SessionID) error {
	return r.enqueueSend(ctx, roomSend{kind: roomSendKick, sessionID: sessionID})
}

func (r *Room) enqueueSend(ctx context.Context, msg roomSend) error {
	select {
	case <-ctx.Done():
		return nil
	case r.sendCh <- msg:
		return nil
	default:
		return ErrRoomBusy
	}
}

// SessionCount は参加中のセッション数を返します。Run のゴルーチンからのみ呼び出せます。
func (r *Room) SessionCount() int {
	return len(r.sessions)
}

func (r *Room) Run(ctx context.Context) error {
	// room宛のメッセージを購読
	msgCh := r.pubsub.Subscribe(roomTopic(r.ID))
	defer r.pubsub.Unsubscribe(roomTopic(r.ID), msgCh)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "room: running", "roomID", r.ID, "tick", r.tickInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.step(ctx, msgCh)
		}
	}
}

// step は 1 ティック分の処理を行います。受信、アプリケーションの Tick、送信の順です。
func (r *Room) step(ctx context.Context, msgCh <-chan Message) {
RECEIVE_LOOP:
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				break RECEIVE_LOOP
			}
			// Roomの責務に関する処理
			r.HandleMessage(ctx, msg)
			// アプリケーションロジックが担当する
			if err := r.application.HandleMessage(ctx, msg.SessionID, msg.Data); err != nil {
				slog.WarnContext(ctx, "room: handle message failed", "roomID", r.ID, "sessionID", msg.SessionID, "err", err)
			}
		default:
			break RECEIVE_LOOP
		}
	}
	r.application.Tick(ctx)
SEND_LOOP:
	for {
		select {
		case msg := <-r.sendCh:
			r.handleSendMessage(ctx, msg)
		default:
			break SEND_LOOP
		}
	}
}

// HandleMessage はPubSub経由で受信したメッセージを処理し、
// Control/JoinならsessionsにセッションIDを追加、Control/Leaveなら削除する。
func (r *Room) HandleMessage(ctx context.Context, msg Message) {
	if len(msg.Data) < statechange.HeaderSize+statechange.PayloadHeaderSize {
		return
	}
	payloadHeader, err := statechange.ParsePayloadHeader(msg.Data[statechange.HeaderSize:])
	if err != nil {
		return
	}
	if payloadHeader.DataType != statechange.DataTypeControl {
		return
	}
	switch statechange.ControlSubType(payloadHeader.SubType) {
	case statechange.ControlSubTypeJoin:
		r.sessions[msg.SessionID] = struct{}{}
		slog.InfoContext(ctx, "room: session added", "roomID", r.ID, "sessionID", msg.SessionID)
	case statechange.ControlSubTypeLeave:
		delete(r.sessions, msg.SessionID)
		slog.InfoContext(ctx, "room: session removed", "roomID", r.ID, "sessionID", msg.SessionID)
	}
}

func (r *Room) handleSendMessage(ctx context.Context, msg roomSend) {
	switch msg.kind {
	case roomSendBroadcast:
		r.Broadcast(ctx, msg.data)
	case roomSendTo:
		r.SendTo(ctx, msg.sessionID, msg.data)
	case roomSendKick:
		r.Kick(ctx, msg.sessionID)
	default:
	}
}
