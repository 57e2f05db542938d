package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/touka-aoi/snakey/game/statechange"
	"github.com/touka-aoi/snakey/server/domain"
)

// AcceptHandler は WebSocket 接続を受け付け、セッションエンドポイントとして走らせます。
type AcceptHandler struct {
	pubsub         domain.PubSub
	roomManager    domain.RoomManager
	originPatterns []string
	endpointOpts   []domain.EndpointOption
}

type AcceptOption func(*AcceptHandler)

// WithOriginPatterns は許可するオリジンを指定します。
func WithOriginPatterns(patterns ...string) AcceptOption {
	return func(h *AcceptHandler) { h.originPatterns = patterns }
}

// WithEndpointOptions はセッションエンドポイントに渡すオプションを指定します。
func WithEndpointOptions(opts ...domain.EndpointOption) AcceptOption {
	return func(h *AcceptHandler) { h.endpointOpts = opts }
}

func NewAcceptHandler(pubsub domain.PubSub, roomManager domain.RoomManager, opts ...AcceptOption) *AcceptHandler {
	h := &AcceptHandler{pubsub: pubsub, roomManager: roomManager}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.ErrorContext(ctx, "handler: failed to accept websocket connection", "err", err)
		return
	}
	conn.SetReadLimit(statechange.HeaderSize + statechange.MaxFrameSize)

	session := domain.NewSession()
	se, err := domain.NewSessionEndpoint(session, domain.NewConnection(newWSTransport(conn)), h.pubsub, h.roomManager, h.endpointOpts...)
	if err != nil {
		slog.ErrorContext(ctx, "handler: failed to create session endpoint", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}
	slog.InfoContext(ctx, "handler: session accepted", "sessionID", session.ID(), "remote", r.RemoteAddr)
	if err := se.Run(); err != nil {
		slog.WarnContext(ctx, "handler: session ended with error", "sessionID", session.ID(), "err", err)
		return
	}
	slog.InfoContext(ctx, "handler: session closed", "sessionID", session.ID())
}
