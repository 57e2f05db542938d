package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"github.com/touka-aoi/snakey/server/domain"
)

// ErrUnexpectedMessageType はテキストメッセージを受信した場合に返されます。フレームはバイナリのみです。
var ErrUnexpectedMessageType = errors.New("handler: unexpected websocket message type")

// wsTransport は coder/websocket の接続を domain.Transport として扱います。
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessageType, typ)
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

var _ domain.Transport = (*wsTransport)(nil)
