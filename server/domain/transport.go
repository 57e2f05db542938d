package domain

import (
	"context"
)

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport

// Transport は Conn（物理接続）が依存するI/O境界です。
type Transport interface {
	Read(ctx context.Context) (data []byte, err error)
	Write(ctx context.Context, data []byte) error
	// Ping は相手に ping を送り、pong を受け取るまで待ちます。
	Ping(ctx context.Context) error
	Close(code int32, reason string) error
}

// 接続を閉じるときのステータスコードです。値は WebSocket の close code に合わせています。
const (
	CloseNormal          int32 = 1000
	CloseGoingAway       int32 = 1001
	ClosePolicyViolation int32 = 1008
)
