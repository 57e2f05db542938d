package domain

import "context"

// Outbox はアプリケーションがルームに送信を依頼するための口です。
// 依頼された送信は同じティックの最後にまとめて配送されます。
type Outbox interface {
	EnqueueBroadcast(ctx context.Context, data []byte) error
	EnqueueSendTo(ctx context.Context, sessionID SessionID, data []byte) error
	EnqueueKick(ctx context.Context, sessionID SessionID) error
}

// Application はルームに載るアプリケーションロジックです。
// 全てのメソッドはルームのゴルーチンから呼び出されます。
type Application interface {
	// Bind はルームの Outbox を受け取ります。NewRoom から一度だけ呼ばれます。
	Bind(out Outbox)
	// HandleMessage はセッションから届いたフレームを処理します。制御フレームも渡されます。
	HandleMessage(ctx context.Context, sessionID SessionID, data []byte) error
	// Tick はティックごとに呼ばれます。
	Tick(ctx context.Context)
}

var _ Outbox = (*Room)(nil)
