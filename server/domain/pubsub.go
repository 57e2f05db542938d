package domain

import "context"

//go:generate go tool mockgen -destination=./mocks/pubsub_mock.go -package=mocks . PubSub

// Topic は配送先の名前です。ルームの受信箱は "room:<id>"、セッションへの送信は "session:<id>"、
// セッションへの制御は "session:<id>:ctrl" です。
type Topic string

// Message は配送されるフレームです。SessionID はルームへ届くメッセージでは送信元を表します。
type Message struct {
	SessionID SessionID
	Data      []byte
}

// PubSub はルームとセッションの間でフレームを配送します。
type PubSub interface {
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)

	// Publish は購読者へ配送します。詰まっている購読者への配送は捨てられます。
	Publish(ctx context.Context, topic Topic, msg Message)
}
