package domain

import "context"

//go:generate go tool mockgen -destination=./mocks/room_manager_mock.go -package=mocks . RoomManager

// RoomManager は接続してきたセッションの参加先ルームを決めます。
type RoomManager interface {
	// GetRoom はセッションの参加先を返します。参加できるルームがなければ ErrNoRoom を返します。
	GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error)
}
