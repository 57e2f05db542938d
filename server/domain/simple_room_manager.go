package domain

import (
	"context"
	"errors"
	"sync"
)

// ErrNoRoom は割り当て可能なルームがない場合に返されます。
var ErrNoRoom = errors.New("no room available")

// SimpleRoomManager は登録されたルームにセッションを順番に割り当てます。
type SimpleRoomManager struct {
	mu    sync.Mutex
	rooms []RoomID
	next  int
}

// NewSimpleRoomManager は新しいSimpleRoomManagerを作成します。
func NewSimpleRoomManager(rooms ...RoomID) *SimpleRoomManager {
	return &SimpleRoomManager{rooms: rooms}
}

// Add は割り当て先のルームを追加します。
func (m *SimpleRoomManager) Add(id RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = append(m.rooms, id)
}

// GetRoom はセッションに割り当てるルームIDを返します。
func (m *SimpleRoomManager) GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rooms) == 0 {
		return RoomID{}, ErrNoRoom
	}
	id := m.rooms[m.next%len(m.rooms)]
	m.next++
	return id, nil
}
