package application

import (
	"slices"
	"strings"
	"sync"

	"github.com/touka-aoi/snakey/game/statechange"
	"github.com/touka-aoi/snakey/server/domain"
)

// Store はルームごとの最新スナップショットを保持します。
// ゲーム状態はルームのゴルーチンだけが触るので、他のゴルーチンはここから読みます。
type Store struct {
	mu        sync.RWMutex
	snapshots map[domain.RoomID]*statechange.Snapshot
}

func NewStore() *Store {
	return &Store{snapshots: make(map[domain.RoomID]*statechange.Snapshot)}
}

// Put はスナップショットを置き換えます。渡したスナップショットは以後変更しないでください。
func (s *Store) Put(id domain.RoomID, snap *statechange.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = snap
}

func (s *Store) Get(id domain.RoomID) (*statechange.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}

// Rooms はスナップショットを持つルームを文字列順に返します。
func (s *Store) Rooms() []domain.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.RoomID, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b domain.RoomID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}
