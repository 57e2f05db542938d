package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/touka-aoi/snakey/server/application"
	"github.com/touka-aoi/snakey/server/domain"
	"github.com/touka-aoi/snakey/server/handler"
)

// Resetter はゲームのリセットを受け付けるルームのアプリケーションです。
type Resetter interface {
	RequestReset()
}

// StatsReporter は配送の統計を返す PubSub です。
type StatsReporter interface {
	Stats() domain.PubSubStats
}

// Deps はルーティングに必要な依存です。PubSubStats が nil なら /pubsub は登録しません。
type Deps struct {
	PubSub      domain.PubSub
	RoomManager domain.RoomManager
	Store       *application.Store
	Metrics     *application.MemoryMetrics
	Rooms       map[domain.RoomID]Resetter
	AcceptOpts  []handler.AcceptOption
	PubSubStats StatsReporter
}

func Route(deps Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler.NewAcceptHandler(deps.PubSub, deps.RoomManager, deps.AcceptOpts...))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveRoom(w, r, deps.Store.Rooms())
		if !ok {
			return
		}
		snap, ok := deps.Store.Get(id)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, r, snap)
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, deps.Metrics.Snapshot())
	})
	if deps.PubSubStats != nil {
		mux.HandleFunc("GET /pubsub", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, r, deps.PubSubStats.Stats())
		})
	}
	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveRoom(w, r, deps.Store.Rooms())
		if !ok {
			return
		}
		room, ok := deps.Rooms[id]
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		room.RequestReset()
		slog.InfoContext(r.Context(), "server: reset requested", "roomID", id)
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

// resolveRoom は room クエリのルームを返します。省略時はルームが 1 つだけならそれを使います。
func resolveRoom(w http.ResponseWriter, r *http.Request, rooms []domain.RoomID) (domain.RoomID, bool) {
	q := r.URL.Query().Get("room")
	if q == "" {
		if len(rooms) != 1 {
			http.Error(w, "room parameter required", http.StatusBadRequest)
			return domain.RoomID{}, false
		}
		return rooms[0], true
	}
	id, err := domain.ParseRoomID(q)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return domain.RoomID{}, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(r.Context(), "server: encode response failed", "err", err)
	}
}
