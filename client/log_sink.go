package client

import (
	"log/slog"

	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

// LogSink は画面を持たないクライアント向けに通知をログへ流す game.Sink です。
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSink) OnTileChanged(tile floor.Tile) {
	s.logger().Debug("view: tile changed", "point", tile.Point(), "char", tile.Char, "seq", tile.Seq,
		"occupant", tile.Occupant, "score", tile.ScoreValue)
}

func (s LogSink) OnPlayerMoved(id game.PlayerID, from, to floor.Point) {
	s.logger().Info("view: player moved", "playerID", id, "from", from, "to", to)
}

func (s LogSink) OnRequestRejected(id game.PlayerID) {
	s.logger().Info("view: request rejected", "playerID", id)
}

func (s LogSink) OnPlayerStatusChanged(st statechange.PlayerState) {
	s.logger().Info("view: player status", "playerID", st.ID, "score", st.Score, "stockpile", st.Stockpile,
		"downed", st.IsDowned, "bubbling", st.IsBubbling, "frozen", st.IsFrozen)
}

var _ game.Sink = LogSink{}
