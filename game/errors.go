package game

import (
	"errors"

	"github.com/touka-aoi/snakey/game/statechange"
)

var (
	// ErrUnknownPlayer は存在しないプレイヤー ID が指定された場合に返されます。
	ErrUnknownPlayer = errors.New("game: unknown player")

	// ErrPlayerExists は同じ ID のプレイヤーが既に参加している場合に返されます。
	ErrPlayerExists = errors.New("game: player already exists")

	// ErrSequenceViolation は要求番号の食い違いか、処理中の要求がある状態での再要求です。
	ErrSequenceViolation = errors.New("game: request sequence violation")

	// ErrDuplicateEvent は同じイベント ID を二度記録しようとした場合に返されます。
	ErrDuplicateEvent = errors.New("game: duplicate event")

	// ErrProtocolViolation はローカルプレイヤーの要求番号が壊れている場合に返されます。
	ErrProtocolViolation = errors.New("game: protocol violation")

	// ErrNotManager はマネージャでしか実行できない操作をビューアで呼んだ場合に返されます。
	ErrNotManager = errors.New("game: operation requires the manager replica")

	// ErrInvalidRequest はリクエストの形式が不正な場合に返されます。
	ErrInvalidRequest = statechange.ErrInvalidRequest
)

// IsFatal はセッションを破棄すべきプロトコルエラーかどうかを判定します。
func IsFatal(err error) bool {
	return errors.Is(err, ErrSequenceViolation) ||
		errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, ErrProtocolViolation)
}
