// Package statechange はレプリカ間で交換するリクエスト、レスポンス、イベントの DTO です。
// フィールドは整数、文字列、小さな列挙型だけで構成します。
package statechange

import (
	"errors"
	"fmt"

	"github.com/touka-aoi/snakey/game/floor"
)

// ErrInvalidRequest はリクエストの形式が不正な場合に返されます。
var ErrInvalidRequest = errors.New("statechange: invalid request")

// PlayerID はプレイヤーの識別子です。人間は正、ボットは負、0 は「なし」です。
type PlayerID int

const NoPlayer PlayerID = 0

func (id PlayerID) IsHuman() bool { return id > 0 }
func (id PlayerID) IsBot() bool   { return id < 0 }

type MoveType uint8

const (
	MoveNormal MoveType = iota
	MoveBoost
)

func (t MoveType) String() string {
	switch t {
	case MoveNormal:
		return "normal"
	case MoveBoost:
		return "boost"
	default:
		return fmt.Sprintf("MoveType(%d)", uint8(t))
	}
}

// TileChange はタイルの変更後の状態です。
// Coord が floor.BenchPoint の場合はイベントを起こしたプレイヤーのベンチを指します。
type TileChange struct {
	Coord      floor.Point `msgpack:"coord" json:"coord"`
	Generation int         `msgpack:"gen" json:"generation"`
	Occupant   PlayerID    `msgpack:"occ" json:"occupant"`
	Char       string      `msgpack:"char" json:"char"`
	Seq        string      `msgpack:"seq" json:"seq"`
	ScoreValue int         `msgpack:"score" json:"scoreValue"`
}

// MoveRequest は移動要求です。PlayerNow は要求者が認識している最後に受理された要求番号です。
type MoveRequest struct {
	PlayerID       PlayerID    `msgpack:"pid"`
	PlayerNow      int         `msgpack:"now"`
	MoveType       MoveType    `msgpack:"type"`
	Dest           floor.Point `msgpack:"dest"`
	DestGeneration int         `msgpack:"destGen"`
}

func (r *MoveRequest) Validate() error {
	if r.PlayerID == NoPlayer {
		return fmt.Errorf("%w: player id is required", ErrInvalidRequest)
	}
	if r.PlayerNow < 0 {
		return fmt.Errorf("%w: negative request counter %d", ErrInvalidRequest, r.PlayerNow)
	}
	if r.MoveType > MoveBoost {
		return fmt.Errorf("%w: unknown move type %s", ErrInvalidRequest, r.MoveType)
	}
	if r.DestGeneration < 0 {
		return fmt.Errorf("%w: negative destination generation %d", ErrInvalidRequest, r.DestGeneration)
	}
	return nil
}

// MoveResponse はマネージャが移動要求に対して返す結果です。
// EventID が nil の場合は拒否を表し、Dest には要求された座標だけが入ります。
type MoveResponse struct {
	EventID         *int         `msgpack:"eid"`
	PlayerID        PlayerID     `msgpack:"pid"`
	PlayerNow       int          `msgpack:"now"`
	MoveType        MoveType     `msgpack:"type"`
	Dest            TileChange   `msgpack:"dest"`
	Tiles           []TileChange `msgpack:"tiles"`
	PlayerScore     int          `msgpack:"score"`
	PlayerStockpile int          `msgpack:"stock"`
}

func (r *MoveResponse) IsReject() bool { return r.EventID == nil }

// BubbleRequest はバブルの発動要求です。
type BubbleRequest struct {
	PlayerID  PlayerID `msgpack:"pid"`
	PlayerNow int      `msgpack:"now"`
}

func (r *BubbleRequest) Validate() error {
	if r.PlayerID == NoPlayer {
		return fmt.Errorf("%w: player id is required", ErrInvalidRequest)
	}
	if r.PlayerNow < 0 {
		return fmt.Errorf("%w: negative request counter %d", ErrInvalidRequest, r.PlayerNow)
	}
	return nil
}

// BubbleResponse はバブル発動要求の結果です。
type BubbleResponse struct {
	EventID    *int     `msgpack:"eid"`
	PlayerID   PlayerID `msgpack:"pid"`
	PlayerNow  int      `msgpack:"now"`
	DurationMs int      `msgpack:"dur"`
	// Clamped は持続時間が上限で切り詰められたかどうかです。
	Clamped         bool `msgpack:"clamped"`
	PlayerStockpile int  `msgpack:"stock"`
}

func (r *BubbleResponse) IsReject() bool { return r.EventID == nil }

type FreezeEntry struct {
	PlayerID   PlayerID `msgpack:"pid"`
	DurationMs int      `msgpack:"dur"`
}

// BubblePop はバブルが弾けたときのマネージャイベントです。
type BubblePop struct {
	EventID   int           `msgpack:"eid"`
	BubblerID PlayerID      `msgpack:"pid"`
	Downed    []PlayerID    `msgpack:"downed"`
	Frozen    []FreezeEntry `msgpack:"frozen"`
	Raised    []PlayerID    `msgpack:"raised"`
}

// Unfreeze は凍結の解除を表すマネージャイベントです。
type Unfreeze struct {
	EventID  int      `msgpack:"eid"`
	PlayerID PlayerID `msgpack:"pid"`
}

// PlayerState はプレイヤーの複製可能な全状態です。
type PlayerState struct {
	ID              PlayerID    `msgpack:"id" json:"id"`
	Name            string      `msgpack:"name" json:"name"`
	Team            int         `msgpack:"team" json:"team"`
	Coord           floor.Point `msgpack:"coord" json:"coord"`
	Score           int         `msgpack:"score" json:"score"`
	Stockpile       int         `msgpack:"stock" json:"stockpile"`
	Health          int         `msgpack:"hp" json:"health"`
	LastAccepted    int         `msgpack:"last" json:"lastAccepted"`
	IsDowned        bool        `msgpack:"downed" json:"isDowned"`
	IsBubbling      bool        `msgpack:"bubbling" json:"isBubbling"`
	IsFrozen        bool        `msgpack:"frozen" json:"isFrozen"`
	BenchGeneration int         `msgpack:"benchGen" json:"benchGeneration"`
}

// PlayerJoin はプレイヤーの参加です。イベント ID を消費せず、重複して適用しても結果は同じです。
type PlayerJoin struct {
	Player PlayerState `msgpack:"player"`
	Spawn  TileChange  `msgpack:"spawn"`
}

// PlayerLeave はプレイヤーの退出です。Vacated は空いたタイルの新しい状態です。
type PlayerLeave struct {
	PlayerID PlayerID   `msgpack:"pid"`
	Vacated  TileChange `msgpack:"vacated"`
}

// Snapshot は途中参加者とリセット時に送るゲーム全体の状態です。
type Snapshot struct {
	System      floor.System  `msgpack:"sys" json:"system"`
	Width       int           `msgpack:"w" json:"width"`
	Height      int           `msgpack:"h" json:"height"`
	NextEventID int           `msgpack:"next" json:"nextEventId"`
	Tiles       []TileChange  `msgpack:"tiles" json:"tiles"`
	Players     []PlayerState `msgpack:"players" json:"players"`
}

// Hello はクライアントが接続直後に送る参加要求です。
type Hello struct {
	Name string `msgpack:"name"`
	Team int    `msgpack:"team"`
}

func (h *Hello) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if h.Team < 0 {
		return fmt.Errorf("%w: negative team %d", ErrInvalidRequest, h.Team)
	}
	return nil
}

// Welcome は参加を受け付けたセッションだけに送られます。
type Welcome struct {
	PlayerID PlayerID `msgpack:"pid"`
	// Lang は入力の正規化に使う言語のカタログ ID です。
	Lang     string   `msgpack:"lang"`
	Snapshot Snapshot `msgpack:"snapshot"`
}

type ErrorMessage struct {
	Code    string `msgpack:"code"`
	Message string `msgpack:"msg"`
}
