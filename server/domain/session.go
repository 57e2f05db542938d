package domain

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"sync/atomic"
	"time"
)

type SessionID string

// NewSessionID は暗号学的に安全なSessionIDを生成する
func NewSessionID() SessionID {
	var b [16]byte
	rand.Read(b[:])
	return SessionID(base64.RawURLEncoding.EncodeToString(b[:]))
}

// Bytes はSessionIDを16バイトのバイト列に変換する
// SessionIDは常にNewSessionID()で生成されるため、デコードエラーは発生しない。
func (id SessionID) Bytes() [16]byte {
	var b [16]byte
	decoded, _ := base64.RawURLEncoding.DecodeString(string(id))
	copy(b[:], decoded)
	return b
}

// SessionIDFromBytes はバイト列からSessionIDを生成する
func SessionIDFromBytes(b [16]byte) SessionID {
	return SessionID(base64.RawURLEncoding.EncodeToString(b[:]))
}

func (id SessionID) String() string { return string(id) }

// IdleReason はセッションがアイドルと判定された理由のビット集合です。
type IdleReason uint8

const IdleNone IdleReason = 0

const (
	IdleRead IdleReason = 1 << iota
	IdleWrite
	IdlePong
	// IdleDisabled はタイムアウトが無効であることを表します。
	IdleDisabled
)

func (r IdleReason) String() string {
	if r == IdleNone {
		return "none"
	}
	var parts []string
	if r&IdleRead != 0 {
		parts = append(parts, "read")
	}
	if r&IdleWrite != 0 {
		parts = append(parts, "write")
	}
	if r&IdlePong != 0 {
		parts = append(parts, "pong")
	}
	if r&IdleDisabled != 0 {
		parts = append(parts, "disabled")
	}
	return "idle(" + strings.Join(parts, "|") + ")"
}

// Session は1接続の論理的な接続状態を表す構造体です。
type Session struct {
	id SessionID

	// activity
	lastRead  atomic.Int64
	lastWrite atomic.Int64
	lastPong  atomic.Int64

	// lifecycle
	closed atomic.Bool
}

func NewSession() *Session {
	s := &Session{
		id: NewSessionID(),
	}
	now := time.Now().UnixNano()
	s.lastRead.Store(now)
	s.lastWrite.Store(now)
	s.lastPong.Store(now)
	return s
}

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
}

func (s *Session) TouchPong() {
	s.lastPong.Store(time.Now().UnixNano())
}

func (s *Session) Close() bool {
	return s.closed.CompareAndSwap(false, true)
}

func (s *Session) IsIdle(timeout time.Duration) (bool, IdleReason) {
	if timeout <= 0 {
		return false, IdleDisabled
	}
	var reason IdleReason
	if s.IsReadIdle(timeout) {
		reason |= IdleRead
	}
	if s.IsWriteIdle(timeout) {
		reason |= IdleWrite
	}
	if s.IsPongIdle(timeout) {
		reason |= IdlePong
	}
	return reason != IdleNone, reason
}

func (s *Session) IsReadIdle(timeout time.Duration) bool {
	return isIdleSince(unixNanoToTime(s.lastRead.Load()), timeout)
}

func (s *Session) IsWriteIdle(timeout time.Duration) bool {
	return isIdleSince(unixNanoToTime(s.lastWrite.Load()), timeout)
}

func (s *Session) IsPongIdle(timeout time.Duration) bool {
	return isIdleSince(unixNanoToTime(s.lastPong.Load()), timeout)
}

func (s *Session) ID() SessionID {
	return s.id
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

func isIdleSince(last time.Time, timeout time.Duration) bool {
	return time.Since(last) > timeout
}

func unixNanoToTime(nano int64) time.Time {
	return time.Unix(0, nano)
}
