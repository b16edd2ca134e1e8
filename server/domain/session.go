package domain

import (
	"sync/atomic"
	"time"
)

// Session は1接続の論理的な接続状態を表す構造体です。
type Session struct {
	id SessionID

	// activity
	lastRead  atomic.Int64
	lastWrite atomic.Int64
	lastPong  atomic.Int64

	// 送信キューが溢れた。以降の配送順序を保証できない
	backlog atomic.Bool

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

func (s *Session) ID() SessionID { return s.id }

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
}

func (s *Session) TouchPong() {
	s.lastPong.Store(time.Now().UnixNano())
}

// MarkBacklog は送信が追いつかなくなったことを記録します。次の監視で切断されます。
func (s *Session) MarkBacklog() {
	s.backlog.Store(true)
}

// HasBacklog は送信キューが溢れたことがあるかを返します。
func (s *Session) HasBacklog() bool {
	return s.backlog.Load()
}

// Close はセッションを閉じます。最初の呼び出しのみtrueを返します。
func (s *Session) Close() bool {
	return s.closed.CompareAndSwap(false, true)
}

// IsIdle は読み込み・書き込み・pongのいずれかがtimeoutを超えて途絶えているかを返します。
// 送信キューの溢れはタイムアウトの設定に関係なく常に切断理由になります。
func (s *Session) IsIdle(timeout time.Duration) (bool, IdleReason) {
	var reason IdleReason
	if s.backlog.Load() {
		reason |= IdleBacklog
	}
	if timeout <= 0 {
		if reason != IdleNone {
			return true, reason
		}
		return false, IdleDisabled
	}
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

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

func isIdleSince(last time.Time, timeout time.Duration) bool {
	return time.Since(last) > timeout
}

func unixNanoToTime(nano int64) time.Time {
	return time.Unix(0, nano)
}
