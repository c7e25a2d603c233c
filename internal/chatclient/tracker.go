package chatclient

import (
	"sync"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/samber/lo"
)

// Snapshot is a consistent view of the tracker after one transition.
type Snapshot struct {
	BySender     map[string]int
	Total        int
	Active       string
	LatestSender string
}

// UnreadTracker counts unread pushes per sender for one signed-in user and
// knows which conversation, if any, is on screen. The badge total is always
// derived from the per-sender map.
type UnreadTracker struct {
	self string

	mu           sync.Mutex
	unread       map[string]int
	active       string
	latestSender string
	listener     func(Snapshot)
}

func NewUnreadTracker(self string) *UnreadTracker {
	return &UnreadTracker{
		self:   self,
		unread: make(map[string]int),
	}
}

// OnChange installs fn to be called after every transition. It replaces any
// previous listener; nil removes it. fn may run while a ChatSession holds its
// lock, so it must not call back into one.
func (t *UnreadTracker) OnChange(fn func(Snapshot)) {
	t.mu.Lock()
	t.listener = fn
	t.mu.Unlock()
}

// PushReceived counts a pushed message addressed to this user, unless its
// sender's conversation is open. Own echoes and messages for others are
// ignored.
func (t *UnreadTracker) PushReceived(msg *domain.Message) {
	if msg == nil || msg.ReceiverID != t.self || msg.SenderID == t.self || msg.SenderID == "" {
		return
	}

	t.mutate(func() bool {
		if t.active == msg.SenderID {
			return false
		}
		t.unread[msg.SenderID]++
		t.latestSender = msg.SenderID
		return true
	})
}

// Open marks userID's conversation as on screen and clears its count.
func (t *UnreadTracker) Open(userID string) {
	t.mutate(func() bool {
		t.active = userID
		delete(t.unread, userID)
		return true
	})
}

// Close clears the open conversation. Counts are left as they are.
func (t *UnreadTracker) Close() {
	t.mutate(func() bool {
		if t.active == "" {
			return false
		}
		t.active = ""
		return true
	})
}

// CloseIf closes only when userID's conversation is the open one, so a
// window closing late cannot clear a newer window's state.
func (t *UnreadTracker) CloseIf(userID string) {
	t.mutate(func() bool {
		if t.active == "" || t.active != userID {
			return false
		}
		t.active = ""
		return true
	})
}

// Reset clears every count.
func (t *UnreadTracker) Reset() {
	t.mutate(func() bool {
		if len(t.unread) == 0 {
			return false
		}
		t.unread = make(map[string]int)
		return true
	})
}

// ResetSender clears one sender's count.
func (t *UnreadTracker) ResetSender(senderID string) {
	t.mutate(func() bool {
		if _, ok := t.unread[senderID]; !ok {
			return false
		}
		delete(t.unread, senderID)
		return true
	})
}

func (t *UnreadTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total()
}

func (t *UnreadTracker) Count(senderID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread[senderID]
}

func (t *UnreadTracker) BySender() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Assign(t.unread)
}

func (t *UnreadTracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *UnreadTracker) LatestSender() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latestSender
}

func (t *UnreadTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *UnreadTracker) total() int {
	return lo.Sum(lo.Values(t.unread))
}

func (t *UnreadTracker) snapshot() Snapshot {
	return Snapshot{
		BySender:     lo.Assign(t.unread),
		Total:        t.total(),
		Active:       t.active,
		LatestSender: t.latestSender,
	}
}

// mutate applies fn under the lock and notifies the listener outside it when
// fn reports a change.
func (t *UnreadTracker) mutate(fn func() bool) {
	t.mu.Lock()
	changed := fn()
	listener := t.listener
	var snap Snapshot
	if changed && listener != nil {
		snap = t.snapshot()
	}
	t.mu.Unlock()

	if changed && listener != nil {
		listener(snap)
	}
}
