package chatclient

import (
	"sort"
	"sync"

	"github.com/campusgig/messaging/internal/domain"
)

// MessageCache is one window's conversation log: ordered by creation time,
// at most one entry per message id.
type MessageCache struct {
	mu       sync.RWMutex
	messages []*domain.Message
	ids      map[string]struct{}
}

func NewMessageCache() *MessageCache {
	return &MessageCache{ids: make(map[string]struct{})}
}

// Replace swaps the whole log, e.g. with a fresh history fetch.
func (c *MessageCache) Replace(msgs []*domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = make([]*domain.Message, 0, len(msgs))
	c.ids = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if c.seen(m) {
			continue
		}
		c.messages = append(c.messages, m)
	}
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreatedAt.Before(c.messages[j].CreatedAt)
	})
}

// Append adds msg unless its id is already cached. A message older than the
// tail is inserted in place so the log stays ordered.
func (c *MessageCache) Append(msg *domain.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen(msg) {
		return false
	}

	i := sort.Search(len(c.messages), func(i int) bool {
		return c.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	c.messages = append(c.messages, nil)
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = msg
	return true
}

// seen records msg's id and reports whether it was already there. Messages
// without an id are never deduplicated.
func (c *MessageCache) seen(msg *domain.Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, ok := c.ids[msg.ID]; ok {
		return true
	}
	c.ids[msg.ID] = struct{}{}
	return false
}

func (c *MessageCache) Messages() []*domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *MessageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
