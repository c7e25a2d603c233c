package chatclient

import (
	"context"
	"sync"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/observability"
	"go.uber.org/zap"
)

// MessageAPI is the request/response store used by a chat window.
type MessageAPI interface {
	FetchHistory(ctx context.Context, counterpartID string) ([]*domain.Message, error)
	Send(ctx context.Context, receiverID, content string) (*domain.Message, error)
}

// EventChannel is the push side used by a chat window.
type EventChannel interface {
	Subscribe(pred Predicate, handler Handler) func()
	EmitMessage(ctx context.Context, msg *domain.Message) error
}

// ChatSession binds one chat window to one counterpart at a time.
type ChatSession struct {
	self    string
	api     MessageAPI
	channel EventChannel
	tracker *UnreadTracker
	cache   *MessageCache

	mu          sync.Mutex
	counterpart string
	generation  uint64
	unsubscribe func()
	fetching    bool
	pending     []*domain.Message
}

// NewChatSession builds a window for self. tracker may be nil.
func NewChatSession(self string, api MessageAPI, channel EventChannel, tracker *UnreadTracker) *ChatSession {
	return &ChatSession{
		self:    self,
		api:     api,
		channel: channel,
		tracker: tracker,
		cache:   NewMessageCache(),
	}
}

// Open binds the window to counterpartID: the cache is replaced by the
// fetched history, and pushes between the two users are appended from then
// on. Pushes that arrive while the fetch is in flight are merged into the
// result. A response that comes back after the window moved on is dropped.
func (c *ChatSession) Open(ctx context.Context, counterpartID string) error {
	if counterpartID == "" {
		return domain.ErrMissingCounterpart
	}

	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.generation++
	gen := c.generation
	c.counterpart = counterpartID
	c.fetching = true
	c.pending = nil
	c.cache.Replace(nil)
	c.unsubscribe = c.channel.Subscribe(
		func(m *domain.Message) bool { return m.Between(c.self, counterpartID) },
		func(m *domain.Message) { c.onPush(gen, m) },
	)
	// Under c.mu so overlapping opens leave the tracker on the window's
	// final counterpart.
	if c.tracker != nil {
		c.tracker.Open(counterpartID)
	}
	c.mu.Unlock()

	history, err := c.api.FetchHistory(ctx, counterpartID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		observability.GetLogger(ctx).Debug("discarding stale history",
			zap.String("counterpart_id", counterpartID))
		return nil
	}

	c.fetching = false
	pending := c.pending
	c.pending = nil

	if err != nil {
		for _, m := range pending {
			c.cache.Append(m)
		}
		return err
	}

	c.cache.Replace(history)
	for _, m := range pending {
		c.cache.Append(m)
	}
	return nil
}

func (c *ChatSession) onPush(gen uint64, msg *domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	if c.fetching {
		c.pending = append(c.pending, msg)
		return
	}
	c.cache.Append(msg)
}

// Send persists text to the open counterpart, echoes the stored message into
// the cache and then notifies the channel. Blank text is a no-op and returns
// nil, nil. If persisting fails nothing is echoed or emitted. An emit failure
// keeps the echo and returns an error wrapping domain.ErrChannel.
func (c *ChatSession) Send(ctx context.Context, text string) (*domain.Message, error) {
	if domain.IsBlank(text) {
		return nil, nil
	}

	c.mu.Lock()
	counterpart, gen := c.counterpart, c.generation
	c.mu.Unlock()

	if counterpart == "" {
		return nil, domain.ErrMissingReceiver
	}

	msg, err := c.api.Send(ctx, counterpart, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if gen == c.generation {
		c.cache.Append(msg)
		if c.fetching {
			// The landing history replaces the cache; keep the echo for the merge.
			c.pending = append(c.pending, msg)
		}
	}
	c.mu.Unlock()

	if err := c.channel.EmitMessage(ctx, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// Close stops listening for pushes. The cache is kept until the next Open.
func (c *ChatSession) Close() {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	counterpart := c.counterpart
	c.counterpart = ""
	c.generation++
	c.fetching = false
	c.pending = nil
	if c.tracker != nil && counterpart != "" {
		c.tracker.CloseIf(counterpart)
	}
	c.mu.Unlock()
}

func (c *ChatSession) Counterpart() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counterpart
}

func (c *ChatSession) Messages() []*domain.Message {
	return c.cache.Messages()
}
