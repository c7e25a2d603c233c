package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Predicate selects which pushed messages a subscriber sees.
type Predicate func(*domain.Message) bool

// Handler receives a pushed message in its normalized form.
type Handler func(*domain.Message)

type subscription struct {
	pred    Predicate
	handler Handler
}

// Channel is the client's single connection to the event channel. Pushes are
// read by one goroutine and handed to subscribers one at a time, in
// subscription order.
type Channel struct {
	endpoint string
	token    string
	userID   string
	dialer   *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	done       chan struct{}
	connecting chan struct{}
	epoch      uint64
	subs       map[uint64]subscription
	nextID     uint64

	writeMu sync.Mutex
}

// NewChannel prepares a channel for userID against the base URL, e.g.
// http://localhost:3001. Nothing is dialed until Connect.
func NewChannel(baseURL, token, userID string) (*Channel, error) {
	endpoint, err := channelEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	return &Channel{
		endpoint: endpoint,
		token:    token,
		userID:   userID,
		dialer:   websocket.DefaultDialer,
		subs:     make(map[uint64]subscription),
	}, nil
}

func channelEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid channel url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid channel url %q: unsupported scheme", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Connect dials and joins the caller's room. Calling it on a live channel
// returns immediately and concurrent callers share one dial: there is never
// more than one connection. The dial runs without holding the channel's
// lock, so Subscribe and pushes are not held up by it.
func (c *Channel) Connect(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.conn != nil {
			c.mu.Unlock()
			return nil
		}
		if wait := c.connecting; wait != nil {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return fmt.Errorf("%w: connect channel: %w", domain.ErrNetwork, ctx.Err())
			}
		}
		wait := make(chan struct{})
		c.connecting = wait
		epoch := c.epoch
		c.mu.Unlock()

		conn, err := c.dial(ctx)

		c.mu.Lock()
		c.connecting = nil
		if err == nil && epoch != c.epoch {
			// Close ran while dialing.
			_ = conn.Close()
			err = fmt.Errorf("%w: closed while connecting", domain.ErrChannel)
		}
		if err == nil {
			c.conn = conn
			c.done = make(chan struct{})
			go c.readLoop(conn, c.done)
		}
		c.mu.Unlock()
		close(wait)

		if err == nil {
			observability.GetLogger(ctx).Info("channel connected", zap.String("user_id", c.userID))
		}
		return err
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: connect channel: %v", domain.ErrNetwork, err)
	}

	join, err := wire.NewFrame(wire.EventJoin, c.userID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: join room: %v", domain.ErrNetwork, err)
	}
	return conn, nil
}

// Connected reports whether a connection is live.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends one event. It does not wait for any acknowledgement. Failures
// wrap domain.ErrChannel.
func (c *Channel) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%w: not connected", domain.ErrChannel)
	}

	frame, err := wire.NewFrame(event, payload)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: emit %s: %w", domain.ErrChannel, event, err)
	}
	return nil
}

// EmitMessage notifies the counterpart's clients of a persisted message.
func (c *Channel) EmitMessage(ctx context.Context, msg *domain.Message) error {
	return c.Emit(ctx, wire.EventMessage, wire.FromDomain(msg))
}

// Subscribe registers handler for pushes matching pred. A nil pred matches
// everything. The returned func removes the subscription and is safe to call
// more than once.
func (c *Channel) Subscribe(pred Predicate, handler Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = subscription{pred: pred, handler: handler}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Close tears the connection down and waits for the reader to exit.
// Subscriptions are kept. It must not be called from a subscriber handler:
// handlers run on the reader goroutine it waits for.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.epoch++
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	<-done
	return err
}

func (c *Channel) readLoop(conn *websocket.Conn, done chan struct{}) {
	log := observability.GetLogger(context.Background())
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("channel read failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		f, err := wire.DecodeFrame(data)
		if err != nil {
			log.Warn("channel: dropping malformed frame", zap.Error(err))
			continue
		}

		switch f.Event {
		case wire.EventMessage:
			var m wire.Message
			if err := json.Unmarshal(f.Data, &m); err != nil {
				log.Warn("channel: dropping malformed message", zap.Error(err))
				continue
			}
			c.dispatch(m.Normalize())
		case wire.EventError:
			var p wire.ErrorPayload
			_ = json.Unmarshal(f.Data, &p)
			log.Warn("channel: server rejected event", zap.String("code", p.Code), zap.String("message", p.Message))
		}
	}
}

func (c *Channel) dispatch(msg *domain.Message) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]subscription, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, c.subs[id])
	}
	c.mu.Unlock()

	for _, s := range subs {
		if s.pred == nil || s.pred(msg) {
			s.handler(msg)
		}
	}
}
