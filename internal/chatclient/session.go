package chatclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/campusgig/messaging/internal/config"
	"github.com/campusgig/messaging/internal/observability"
	"go.uber.org/zap"
)

// Session is the per-login context: the one channel connection and the one
// unread tracker, shared by every chat window opened from it.
type Session struct {
	UserID  string
	Channel *Channel
	API     *API
	Tracker *UnreadTracker

	listenOnce sync.Once
	stopListen func()
	mu         sync.Mutex
}

func NewSession(cfg *config.ClientConfig, token string) (*Session, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	ch, err := NewChannel(cfg.ChannelURL, token, cfg.UserID)
	if err != nil {
		return nil, err
	}

	return &Session{
		UserID:  cfg.UserID,
		Channel: ch,
		API:     NewAPI(cfg.APIURL, token, nil),
		Tracker: NewUnreadTracker(cfg.UserID),
	}, nil
}

// Start connects the channel and installs the global unread listener. The
// listener is installed at most once per session however often Start runs.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Channel.Connect(ctx); err != nil {
		return err
	}

	s.listenOnce.Do(func() {
		stop := s.Channel.Subscribe(nil, s.Tracker.PushReceived)
		s.mu.Lock()
		s.stopListen = stop
		s.mu.Unlock()
	})
	return nil
}

// OpenChat creates a window bound to this session's channel and tracker.
func (s *Session) OpenChat() *ChatSession {
	return NewChatSession(s.UserID, s.API, s.Channel, s.Tracker)
}

// Logout drops the connection and forgets all unread state. Like
// Channel.Close it must not be called from a push handler.
func (s *Session) Logout() {
	s.mu.Lock()
	stop := s.stopListen
	s.stopListen = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if err := s.Channel.Close(); err != nil {
		observability.GetLogger(context.Background()).Debug("channel close", zap.Error(err))
	}
	s.Tracker.Close()
	s.Tracker.Reset()
}
