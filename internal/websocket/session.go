package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	SendQueueSize = 128
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameSize  = 64 * 1024
)

// Session is one client connection. UserID is the authenticated identity;
// the session receives pushes only after it joined that user's room.
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	Conn      *websocket.Conn
	SendQueue chan []byte

	done   chan struct{}
	closed atomic.Bool
	joined atomic.Bool
	queued atomic.Int64
}

func NewSession(id, userID string, conn *websocket.Conn) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		Conn:        conn,
		SendQueue:   make(chan []byte, SendQueueSize),
		done:        make(chan struct{}),
	}
}

func (s *Session) Start() {
	go s.pump()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Joined() bool {
	return s.joined.Load()
}

// Queued is the number of frames accepted for this session so far.
func (s *Session) Queued() int64 {
	return s.queued.Load()
}

// markJoined reports whether this call performed the join.
func (s *Session) markJoined() bool {
	return s.joined.CompareAndSwap(false, true)
}

func (s *Session) fields(extra ...zap.Field) []zap.Field {
	return append([]zap.Field{zap.String("user_id", s.UserID), zap.String("session_id", s.ID)}, extra...)
}

// Emit encodes an event frame and queues it.
func (s *Session) Emit(event string, payload any) bool {
	frame, err := wire.NewFrame(event, payload)
	if err != nil {
		observability.GetLogger(context.Background()).Error("session: encode frame", s.fields(zap.String("event", event), zap.Error(err))...)
		return false
	}
	return s.TrySend(frame)
}

// TrySend queues an encoded frame without blocking. A slow reader whose
// queue is full loses the connection rather than stalling the sender.
func (s *Session) TrySend(frame []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.SendQueue <- frame:
		s.queued.Add(1)
		return true
	default:
		observability.GetLogger(context.Background()).Warn("session: send queue full, dropping connection", s.fields()...)
		s.CloseWithReason(websocket.CloseTryAgainLater, "send queue full")
		return false
	}
}

func (s *Session) Close() {
	s.CloseWithReason(websocket.CloseNormalClosure, "server closing")
}

func (s *Session) CloseWithReason(code int, reason string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	observability.GetLogger(context.Background()).Debug("session: closed",
		s.fields(zap.Int("code", code), zap.String("reason", reason), zap.Duration("lifetime", time.Since(s.ConnectedAt)))...)

	if s.Conn == nil {
		return
	}
	_ = s.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = s.Conn.Close()
}

func (s *Session) write(kind int, data []byte) error {
	_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.Conn.WriteMessage(kind, data)
}

// pump is the only writer on Conn besides CloseWithReason's control frame.
func (s *Session) pump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.Close()

	log := observability.GetLogger(context.Background())
	for {
		var err error
		select {
		case <-s.done:
			return
		case frame := <-s.SendQueue:
			err = s.write(websocket.TextMessage, frame)
		case <-ticker.C:
			err = s.write(websocket.PingMessage, nil)
		}
		if err != nil {
			log.Debug("session: write failed", s.fields(zap.Error(err))...)
			return
		}
	}
}
