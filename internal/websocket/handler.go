package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/campusgig/messaging/internal/middleware"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/transport"
	"github.com/campusgig/messaging/internal/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Deliverer pushes a frame to every session in a user's room, wherever it lives.
type Deliverer interface {
	Deliver(ctx context.Context, userID string, frame []byte) int
}

type Handler struct {
	registry *Registry
	presence Presence
	deliver  Deliverer
}

// NewHandler wires the channel endpoint. p may be nil when rooms are local only.
func NewHandler(registry *Registry, p Presence, d Deliverer) *Handler {
	return &Handler{
		registry: registry,
		presence: p,
		deliver:  d,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP expects the caller to be authenticated upstream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	log := observability.GetLogger(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade error", zap.Error(err))
		return
	}

	session := NewSession(uuid.NewString(), userID, conn)
	session.Start()
	log.Info("connected", zap.String("user_id", userID), zap.String("session_id", session.ID))
	observability.ChannelConnectionsActive.WithLabelValues(observability.ServiceLabel).Inc()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.readLoop(session)
}

func (h *Handler) readLoop(s *Session) {
	ctx := context.Background()
	log := observability.GetLogger(ctx)

	defer func() {
		h.registry.Leave(s)
		s.Close()
		if s.Joined() && h.presence != nil {
			if err := h.presence.Unregister(ctx, s.UserID, s.ID); err != nil {
				log.Error("presence: fail to unregister", zap.String("user_id", s.UserID), zap.String("session_id", s.ID), zap.Error(err))
			}
		}
		log.Info("disconnected", zap.String("user_id", s.UserID), zap.String("session_id", s.ID))
		observability.ChannelConnectionsActive.WithLabelValues(observability.ServiceLabel).Dec()
	}()

	for {
		_, data, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("read loop error", zap.String("user_id", s.UserID), zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
		h.handleFrame(ctx, s, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, s *Session, data []byte) {
	f, err := wire.DecodeFrame(data)
	if err != nil {
		h.sendError(s, "bad_frame", err.Error())
		return
	}

	switch f.Event {
	case wire.EventJoin:
		h.handleJoin(ctx, s, f.Data)
	case wire.EventMessage:
		h.handleMessage(ctx, s, f.Data)
	default:
		observability.GetLogger(ctx).Debug("ignoring unknown event", zap.String("event", f.Event), zap.String("user_id", s.UserID))
	}
}

// handleJoin admits the session to its own user's room only.
func (h *Handler) handleJoin(ctx context.Context, s *Session, data json.RawMessage) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		h.sendError(s, "bad_join", "join expects the user id")
		return
	}
	if room != s.UserID {
		h.sendError(s, "forbidden_room", "can only join your own room")
		return
	}

	if !s.markJoined() {
		return
	}
	h.registry.Join(s)

	if h.presence != nil {
		if err := h.presence.Register(ctx, s.UserID, s.ID); err != nil {
			observability.GetLogger(ctx).Error("error setting presence online", zap.String("user_id", s.UserID), zap.Error(err))
		}
		StartHeartbeat(h.presence, s.UserID, s.ID, s.Done())
	}
}

// handleMessage forwards an emitted message to the receiver's room as-is.
// The sender must be the connection's own user.
func (h *Handler) handleMessage(ctx context.Context, s *Session, data json.RawMessage) {
	var m wire.Message
	if err := json.Unmarshal(data, &m); err != nil {
		h.sendError(s, "bad_message", "invalid message payload")
		return
	}

	msg := m.Normalize()
	if msg.SenderID != s.UserID {
		h.sendError(s, "sender_mismatch", "sender must be the connected user")
		return
	}
	if msg.ReceiverID == "" {
		h.sendError(s, "missing_receiver", "receiver is required")
		return
	}

	frame, err := json.Marshal(wire.Frame{Event: wire.EventMessage, Data: data})
	if err != nil {
		return
	}

	n := h.deliver.Deliver(ctx, msg.ReceiverID, frame)
	observability.GetLogger(ctx).Debug("message pushed",
		zap.String("message_id", msg.ID),
		zap.String("receiver_id", msg.ReceiverID),
		zap.Int("targets", n),
	)
}

func (h *Handler) sendError(s *Session, code, message string) {
	s.Emit(wire.EventError, wire.ErrorPayload{Code: code, Message: message})
}
