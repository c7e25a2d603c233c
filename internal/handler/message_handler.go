package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/campusgig/messaging/internal/application"
	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/middleware"
	"github.com/campusgig/messaging/internal/transport"
	"github.com/campusgig/messaging/internal/wire"
	"github.com/samber/lo"
)

type MessageService interface {
	SendMessage(ctx context.Context, cmd application.SendMessageCommand) (*domain.Message, error)
	FetchConversation(ctx context.Context, q application.FetchConversationQuery) ([]*domain.Message, error)
}

// MessageHandler serves /api/messages.
type MessageHandler struct {
	svc MessageService
}

func NewMessageHandler(svc MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// FetchHistory GET /api/messages?userId=<counterpart>
func (h *MessageHandler) FetchHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	counterpart := r.URL.Query().Get("userId")
	if counterpart == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing_user_id", "userId query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	messages, err := h.svc.FetchConversation(ctx, application.FetchConversationQuery{
		UserID:        userID,
		CounterpartID: counterpart,
	})
	if err != nil {
		transport.HTTPError(ctx, w, err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"messages": lo.Map(messages, func(m *domain.Message, _ int) wire.Message {
			return wire.FromDomain(m)
		}),
	})
}

// SendMessage POST /api/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json")
		return
	}
	if req.ReceiverID == "" || req.Content == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing_fields", "receiverId and content are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.svc.SendMessage(ctx, application.SendMessageCommand{
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
	})
	if err != nil {
		transport.HTTPError(ctx, w, err)
		return
	}

	transport.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": wire.FromDomain(msg),
	})
}
