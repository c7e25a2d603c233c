package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campusgig/messaging/internal/application"
	"github.com/campusgig/messaging/internal/auth"
	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) SendMessage(ctx context.Context, cmd application.SendMessageCommand) (*domain.Message, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockService) FetchConversation(ctx context.Context, q application.FetchConversationQuery) ([]*domain.Message, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.InjectIdentity(r.Context(), &auth.Identity{UserID: userID}))
}

var created = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestFetchHistory(t *testing.T) {
	svc := new(MockService)
	h := NewMessageHandler(svc)

	msgs := []*domain.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hey", CreatedAt: created,
			Sender: &domain.User{ID: "bob", Name: "Bob"}},
		{ID: "m2", SenderID: "alice", ReceiverID: "bob", Content: "hi", CreatedAt: created.Add(time.Minute)},
	}
	svc.On("FetchConversation", mock.Anything, application.FetchConversationQuery{
		UserID: "alice", CounterpartID: "bob",
	}).Return(msgs, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/messages?userId=bob", nil), "alice")
	rec := httptest.NewRecorder()
	h.FetchHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "m1", body.Messages[0]["_id"])
	assert.Equal(t, map[string]any{"_id": "bob", "name": "Bob"}, body.Messages[0]["senderId"])
	assert.Equal(t, "alice", body.Messages[0]["receiverId"])
	assert.Equal(t, "m2", body.Messages[1]["_id"])
	svc.AssertExpectations(t)
}

func TestFetchHistory_EmptyIsArray(t *testing.T) {
	svc := new(MockService)
	h := NewMessageHandler(svc)
	svc.On("FetchConversation", mock.Anything, mock.Anything).Return([]*domain.Message{}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/messages?userId=bob", nil), "alice")
	rec := httptest.NewRecorder()
	h.FetchHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestFetchHistory_Errors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status int
	}{
		{"missing userId", "/api/messages", nil, http.StatusBadRequest},
		{"unauthenticated", "/api/messages?userId=bob", domain.ErrUnauthenticated, http.StatusUnauthorized},
		{"store failure", "/api/messages?userId=bob", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			if tt.err != nil {
				svc.On("FetchConversation", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			h := NewMessageHandler(svc)

			req := withUser(httptest.NewRequest(http.MethodGet, tt.url, nil), "alice")
			rec := httptest.NewRecorder()
			h.FetchHistory(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestSendMessage(t *testing.T) {
	svc := new(MockService)
	h := NewMessageHandler(svc)

	svc.On("SendMessage", mock.Anything, application.SendMessageCommand{
		SenderID: "alice", ReceiverID: "bob", Content: "hi",
	}).Return(&domain.Message{
		ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "hi", CreatedAt: created,
		Sender:   &domain.User{ID: "alice", Name: "Alice", Image: "a.png"},
		Receiver: &domain.User{ID: "bob", Name: "Bob"},
	}, nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/messages",
		strings.NewReader(`{"receiverId":"bob","content":"hi"}`)), "alice")
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":{
		"_id":"m1",
		"senderId":{"_id":"alice","name":"Alice","image":"a.png"},
		"receiverId":{"_id":"bob","name":"Bob"},
		"content":"hi",
		"read":false,
		"createdAt":"2024-05-01T10:00:00Z"
	}}`, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestSendMessage_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{nope`, "invalid_body"},
		{"missing receiver", `{"content":"hi"}`, "missing_fields"},
		{"missing content", `{"receiverId":"bob"}`, "missing_fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			h := NewMessageHandler(svc)

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(tt.body)), "alice")
			rec := httptest.NewRecorder()
			h.SendMessage(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
			svc.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessage_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown receiver", fmt.Errorf("%w: ghost", domain.ErrUnknownUser), http.StatusBadRequest},
		{"too large", domain.ErrMessageTooLarge, http.StatusBadRequest},
		{"store failure", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("SendMessage", mock.Anything, mock.Anything).Return(nil, tt.err)
			h := NewMessageHandler(svc)

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/messages",
				strings.NewReader(`{"receiverId":"ghost","content":"hi"}`)), "alice")
			rec := httptest.NewRecorder()
			h.SendMessage(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
