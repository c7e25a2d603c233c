package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/wire"
)

// API is the request/response side of the message store.
type API struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPI targets baseURL, e.g. http://localhost:3001/api. A nil client gets a
// default with a 10s timeout.
func NewAPI(baseURL, token string, client *http.Client) *API {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// FetchHistory returns the conversation with counterpartID, oldest first.
// The server marks the counterpart's messages to the caller as read.
func (a *API) FetchHistory(ctx context.Context, counterpartID string) ([]*domain.Message, error) {
	if counterpartID == "" {
		return nil, domain.ErrMissingCounterpart
	}

	var out struct {
		Messages []wire.Message `json:"messages"`
	}
	path := "/messages?userId=" + url.QueryEscape(counterpartID)
	if err := a.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}

	result := make([]*domain.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		result = append(result, m.Normalize())
	}
	return result, nil
}

// Send persists a message and returns it as stored.
func (a *API) Send(ctx context.Context, receiverID, content string) (*domain.Message, error) {
	body := map[string]string{
		"receiverId": receiverID,
		"content":    content,
	}

	var out struct {
		Message wire.Message `json:"message"`
	}
	if err := a.do(ctx, http.MethodPost, "/messages", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return out.Message.Normalize(), nil
}

func (a *API) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrNetwork, err)
	}
	return nil
}

// statusError turns a non-success response into one of the domain kinds.
func statusError(resp *http.Response) error {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&e)

	detail := e.Message
	if detail == "" {
		detail = e.Error
	}
	if detail == "" {
		detail = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrValidation, detail)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	default:
		return fmt.Errorf("%w: server returned %d: %s", domain.ErrNetwork, resp.StatusCode, detail)
	}
}
