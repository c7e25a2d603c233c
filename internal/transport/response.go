package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/wire"
	"go.uber.org/zap"
)

// WriteJSON encodes payload before touching the response so an encoding
// failure still yields a clean 500.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		observability.GetLogger(context.Background()).Error("encode response", zap.Int("status", status), zap.Error(err))
		http.Error(w, `{"error":"internal_error","message":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteError writes the body shared by the API and the channel's error frames.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, wire.ErrorPayload{Code: code, Message: message})
}
