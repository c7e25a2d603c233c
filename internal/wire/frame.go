package wire

import (
	"encoding/json"
	"fmt"
)

// Channel event names.
const (
	EventJoin    = "join"
	EventMessage = "message"
	EventError   = "error"
)

// Frame is one event on the channel: {"event": ..., "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

func DecodeFrame(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("decode frame: missing event name")
	}
	return &f, nil
}

// ErrorPayload is the data of an "error" frame.
type ErrorPayload struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}
