package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusgig/messaging/internal/wire"
)

const (
	TypeMessageSent  = "MESSAGE_SENT"
	TypeMessagesRead = "MESSAGES_READ"

	SchemaVersion = 1
)

// Envelope wraps every event written to the outbox and published to the stream.
type Envelope struct {
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

type MessageSent struct {
	Message wire.Message `json:"message"`
}

type MessagesRead struct {
	ReaderID string `json:"reader_id"`
	SenderID string `json:"sender_id"`
	Count    int64  `json:"count"`
}

func Wrap(eventType string, payload any, now time.Time) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		OccurredAt:    now,
		Payload:       body,
	}
	return json.Marshal(env)
}

func Known(eventType string) bool {
	switch eventType {
	case TypeMessageSent, TypeMessagesRead:
		return true
	}
	return false
}
