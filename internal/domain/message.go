package domain

import (
	"strings"
	"time"
)

const MaxMessageSize = 5000

// User is the slice of a marketplace account that messaging needs for display.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Message Invariants:
// 1. Immutable once created, except Read.
// 2. Read only moves false -> true.
// 3. Conversation order is CreatedAt ascending.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	Read       bool
	CreatedAt  time.Time

	// Populated on read paths; nil when only ids are known.
	Sender   *User
	Receiver *User
}

func NewMessage(
	id string,
	senderID string,
	receiverID string,
	content string,
	now time.Time,
) (*Message, error) {

	if id == "" {
		return nil, ErrInvalidMessage
	}
	if senderID == "" {
		return nil, ErrMissingSender
	}
	if receiverID == "" {
		return nil, ErrMissingReceiver
	}
	if IsBlank(content) {
		return nil, ErrEmptyContent
	}
	if len(content) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	return &Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
	}, nil
}

// Between reports whether m belongs to the conversation {a, b}, in either direction.
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// Counterpart returns the other participant relative to self.
func (m *Message) Counterpart(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// PairKey identifies the unordered conversation {a, b}.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
