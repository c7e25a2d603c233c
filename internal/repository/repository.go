package repository

import (
	"context"
	"time"

	"github.com/campusgig/messaging/internal/domain"
)

// Repository is the durable message store. Implementations bound to a
// transaction (see tx.Transactor) run every call inside that unit of work.
type Repository interface {
	// Messaging
	InsertMessage(ctx context.Context, msg *domain.Message) error
	// FindConversation returns every message between a and b, either direction, oldest first.
	FindConversation(ctx context.Context, a, b string) ([]*domain.Message, error)
	// MarkRead flips read=true on unread messages from -> to and returns how many changed.
	MarkRead(ctx context.Context, from, to string) (int64, error)

	// Users
	GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error

	// Outbox
	InsertOutbox(ctx context.Context, aggregateID, eventType string, payload []byte) error
	FetchPendingOutbox(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id string) error
	RecordOutboxFailure(ctx context.Context, id string, reason string) error

	Ping(ctx context.Context) error
}

type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	RetryCount  int
}
