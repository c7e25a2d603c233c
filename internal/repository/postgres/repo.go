package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campusgig/messaging/internal/cache"
	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/repository"
	"github.com/campusgig/messaging/internal/tx"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository struct {
	DB    *sql.DB
	Cache *cache.UserCache

	tx *sql.Tx
}

var _ repository.Repository = (*Repository)(nil)

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) getter() queryable {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// NewTransactor returns a tx.Manager whose units of work see this repository
// bound to the open transaction.
func (r *Repository) NewTransactor() *tx.Manager {
	return &tx.Manager{
		DB: r.DB,
		Bind: func(t *sql.Tx) repository.Repository {
			return &Repository{DB: r.DB, Cache: r.Cache, tx: t}
		},
	}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *Repository) InsertMessage(ctx context.Context, msg *domain.Message) error {
	q := r.getter()
	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		msg.ID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.Read,
		msg.CreatedAt,
	)
	return err
}

func (r *Repository) FindConversation(ctx context.Context, a, b string) ([]*domain.Message, error) {
	q := r.getter()
	rows, err := q.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, read, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, seq ASC
	`, a, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Content,
			&msg.Read,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

func (r *Repository) MarkRead(ctx context.Context, from, to string) (int64, error) {
	q := r.getter()
	res, err := q.ExecContext(ctx, `
		UPDATE messages
		SET read = TRUE
		WHERE sender_id = $1
		  AND receiver_id = $2
		  AND read = FALSE
	`, from, to)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	log := observability.GetLogger(ctx)

	result := make(map[string]*domain.User, len(ids))
	missing := ids

	if r.Cache != nil {
		cached, miss, err := r.Cache.GetMany(ctx, ids)
		if err != nil {
			log.Warn("user cache read failed", zap.Error(err))
		} else {
			result = cached
			missing = miss
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	q := r.getter()
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, image
		FROM users
		WHERE id = ANY($1)
	`, pq.Array(missing))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Image); err != nil {
			return nil, err
		}
		result[u.ID] = &u

		if r.Cache != nil {
			if err := r.Cache.Set(ctx, &u); err != nil {
				log.Warn("user cache write failed", zap.String("user_id", u.ID), zap.Error(err))
			}
		}
	}

	return result, rows.Err()
}

func (r *Repository) UpsertUser(ctx context.Context, u *domain.User) error {
	q := r.getter()
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, image)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, image = EXCLUDED.image
	`, u.ID, u.Name, u.Image)
	if err != nil {
		return err
	}

	if r.Cache != nil {
		if err := r.Cache.Delete(ctx, u.ID); err != nil {
			observability.GetLogger(ctx).Warn("user cache invalidation failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	return nil
}

func (r *Repository) InsertOutbox(ctx context.Context, aggregateID, eventType string, payload []byte) error {
	q := r.getter()
	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), aggregateID, eventType, payload)
	return err
}

// FetchPendingOutbox locks the oldest unprocessed events. Call it inside a
// unit of work so the locks are held until the events are marked.
func (r *Repository) FetchPendingOutbox(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	if r.tx == nil {
		return nil, fmt.Errorf("fetch pending outbox: transaction required")
	}

	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at, retry_count
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*repository.OutboxEvent
	for rows.Next() {
		var e repository.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.RetryCount); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *Repository) MarkOutboxProcessed(ctx context.Context, id string) error {
	q := r.getter()
	_, err := q.ExecContext(ctx, `
		UPDATE outbox_events
		SET processed_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *Repository) RecordOutboxFailure(ctx context.Context, id string, reason string) error {
	q := r.getter()
	_, err := q.ExecContext(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1, error = $2
		WHERE id = $1
	`, id, reason)
	return err
}
