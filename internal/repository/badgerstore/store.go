package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/repository"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const maxRetries = 5

// Store keeps messages, users and outbox events in an embedded badger database.
//
// Keys:
//
//	msg:{pair}:{unix_nanos_padded}:{message_id}   time-ordered within a conversation
//	user:{user_id}
//	outbox:{unix_nanos_padded}-{uuid}              time-ordered pending events
type Store struct {
	db  *badger.DB
	txn *badger.Txn
}

var _ repository.Repository = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func New(db *badger.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// WithTx runs fn in one read-write badger transaction, retrying on conflicts.
func (s *Store) WithTx(
	ctx context.Context,
	fn func(ctx context.Context, repo repository.Repository) error,
) error {
	if s.txn != nil {
		return fn(ctx, s)
	}

	for i := 0; i < maxRetries; i++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(ctx, &Store{db: s.db, txn: txn})
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("badger: transaction retry exhausted")
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	if s.txn != nil {
		return fn(s.txn)
	}
	return s.db.Update(fn)
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	if s.txn != nil {
		return fn(s.txn)
	}
	return s.db.View(fn)
}

type diskMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	At         int64  `json:"at"`
}

func fromDomain(m *domain.Message) diskMessage {
	return diskMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Read:       m.Read,
		At:         m.CreatedAt.UnixNano(),
	}
}

func (d diskMessage) toDomain() *domain.Message {
	return &domain.Message{
		ID:         d.ID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Content:    d.Content,
		Read:       d.Read,
		CreatedAt:  time.Unix(0, d.At).UTC(),
	}
}

func conversationPrefix(a, b string) []byte {
	return []byte("msg:" + domain.PairKey(a, b) + ":")
}

func messageKey(m *domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s",
		conversationPrefix(m.SenderID, m.ReceiverID),
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

const outboxPrefix = "outbox:"

func (s *Store) InsertMessage(ctx context.Context, msg *domain.Message) error {
	b, err := json.Marshal(fromDomain(msg))
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), b)
	})
}

type entry struct {
	key []byte
	msg diskMessage
}

// scanConversation walks one conversation in key (creation time) order.
func scanConversation(txn *badger.Txn, a, b string) ([]entry, error) {
	prefix := conversationPrefix(a, b)
	it := txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   100,
		Prefix:         prefix,
	})
	defer it.Close()

	var entries []entry
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var d diskMessage
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &d)
		}); err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: item.KeyCopy(nil), msg: d})
	}
	return entries, nil
}

func (s *Store) FindConversation(ctx context.Context, a, b string) ([]*domain.Message, error) {
	messages := make([]*domain.Message, 0)
	err := s.view(func(txn *badger.Txn) error {
		entries, err := scanConversation(txn, a, b)
		if err != nil {
			return err
		}
		for _, e := range entries {
			messages = append(messages, e.msg.toDomain())
		}
		return nil
	})
	return messages, err
}

func (s *Store) MarkRead(ctx context.Context, from, to string) (int64, error) {
	var n int64
	err := s.update(func(txn *badger.Txn) error {
		entries, err := scanConversation(txn, from, to)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.msg.Read || e.msg.SenderID != from || e.msg.ReceiverID != to {
				continue
			}
			e.msg.Read = true
			b, err := json.Marshal(e.msg)
			if err != nil {
				return err
			}
			if err := txn.Set(e.key, b); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	err := s.view(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(userKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var u domain.User
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &u)
			}); err != nil {
				return err
			}
			users[id] = &u
		}
		return nil
	})
	return users, err
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set(userKey(u.ID), b)
	})
}

type diskOutbox struct {
	AggregateID string `json:"aggregate_id"`
	EventType   string `json:"event_type"`
	Payload     []byte `json:"payload"`
	CreatedAt   int64  `json:"created_at"`
	RetryCount  int    `json:"retry_count"`
	Error       string `json:"error,omitempty"`
}

func (s *Store) InsertOutbox(ctx context.Context, aggregateID, eventType string, payload []byte) error {
	now := time.Now().UTC()
	id := fmt.Sprintf("%019d-%s", now.UnixNano(), uuid.NewString())

	b, err := json.Marshal(diskOutbox{
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   now.UnixNano(),
	})
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(outboxPrefix+id), b)
	})
}

func (s *Store) FetchPendingOutbox(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	var events []*repository.OutboxEvent
	err := s.view(func(txn *badger.Txn) error {
		prefix := []byte(outboxPrefix)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: limit, Prefix: prefix})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(events) < limit; it.Next() {
			item := it.Item()
			var d diskOutbox
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &d)
			}); err != nil {
				return err
			}
			events = append(events, &repository.OutboxEvent{
				ID:          string(item.Key()[len(prefix):]),
				AggregateID: d.AggregateID,
				EventType:   d.EventType,
				Payload:     d.Payload,
				CreatedAt:   time.Unix(0, d.CreatedAt).UTC(),
				RetryCount:  d.RetryCount,
			})
		}
		return nil
	})
	return events, err
}

// MarkOutboxProcessed drops the event; processed events are not retained.
func (s *Store) MarkOutboxProcessed(ctx context.Context, id string) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(outboxPrefix + id))
	})
}

func (s *Store) RecordOutboxFailure(ctx context.Context, id string, reason string) error {
	return s.update(func(txn *badger.Txn) error {
		key := []byte(outboxPrefix + id)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var d diskOutbox
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &d)
		}); err != nil {
			return err
		}
		d.RetryCount++
		d.Error = reason
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return txn.Set(key, b)
	})
}
