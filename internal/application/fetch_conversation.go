package application

import (
	"context"
	"fmt"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/events"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/repository"
	"go.uber.org/zap"
)

type FetchConversationQuery struct {
	UserID        string `validate:"required"`
	CounterpartID string `validate:"required"`
}

// FetchConversation returns the ordered history between the caller and the
// counterpart, then marks the counterpart's messages to the caller as read.
// The returned messages carry the read flags as they were before marking.
func (s *Service) FetchConversation(
	ctx context.Context,
	q FetchConversationQuery,
) ([]*domain.Message, error) {

	if q.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if q.CounterpartID == "" {
		return nil, domain.ErrMissingCounterpart
	}

	messages, err := s.repo.FindConversation(ctx, q.UserID, q.CounterpartID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	users, err := s.repo.GetUsers(ctx, []string{q.UserID, q.CounterpartID})
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	for _, m := range messages {
		m.Sender = users[m.SenderID]
		m.Receiver = users[m.ReceiverID]
	}

	if err := s.markRead(ctx, q.CounterpartID, q.UserID); err != nil {
		return nil, err
	}

	return messages, nil
}

func (s *Service) markRead(ctx context.Context, from, to string) error {
	var marked int64

	err := s.tx.WithTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		n, err := repo.MarkRead(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		if n == 0 {
			return nil
		}

		payload, err := events.Wrap(events.TypeMessagesRead, events.MessagesRead{
			ReaderID: to,
			SenderID: from,
			Count:    n,
		}, s.now())
		if err != nil {
			return err
		}
		if err := repo.InsertOutbox(ctx, domain.PairKey(from, to), events.TypeMessagesRead, payload); err != nil {
			return fmt.Errorf("failed to save outbox event: %w", err)
		}

		marked = n
		return nil
	})
	if err != nil {
		return err
	}

	if marked > 0 {
		observability.MessagesMarkedReadTotal.WithLabelValues(observability.ServiceLabel).Add(float64(marked))
		observability.GetLogger(ctx).Debug("messages marked read",
			zap.String("sender_id", from),
			zap.String("reader_id", to),
			zap.Int64("count", marked),
		)
	}
	return nil
}
