package application

import (
	"context"
	"fmt"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/events"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/repository"
	"github.com/campusgig/messaging/internal/wire"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SendMessageCommand struct {
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required"`
	Content    string `validate:"required,max=5000"`
}

// SendMessage persists a message and records a MESSAGE_SENT event in the same
// unit of work. The returned message has both participants populated.
func (s *Service) SendMessage(
	ctx context.Context,
	cmd SendMessageCommand,
) (*domain.Message, error) {

	if err := s.validateSend(cmd); err != nil {
		return nil, err
	}

	s.log.Debug("SendMessage requested",
		zap.String("sender_id", cmd.SenderID),
		zap.String("receiver_id", cmd.ReceiverID),
	)

	var result *domain.Message

	err := s.tx.WithTx(ctx, func(ctx context.Context, repo repository.Repository) error {

		users, err := repo.GetUsers(ctx, []string{cmd.SenderID, cmd.ReceiverID})
		if err != nil {
			return fmt.Errorf("failed to load participants: %w", err)
		}
		for _, id := range []string{cmd.SenderID, cmd.ReceiverID} {
			if _, ok := users[id]; !ok {
				return fmt.Errorf("%w: %s", domain.ErrUnknownUser, id)
			}
		}

		msg, err := domain.NewMessage(
			uuid.NewString(),
			cmd.SenderID,
			cmd.ReceiverID,
			cmd.Content,
			s.now(),
		)
		if err != nil {
			return err
		}

		if err := repo.InsertMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}

		msg.Sender = users[cmd.SenderID]
		msg.Receiver = users[cmd.ReceiverID]

		payload, err := events.Wrap(events.TypeMessageSent, events.MessageSent{
			Message: wire.FromDomain(msg),
		}, msg.CreatedAt)
		if err != nil {
			return err
		}

		if err := repo.InsertOutbox(
			ctx,
			domain.PairKey(msg.SenderID, msg.ReceiverID),
			events.TypeMessageSent,
			payload,
		); err != nil {
			return fmt.Errorf("failed to save outbox event: %w", err)
		}

		result = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.MessagesPersistedTotal.WithLabelValues(observability.ServiceLabel).Inc()
	s.log.Info("message stored",
		zap.String("message_id", result.ID),
		zap.String("sender_id", result.SenderID),
		zap.String("receiver_id", result.ReceiverID),
	)

	return result, nil
}

func (s *Service) validateSend(cmd SendMessageCommand) error {
	switch {
	case cmd.SenderID == "":
		return domain.ErrMissingSender
	case cmd.ReceiverID == "":
		return domain.ErrMissingReceiver
	case domain.IsBlank(cmd.Content):
		return domain.ErrEmptyContent
	}
	if err := s.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
