package outbox

import (
	"context"
	"time"

	"github.com/campusgig/messaging/internal/events"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/repository"
	"github.com/campusgig/messaging/internal/tx"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, e *repository.OutboxEvent) error
}

type Worker struct {
	Tx         tx.Transactor
	Producer   Publisher
	BatchSize  int
	PollDelay  time.Duration
	MaxRetries int
}

// Start relays pending outbox events until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	log := observability.GetLogger(ctx)
	log.Info("outbox worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("outbox worker stopping")
			return
		default:
		}

		n, err := w.processBatch(ctx)
		if err != nil {
			log.Error("outbox error", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if n == 0 {
			sleep(ctx, w.PollDelay)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// processBatch publishes one batch and returns how many events it handled.
// It stops at the first publish failure so later events keep their order.
func (w *Worker) processBatch(ctx context.Context) (int, error) {
	log := observability.GetLogger(ctx)

	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxRetries := w.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var handled int
	var batchErr error

	err := w.Tx.WithTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		pending, err := repo.FetchPendingOutbox(ctx, batchSize)
		if err != nil {
			return err
		}

		for _, e := range pending {
			if !events.Known(e.EventType) {
				log.Warn("outbox: skipping unknown event type", zap.String("event_type", e.EventType), zap.String("id", e.ID))
				if err := repo.MarkOutboxProcessed(ctx, e.ID); err != nil {
					return err
				}
				handled++
				continue
			}

			if err := w.Producer.Publish(ctx, e); err != nil {
				observability.OutboxPublishFailuresTotal.WithLabelValues(observability.ServiceLabel).Inc()

				if e.RetryCount+1 >= maxRetries {
					log.Error("outbox: dropping event after retries",
						zap.String("id", e.ID),
						zap.String("event_type", e.EventType),
						zap.Int("retries", e.RetryCount+1),
						zap.Error(err),
					)
					if dbErr := repo.MarkOutboxProcessed(ctx, e.ID); dbErr != nil {
						return dbErr
					}
				} else if dbErr := repo.RecordOutboxFailure(ctx, e.ID, err.Error()); dbErr != nil {
					return dbErr
				}

				batchErr = err
				break
			}

			if err := repo.MarkOutboxProcessed(ctx, e.ID); err != nil {
				return err
			}
			observability.OutboxPublishedTotal.WithLabelValues(observability.ServiceLabel, e.EventType).Inc()
			handled++
		}
		return nil
	})
	if err != nil {
		return handled, err
	}
	return handled, batchErr
}

// LogPublisher stands in for a broker when none is configured: events are
// logged and considered delivered.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e *repository.OutboxEvent) error {
	observability.GetLogger(ctx).Debug("outbox event (no broker)",
		zap.String("event_type", e.EventType),
		zap.String("aggregate_id", e.AggregateID),
		zap.Int("bytes", len(e.Payload)),
	)
	return nil
}
