package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campusgig/messaging/internal/repository"
	"github.com/lib/pq"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo repository.Repository) error) error
}

const maxRetries = 5

var ErrRetryExhausted = errors.New("transaction retry exhausted")

// Manager runs units of work against postgres, retrying serialization failures.
type Manager struct {
	DB   *sql.DB
	Bind func(tx *sql.Tx) repository.Repository
}

func (m *Manager) WithTx(
	ctx context.Context,
	fn func(ctx context.Context, repo repository.Repository) error,
) error {

	for i := 0; i < maxRetries; i++ {

		tx, err := m.DB.BeginTx(ctx, &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
		})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}

		err = fn(ctx, m.Bind(tx))
		if err != nil {
			_ = tx.Rollback()
			if IsSerializationError(err) {
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if IsSerializationError(err) {
				continue
			}
			return err
		}

		return nil
	}

	return ErrRetryExhausted
}

// IsSerializationError matches postgres serialization_failure and deadlock_detected.
func IsSerializationError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
