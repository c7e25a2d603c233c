package application

import (
	"time"

	"github.com/campusgig/messaging/internal/repository"
	"github.com/campusgig/messaging/internal/tx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Service struct {
	repo     repository.Repository
	tx       tx.Transactor
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func New(repo repository.Repository, transactor tx.Transactor, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       transactor,
		validate: validator.New(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}
