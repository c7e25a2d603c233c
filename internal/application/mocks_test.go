package application

import (
	"context"
	"time"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/repository"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockRepo is a mock for the Repository interface
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) InsertMessage(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}
func (m *MockRepo) FindConversation(ctx context.Context, a, b string) ([]*domain.Message, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}
func (m *MockRepo) MarkRead(ctx context.Context, from, to string) (int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepo) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.User), args.Error(1)
}
func (m *MockRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *MockRepo) InsertOutbox(ctx context.Context, aggregateID, eventType string, payload []byte) error {
	return m.Called(ctx, aggregateID, eventType, payload).Error(0)
}
func (m *MockRepo) FetchPendingOutbox(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	return nil, nil
}
func (m *MockRepo) MarkOutboxProcessed(ctx context.Context, id string) error {
	return nil
}
func (m *MockRepo) RecordOutboxFailure(ctx context.Context, id string, reason string) error {
	return nil
}
func (m *MockRepo) Ping(ctx context.Context) error {
	return nil
}

// MockTransactor runs the unit of work directly against the mock repository
type MockTransactor struct {
	repo repository.Repository
}

func (m *MockTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, repo repository.Repository) error) error {
	return fn(ctx, m.repo)
}

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(repo *MockRepo) *Service {
	svc := New(repo, &MockTransactor{repo: repo}, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}
