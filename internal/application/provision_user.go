package application

import (
	"context"
	"fmt"

	"github.com/campusgig/messaging/internal/domain"
)

// EnsureUser records the display profile of an authenticated caller so the
// store can validate and populate message participants.
func (s *Service) EnsureUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return domain.ErrUnauthenticated
	}

	existing, err := s.repo.GetUsers(ctx, []string{u.ID})
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if cur, ok := existing[u.ID]; ok {
		if (u.Name == "" || u.Name == cur.Name) && (u.Image == "" || u.Image == cur.Image) {
			return nil
		}
		if u.Name == "" {
			u.Name = cur.Name
		}
		if u.Image == "" {
			u.Image = cur.Image
		}
	}

	if err := s.repo.UpsertUser(ctx, &u); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
