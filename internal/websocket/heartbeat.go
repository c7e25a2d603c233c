package websocket

import (
	"context"
	"time"

	"github.com/campusgig/messaging/internal/observability"
	"go.uber.org/zap"
)

const heartbeatInterval = 20 * time.Second

// Presence records which instance holds a user's room.
type Presence interface {
	Register(ctx context.Context, userID, sessionID string) error
	Refresh(ctx context.Context, userID, sessionID string) error
	Unregister(ctx context.Context, userID, sessionID string) error
}

func StartHeartbeat(p Presence, userID, sessionID string, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		ctx := context.Background()

		for {
			select {
			case <-ticker.C:
				if err := p.Refresh(ctx, userID, sessionID); err != nil {
					observability.GetLogger(ctx).Warn("presence: refresh failed",
						zap.String("user_id", userID), zap.String("session_id", sessionID), zap.Error(err))
				}
			case <-done:
				return
			}
		}
	}()
}
