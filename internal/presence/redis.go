package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/campusgig/messaging/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TTL            = 60 * time.Second
	PresenceUpdate = "presence:updates"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Update is published on PresenceUpdate whenever a user comes or goes.
type Update struct {
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	OccurredAt int64  `json:"occurred_at"`
}

// Presence tracks which instance holds each joined session.
type Presence struct {
	client     *redis.Client
	instanceID string
}

func New(client *redis.Client, instanceID string) *Presence {
	return &Presence{
		client:     client,
		instanceID: instanceID,
	}
}

func sessionKey(userID, sessionID string) string {
	return "session:" + userID + ":" + sessionID
}

func userSessionsSetKey(userID string) string {
	return "presence:user:" + userID + ":sessions"
}

func (p *Presence) Register(ctx context.Context, userID, sessionID string) error {
	pipe := p.client.TxPipeline()

	pipe.Set(ctx, sessionKey(userID, sessionID), p.instanceID, TTL)
	pipe.SAdd(ctx, userSessionsSetKey(userID), sessionID)
	pipe.Expire(ctx, userSessionsSetKey(userID), TTL+time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return p.PublishUpdate(ctx, userID, StatusOnline)
}

func (p *Presence) Unregister(ctx context.Context, userID, sessionID string) error {
	pipe := p.client.TxPipeline()

	pipe.Del(ctx, sessionKey(userID, sessionID))
	pipe.SRem(ctx, userSessionsSetKey(userID), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	sessions, err := p.Instances(ctx, userID)
	if err != nil || len(sessions) == 0 {
		return p.PublishUpdate(ctx, userID, StatusOffline)
	}

	return nil
}

func (p *Presence) Refresh(ctx context.Context, userID, sessionID string) error {
	pipe := p.client.TxPipeline()
	pipe.Expire(ctx, sessionKey(userID, sessionID), TTL)
	pipe.Expire(ctx, userSessionsSetKey(userID), TTL+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) PublishUpdate(ctx context.Context, userID, status string) error {
	payload, err := json.Marshal(Update{
		UserID:     userID,
		Status:     status,
		OccurredAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	return p.client.Publish(ctx, PresenceUpdate, payload).Err()
}

// Instances maps each live session of userID to the instance holding it.
func (p *Presence) Instances(ctx context.Context, userID string) (map[string]string, error) {
	log := observability.GetLogger(ctx)

	sessionIDs, err := p.client.SMembers(ctx, userSessionsSetKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	if len(sessionIDs) == 0 {
		return make(map[string]string), nil
	}

	keys := make([]string, len(sessionIDs))
	for i, sID := range sessionIDs {
		keys[i] = sessionKey(userID, sID)
	}

	instances, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	var stale []any

	for i, instance := range instances {
		sID := sessionIDs[i]
		if instance == nil {
			stale = append(stale, sID)
			continue
		}
		if instStr, ok := instance.(string); ok {
			result[sID] = instStr
		}
	}

	if len(stale) > 0 {
		go func() {
			err := p.client.SRem(context.Background(), userSessionsSetKey(userID), stale...).Err()
			if err != nil {
				log.Error("presence: fail to cleanup stale sessions", zap.String("user_id", userID), zap.Error(err))
			}
		}()
	}

	return result, nil
}
