package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/redis/go-redis/v9"
)

const userTTL = time.Hour

type UserCache struct{ R *redis.Client }

func key(id string) string { return "user:" + id }

// GetMany returns the cached users and the ids that missed.
func (c *UserCache) GetMany(ctx context.Context, ids []string) (map[string]*domain.User, []string, error) {
	found := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return found, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	vals, err := c.R.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids, err
	}

	var missing []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var u domain.User
		if err := json.Unmarshal([]byte(s), &u); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = &u
	}
	return found, missing, nil
}

func (c *UserCache) Get(ctx context.Context, id string) (*domain.User, error) {
	b, err := c.R.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var u domain.User
	return &u, json.Unmarshal(b, &u)
}

func (c *UserCache) Set(ctx context.Context, u *domain.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key(u.ID), b, userTTL).Err()
}

func (c *UserCache) Delete(ctx context.Context, id string) error {
	return c.R.Del(ctx, key(id)).Err()
}
