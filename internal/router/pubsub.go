package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campusgig/messaging/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "delivery:"

// Routed is a frame addressed to one user's room on another instance.
type Routed struct {
	UserID string          `json:"user_id"`
	Frame  json.RawMessage `json:"frame"`
}

// Router moves frames between instances. Every instance listens on its own
// channel; senders publish to the channel of each instance holding a session.
type Router struct {
	client     *redis.Client
	instanceID string
}

func New(client *redis.Client, instanceID string) *Router {
	return &Router{client: client, instanceID: instanceID}
}

// Channel is the pub/sub channel an instance listens on.
func Channel(instanceID string) string {
	return channelPrefix + instanceID
}

func (r *Router) Publish(ctx context.Context, target string, payload []byte) error {
	receivers, err := r.client.Publish(ctx, Channel(target), payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", target, err)
	}
	if receivers == 0 {
		// Stale presence: the instance is gone, the frame is lost.
		observability.GetLogger(ctx).Debug("router: no listener for instance", zap.String("target", target))
	}
	return nil
}

// Subscribe confirms the subscription, then feeds handler from a goroutine
// until ctx is done.
func (r *Router) Subscribe(ctx context.Context, handler func([]byte)) error {
	name := Channel(r.instanceID)
	sub := r.client.Subscribe(ctx, name)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", name, err)
	}

	log := observability.GetLogger(ctx).With(zap.String("channel", name))
	log.Info("router: listening")

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				log.Info("router: stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Warn("router: subscription closed")
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}
