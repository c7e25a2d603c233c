package router

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "delivery:inst-b", Channel("inst-b"))
}

func TestPublishReachesSubscriber(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	b := New(client, "inst-b")
	require.NoError(t, b.Subscribe(ctx, func(p []byte) { received <- p }))

	a := New(client, "inst-a")
	require.NoError(t, a.Publish(ctx, "inst-b", []byte(`{"user_id":"u1"}`)))

	select {
	case got := <-received:
		assert.JSONEq(t, `{"user_id":"u1"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for routed payload")
	}
}
