package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:3001", "ws://localhost:3001/ws", false},
		{"http://localhost:3001/", "ws://localhost:3001/ws", false},
		{"https://chat.example.edu/rt", "wss://chat.example.edu/rt/ws", false},
		{"ws://localhost:3001", "ws://localhost:3001/ws", false},
		{"ftp://localhost", "", true},
	}

	for _, tt := range tests {
		got, err := channelEndpoint(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestChannel_EmitBeforeConnect(t *testing.T) {
	ch, err := NewChannel("http://localhost:3001", "tok", "alice")
	require.NoError(t, err)

	err = ch.EmitMessage(context.Background(), &domain.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob"})
	assert.ErrorIs(t, err, domain.ErrChannel)
	assert.False(t, ch.Connected())
	assert.NoError(t, ch.Close())
}

func TestChannel_RejectsBadToken(t *testing.T) {
	srv := newTestServer(t)

	ch, err := NewChannel(srv.URL, "not-a-token", "alice")
	require.NoError(t, err)

	err = ch.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.False(t, ch.Connected())
}

func TestChannel_ConnectIsIdempotent(t *testing.T) {
	srv := newTestServer(t)

	ch, err := NewChannel(srv.URL, srv.token(t, "alice"), "alice")
	require.NoError(t, err)
	defer ch.Close()

	ctx := context.Background()
	require.NoError(t, ch.Connect(ctx))
	require.NoError(t, ch.Connect(ctx))
	require.NoError(t, ch.Connect(ctx))

	require.Eventually(t, func() bool { return srv.Registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.Registry.Count())
}

func TestChannel_PushReachesReceiverOnly(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	connect := func(user string) *Channel {
		ch, err := NewChannel(srv.URL, srv.token(t, user), user)
		require.NoError(t, err)
		require.NoError(t, ch.Connect(ctx))
		t.Cleanup(func() { ch.Close() })
		require.Eventually(t, func() bool { return len(srv.Registry.Room(user)) == 1 }, 2*time.Second, 10*time.Millisecond)
		return ch
	}

	alice := connect("alice")
	bob := connect("bob")
	carol := connect("carol")

	bobGot := make(chan *domain.Message, 4)
	bob.Subscribe(nil, func(m *domain.Message) { bobGot <- m })
	carolGot := make(chan *domain.Message, 4)
	carol.Subscribe(nil, func(m *domain.Message) { carolGot <- m })

	sent := &domain.Message{
		ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "hi",
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, alice.EmitMessage(ctx, sent))

	select {
	case m := <-bobGot:
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "alice", m.SenderID)
		assert.Equal(t, "bob", m.ReceiverID)
		assert.True(t, sent.CreatedAt.Equal(m.CreatedAt))
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the push")
	}

	// A spoofed sender is rejected by the server.
	require.NoError(t, alice.EmitMessage(ctx, &domain.Message{ID: "m2", SenderID: "carol", ReceiverID: "bob", Content: "x"}))

	select {
	case m := <-bobGot:
		t.Fatalf("unexpected push %s", m.ID)
	case m := <-carolGot:
		t.Fatalf("carol got someone else's push %s", m.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	alice, err := NewChannel(srv.URL, srv.token(t, "alice"), "alice")
	require.NoError(t, err)
	require.NoError(t, alice.Connect(ctx))
	defer alice.Close()

	bob, err := NewChannel(srv.URL, srv.token(t, "bob"), "bob")
	require.NoError(t, err)
	require.NoError(t, bob.Connect(ctx))
	defer bob.Close()
	require.Eventually(t, func() bool { return srv.Registry.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	first := make(chan string, 4)
	second := make(chan string, 4)
	unsub := bob.Subscribe(nil, func(m *domain.Message) { first <- m.ID })
	bob.Subscribe(nil, func(m *domain.Message) { second <- m.ID })

	unsub()
	unsub()

	require.NoError(t, alice.EmitMessage(ctx, &domain.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "hi"}))

	select {
	case id := <-second:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("remaining subscriber never received the push")
	}
	assert.Empty(t, first)
}

func TestChannel_ConcurrentConnectSharesOneDial(t *testing.T) {
	srv := newTestServer(t)

	ch, err := NewChannel(srv.URL, srv.token(t, "alice"), "alice")
	require.NoError(t, err)
	defer ch.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ch.Connect(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	require.Eventually(t, func() bool { return srv.Registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.Registry.Count())
}

func TestChannel_SubscribeNotBlockedByDial(t *testing.T) {
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	defer unblock()

	ch, err := NewChannel(srv.URL, "tok", "alice")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ch.Connect(context.Background()) }()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("dial never reached the server")
	}

	returned := make(chan struct{})
	go func() {
		unsub := ch.Subscribe(nil, func(*domain.Message) {})
		unsub()
		_ = ch.Connected()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Subscribe blocked while a dial was in flight")
	}

	unblock()
	assert.ErrorIs(t, <-done, domain.ErrUnauthenticated)
	assert.False(t, ch.Connected())
}

func TestChannel_EmitOnBrokenConnectionIsChannelError(t *testing.T) {
	srv := newTestServer(t)

	ch, err := NewChannel(srv.URL, srv.token(t, "alice"), "alice")
	require.NoError(t, err)
	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Close()

	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	require.NoError(t, conn.Close())

	err = ch.EmitMessage(context.Background(), &domain.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob"})
	assert.ErrorIs(t, err, domain.ErrChannel)
}
