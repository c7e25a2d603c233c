package chatclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campusgig/messaging/internal/application"
	"github.com/campusgig/messaging/internal/auth"
	"github.com/campusgig/messaging/internal/config"
	"github.com/campusgig/messaging/internal/dispatcher"
	"github.com/campusgig/messaging/internal/handler"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/repository/badgerstore"
	"github.com/campusgig/messaging/internal/websocket"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// testServer runs the real HTTP API and channel over a badger store.
type testServer struct {
	URL      string
	Registry *websocket.Registry
	verifier *auth.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := badgerstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	svc := application.New(store, store, observability.GetLogger(ctx))

	reg := websocket.NewRegistry()
	d := dispatcher.New(reg, nil, nil, "test")
	channel := websocket.NewHandler(reg, nil, d)

	verifier := auth.NewVerifier(testSecret, "", "")
	cfg := &config.Config{ServiceName: "messaging-test", RateLimitRequests: 1000, RateLimitWindow: "1m"}

	router := handler.NewRouter(handler.NewMessageHandler(svc), channel, verifier, svc, store.Ping, cfg)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		reg.CloseAll()
		srv.Close()
	})

	return &testServer{URL: srv.URL, Registry: reg, verifier: verifier}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.verifier.Mint(auth.Identity{UserID: userID, Name: userID}, time.Hour)
	require.NoError(t, err)
	return tok
}

// session starts a logged-in client for userID and waits for its join.
func (s *testServer) session(t *testing.T, userID string) *Session {
	t.Helper()

	cfg := &config.ClientConfig{ChannelURL: s.URL, APIURL: s.URL + "/api", UserID: userID}
	sess, err := NewSession(cfg, s.token(t, userID))
	require.NoError(t, err)

	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(sess.Logout)

	require.Eventually(t, func() bool {
		return len(s.Registry.Room(userID)) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return sess
}
