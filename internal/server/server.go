package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campusgig/messaging/internal/observability"
	"go.uber.org/zap"
)

type Server struct {
	name       string
	httpServer *http.Server
}

// New wraps an http.Server. WriteTimeout is left unset because channel
// connections outlive a single request; sessions manage their own deadlines.
func New(name, addr string, handler http.Handler) *Server {
	return &Server{
		name: name,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	observability.GetLogger(context.Background()).Info("starting server",
		zap.String("server", s.name), zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	observability.GetLogger(ctx).Info("shutting down server", zap.String("server", s.name))
	return s.httpServer.Shutdown(ctx)
}
