package handler

import (
	"context"
	"net/http"

	"github.com/campusgig/messaging/internal/auth"
	"github.com/campusgig/messaging/internal/config"
	"github.com/campusgig/messaging/internal/middleware"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter builds the public router: the message API and the channel
// endpoint, both behind JWT. A nil provisioner skips profile upserts.
func NewRouter(
	msgH *MessageHandler,
	channel http.Handler,
	verifier *auth.Verifier,
	provisioner middleware.Provisioner,
	ready func(ctx context.Context) error,
	cfg *config.Config,
) http.Handler {

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(observability.MetricsMiddleware(cfg.ServiceName))
	r.Use(middleware.Recovery())

	r.Get("/health/live", observability.HealthLiveHandler)
	r.Get("/health/ready", observability.HealthReadyHandler(ready))

	r.Group(func(p chi.Router) {
		p.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		p.Use(middleware.JWT(verifier))
		if provisioner != nil {
			p.Use(middleware.Provision(provisioner))
		}

		if channel != nil {
			p.Handle("/ws", channel)
		}

		if msgH != nil {
			mesPath := "/api/messages"
			p.Get(mesPath, msgH.FetchHistory)
			p.Post(mesPath, msgH.SendMessage)
		}
	})

	return otelhttp.NewHandler(r, cfg.ServiceName)
}
