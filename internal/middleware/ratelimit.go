package middleware

import (
	"net/http"
	"time"

	"github.com/campusgig/messaging/internal/transport"
	"github.com/go-chi/httprate"
)

// RateLimit caps requests per client IP over window. A malformed window
// falls back to one minute.
func RateLimit(requests int, window string) func(next http.Handler) http.Handler {
	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		d = time.Minute
	}

	return httprate.Limit(requests, d,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			transport.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		}),
	)
}
