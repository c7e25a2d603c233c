package middleware

import (
	"context"
	"net/http"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/transport"
)

// Provisioner records the profile of an authenticated caller.
type Provisioner interface {
	EnsureUser(ctx context.Context, u domain.User) error
}

// Provision upserts the caller's profile from its token claims. It must run
// after JWT.
func Provision(p Provisioner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity(r.Context())
			if id == nil {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
				return
			}

			err := p.EnsureUser(r.Context(), domain.User{ID: id.UserID, Name: id.Name, Image: id.Image})
			if err != nil {
				transport.HTTPError(r.Context(), w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
