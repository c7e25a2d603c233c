package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/campusgig/messaging/internal/auth"
	"github.com/campusgig/messaging/internal/observability"
	"github.com/campusgig/messaging/internal/transport"
	"go.uber.org/zap"
)

var (
	errMissingToken = errors.New("missing token")
	errTokenFormat  = errors.New("invalid token format")
)

func JWT(v *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := ExtractToken(r)
			if err != nil {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			id, err := v.Verify(tokenString)
			if err != nil {
				observability.GetLogger(r.Context()).Debug("jwt rejected", zap.Error(err))
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			ctx := InjectIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractToken reads a bearer token from the Authorization header, falling
// back to the "token" query parameter used by channel handshakes.
func ExtractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if tok := r.URL.Query().Get("token"); tok != "" {
			return tok, nil
		}
		return "", errMissingToken
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errTokenFormat
	}

	return parts[1], nil
}
