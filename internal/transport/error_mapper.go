package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/campusgig/messaging/internal/domain"
	"github.com/campusgig/messaging/internal/observability"
	"go.uber.org/zap"
)

// HTTPError writes the response for a domain error.
func HTTPError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		observability.GetLogger(ctx).Error("internal_error", zap.Error(err))
		message = "an unexpected error occurred"
	}

	WriteError(w, status, code, message)
}

// StatusFor maps an error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
