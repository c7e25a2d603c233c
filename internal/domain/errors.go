package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match on these with errors.Is; concrete errors wrap one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrNetwork    = errors.New("network error")
	ErrChannel    = errors.New("channel error")
)

var (
	ErrUnauthenticated    = fmt.Errorf("%w: unauthenticated", ErrNotFound)
	ErrMissingSender      = fmt.Errorf("%w: sender is required", ErrValidation)
	ErrMissingReceiver    = fmt.Errorf("%w: receiver is required", ErrValidation)
	ErrMissingCounterpart = fmt.Errorf("%w: counterpart user id is required", ErrValidation)
	ErrEmptyContent       = fmt.Errorf("%w: content is required", ErrValidation)
	ErrMessageTooLarge    = fmt.Errorf("%w: message too large", ErrValidation)
	ErrInvalidMessage     = fmt.Errorf("%w: invalid message", ErrValidation)
	ErrUnknownUser        = fmt.Errorf("%w: unknown user", ErrValidation)
)
