package middleware

import (
	"context"

	"github.com/campusgig/messaging/internal/auth"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	identityKey
)

func InjectIdentity(ctx context.Context, id *auth.Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, userIDKey, id.UserID)
}

func UserID(ctx context.Context) string {
	v := ctx.Value(userIDKey)
	if v == nil {
		return ""
	}
	return v.(string)
}

func Identity(ctx context.Context) *auth.Identity {
	v, _ := ctx.Value(identityKey).(*auth.Identity)
	return v
}
