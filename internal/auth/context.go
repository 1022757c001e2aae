package auth

import (
	"context"

	"github.com/keenchase/edit-business/internal/model"
)

type contextKey string

const identityContextKey contextKey = "identity"

// ContextWithIdentity stores the authenticated caller in ctx.
func ContextWithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the caller, or nil if the request is anonymous.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok {
		return nil
	}
	return id
}

// UserIDFromContext returns the caller's user ID or "".
func UserIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}
