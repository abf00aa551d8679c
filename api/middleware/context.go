package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// ActorFromContext rebuilds the authenticated actor from context values. The
// second return is false when the request was never authenticated.
func ActorFromContext(ctx context.Context) (access.Actor, bool) {
	rawID := UserIDFromContext(ctx)
	rawRole := RoleFromContext(ctx)
	if rawID == "" || rawRole == "" {
		return access.Actor{}, false
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return access.Actor{}, false
	}
	role := enums.Role(rawRole)
	if !role.IsValid() {
		return access.Actor{}, false
	}
	return access.Actor{UserID: userID, Role: role}, true
}
