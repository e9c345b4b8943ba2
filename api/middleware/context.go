package middleware

import (
	"context"

	pkgAuth "github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/google/uuid"
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

// ActorFromContext rebuilds the authenticated identity seeded by Auth. The
// zero Actor is returned when the request is anonymous or the values are
// malformed.
func ActorFromContext(ctx context.Context) pkgAuth.Actor {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return pkgAuth.Actor{}
	}
	role, err := enums.ParseUserRole(RoleFromContext(ctx))
	if err != nil {
		return pkgAuth.Actor{}
	}
	return pkgAuth.Actor{UserID: id, Role: role}
}

// WithActor injects an authenticated identity into the context.
func WithActor(ctx context.Context, actor pkgAuth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.UserID.String())
	return context.WithValue(ctx, ctxRole, string(actor.Role))
}
