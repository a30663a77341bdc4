package middleware

import (
	"context"

	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/google/uuid"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxTokenRole contextKey = "token_role"
	ctxRole      contextKey = "actor_role"
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

// RoleFromContext returns the role the caller is acting as for this request.
func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

func tokenRoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTokenRole).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext assembles the authenticated actor. The zero Actor is
// returned when the request carries no usable identity.
func ActorFromContext(ctx context.Context) auth.Actor {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return auth.Actor{}
	}
	role, err := enums.ParseRole(RoleFromContext(ctx))
	if err != nil {
		return auth.Actor{}
	}
	return auth.Actor{UserID: userID, Role: role}
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole sets the acting role for downstream handlers.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithActor is shorthand for WithUserID plus WithRole.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	ctx = WithUserID(ctx, actor.UserID.String())
	return WithRole(ctx, string(actor.Role))
}
