package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
)

type contextKey string

const (
	ctxUserID         contextKey = "user_id"
	ctxRole           contextKey = "actor_role"
	ctxOrganizationID contextKey = "organization_id"
	ctxEmail          contextKey = "email"
	ctxName           contextKey = "name"
)

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// OrganizationIDFromContext is only populated for seller tokens.
func OrganizationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxOrganizationID)
}

func EmailFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxEmail)
}

func NameFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxName)
}

// WithClaims seeds the context with the identity carried by an access token.
func WithClaims(ctx context.Context, claims *auth.AccessTokenClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if claims == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, ctxUserID, claims.UserID.String())
	ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
	if claims.OrganizationID != nil && *claims.OrganizationID != uuid.Nil {
		ctx = context.WithValue(ctx, ctxOrganizationID, claims.OrganizationID.String())
	}
	if claims.Email != "" {
		ctx = context.WithValue(ctx, ctxEmail, claims.Email)
	}
	if claims.Name != "" {
		ctx = context.WithValue(ctx, ctxName, claims.Name)
	}
	return ctx
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

// WithOrganizationID injects the seller organization into the context for downstream handlers.
func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOrganizationID, organizationID)
}

// UserUUIDFromContext parses the authenticated user id.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// OrganizationUUIDFromContext parses the seller organization carried by the token.
func OrganizationUUIDFromContext(ctx context.Context) (uuid.UUID, error) {
	raw := OrganizationIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "organization context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid organization id")
	}
	return id, nil
}

// ActorFromContext builds the outbox actor reference for the authenticated caller.
func ActorFromContext(ctx context.Context) (*outbox.ActorRef, error) {
	userID, err := UserUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	actor := &outbox.ActorRef{UserID: userID, Role: RoleFromContext(ctx)}
	if orgID, err := OrganizationUUIDFromContext(ctx); err == nil {
		actor.OrganizationID = &orgID
	}
	return actor, nil
}
