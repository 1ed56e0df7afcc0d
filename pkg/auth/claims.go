// Package auth mints and verifies the HS256 access tokens presented to the API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// AccessTokenPayload is the identity to embed in a new token.
type AccessTokenPayload struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Role           enums.ActorRole
	Email          string
	Name           string
	JTI            string
}

// AccessTokenClaims is what customers, sellers, admins and the order ledger present.
// OrganizationID is required for sellers and ignored for everyone else.
type AccessTokenClaims struct {
	UserID         uuid.UUID       `json:"user_id"`
	OrganizationID *uuid.UUID      `json:"organization_id,omitempty"`
	Role           enums.ActorRole `json:"role"`
	Email          string          `json:"email,omitempty"`
	Name           string          `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (p AccessTokenPayload) claims(issuer string, now time.Time, ttl time.Duration) *AccessTokenClaims {
	jti := strings.TrimSpace(p.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	return &AccessTokenClaims{
		UserID:         p.UserID,
		OrganizationID: p.OrganizationID,
		Role:           p.Role,
		Email:          strings.TrimSpace(p.Email),
		Name:           strings.TrimSpace(p.Name),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
}

// validate checks the identity fields shared by minting and parsing.
func (c *AccessTokenClaims) validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("user id is required")
	case !c.Role.IsValid():
		return fmt.Errorf("invalid actor role %q", c.Role)
	case c.Role == enums.ActorRoleSeller && (c.OrganizationID == nil || *c.OrganizationID == uuid.Nil):
		return errors.New("seller tokens require an organization id")
	}
	return nil
}
