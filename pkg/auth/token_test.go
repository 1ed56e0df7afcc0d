package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

func testJWTConfig(minutes int) config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "payouts", ExpirationMinutes: minutes}
}

func mint(t *testing.T, cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) string {
	t.Helper()
	token, err := MintAccessToken(cfg, now, payload)
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig(30)
	now := time.Now().UTC()
	userID, orgID := uuid.New(), uuid.New()

	token := mint(t, cfg, now, AccessTokenPayload{
		UserID:         userID,
		OrganizationID: &orgID,
		Role:           enums.ActorRoleSeller,
		Email:          " seller@example.com ",
		Name:           "Seller One",
	})

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, orgID, *claims.OrganizationID)
	require.Equal(t, enums.ActorRoleSeller, claims.Role)
	require.Equal(t, "seller@example.com", claims.Email)
	require.Equal(t, "Seller One", claims.Name)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.Equal(t, userID.String(), claims.Subject)
	require.NotEmpty(t, claims.ID)
	require.WithinDuration(t, now.Add(cfg.Expiration()), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenFailures(t *testing.T) {
	cfg := testJWTConfig(15)
	customer := AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleCustomer}

	t.Run("tampered signature", func(t *testing.T) {
		_, err := ParseAccessToken(cfg, mint(t, cfg, time.Now(), customer)+"x")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := ParseAccessToken(cfg, mint(t, cfg, time.Now().Add(-time.Hour), customer))
		require.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("within clock skew", func(t *testing.T) {
		issued := time.Now().Add(-cfg.Expiration()).Add(-clockSkew / 2)
		_, err := ParseAccessToken(cfg, mint(t, cfg, issued, customer))
		require.NoError(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := cfg
		other.Issuer = "someone-else"
		_, err := ParseAccessToken(other, mint(t, cfg, time.Now(), customer))
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("no expiry", func(t *testing.T) {
		claims := customer.claims(cfg.Issuer, time.Now(), time.Hour)
		claims.ExpiresAt = nil
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		_, err = ParseAccessToken(cfg, raw)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("seller without organization", func(t *testing.T) {
		claims := AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleSeller}.claims(cfg.Issuer, time.Now(), time.Hour)
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		_, err = ParseAccessToken(cfg, raw)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestMintAccessTokenRejectsInvalidInput(t *testing.T) {
	cfg := testJWTConfig(5)
	cases := map[string]AccessTokenPayload{
		"missing role":       {UserID: uuid.New()},
		"unknown role":       {UserID: uuid.New(), Role: "agent"},
		"missing user":       {Role: enums.ActorRoleCustomer},
		"seller without org": {UserID: uuid.New(), Role: enums.ActorRoleSeller},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MintAccessToken(cfg, time.Now(), payload)
			require.Error(t, err)
		})
	}

	_, err := MintAccessToken(testJWTConfig(0), time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin})
	require.Error(t, err)
}
