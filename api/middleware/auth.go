package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/payouts-backend/api/responses"
	pkgAuth "github.com/angelmondragon/payouts-backend/pkg/auth"
	"github.com/angelmondragon/payouts-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

var errMissingCredentials = errors.New("missing credentials")

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, ok := strings.Cut(raw, " "); ok && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(rest)
	}
	if raw == "" {
		return "", errMissingCredentials
	}
	return raw, nil
}

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, err.Error()))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			ctx := WithClaims(r.Context(), claims)
			if logg != nil {
				org := ""
				if claims.OrganizationID != nil {
					org = claims.OrganizationID.String()
				}
				ctx = logg.WithActor(ctx, claims.UserID.String(), string(claims.Role), org)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
