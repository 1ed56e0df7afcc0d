package controllers

import (
	"net/http"

	"github.com/angelmondragon/payouts-backend/api/middleware"
	"github.com/angelmondragon/payouts-backend/api/responses"
)

type pingResponse struct {
	Scope          string `json:"scope"`
	Status         string `json:"status"`
	Role           string `json:"role,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		responses.WriteSuccess(w, pingResponse{Scope: "public", Status: "ok"})
	}
}

// PrivatePing echoes the identity the auth middleware resolved.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		responses.WriteSuccess(w, pingResponse{
			Scope:          "private",
			Status:         "ok",
			Role:           middleware.RoleFromContext(ctx),
			UserID:         middleware.UserIDFromContext(ctx),
			OrganizationID: middleware.OrganizationIDFromContext(ctx),
		})
	}
}
