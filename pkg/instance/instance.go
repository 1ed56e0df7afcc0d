package instance

import (
	"os"

	"github.com/angelmondragon/payouts-backend/pkg/env"
)

// GetID identifies the running process in lock owners and logs.
// PAYOUTS_INSTANCE_ID wins, then the hostname (the pod name on Cloud Run and GKE).
func GetID() string {
	if id := env.First("", "PAYOUTS_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "payouts-0"
}
