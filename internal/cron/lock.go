package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/instance"
)

const defaultLeaseTTL = 25 * time.Hour

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

// Locker hands out expiring, exclusive leases on Redis keys.
type Locker struct {
	store leaseStore
	ttl   time.Duration
}

func NewLocker(store leaseStore, ttl time.Duration) (*Locker, error) {
	if store == nil {
		return nil, errors.New("lease store required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &Locker{store: store, ttl: ttl}, nil
}

// TryAcquire returns a nil lease, without error, when someone else holds key.
func (l *Locker) TryAcquire(ctx context.Context, key string) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key required")
	}
	// token reads "<instance>:<uuid>" so operators can tell which process holds the key
	token := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{store: l.store, key: key, token: token}, nil
}

// Lease is held until Release or TTL expiry.
type Lease struct {
	store leaseStore
	key   string
	token string
}

func (l *Lease) Key() string {
	if l == nil {
		return ""
	}
	return l.key
}

// Release deletes the key only while it still carries this lease's token, so a lease
// that expired and was re-granted elsewhere is left alone. Releasing twice is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.DeleteIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
