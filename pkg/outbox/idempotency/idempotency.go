// Package idempotency keeps Pub/Sub redeliveries from being handled twice by the same consumer.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the slice of the redis client a Guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard claims event IDs for one consumer. Markers live under
// payouts:idempotency:evt:<consumer>:<event_id> until ttl expires.
type Guard struct {
	store    Store
	consumer string
	ttl      time.Duration
}

func NewGuard(store Store, consumer string, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return &Guard{store: store, consumer: consumer, ttl: ttl}, nil
}

func (g *Guard) Consumer() string { return g.consumer }

// Claim marks eventID as taken. fresh is false when an earlier delivery already holds the marker.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (claim Claim, fresh bool, err error) {
	if eventID == uuid.Nil {
		return Claim{}, false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey("evt:"+g.consumer, eventID.String())
	fresh, err = g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return Claim{}, false, fmt.Errorf("claim %s for %s: %w", eventID, g.consumer, err)
	}
	if !fresh {
		return Claim{}, false, nil
	}
	return Claim{store: g.store, key: key}, true, nil
}

// Claim is a held marker. The zero value is safe to release.
type Claim struct {
	store Store
	key   string
}

// Release drops the marker so the next delivery is processed again.
func (c Claim) Release(ctx context.Context) error {
	if c.store == nil || c.key == "" {
		return nil
	}
	return c.store.Del(ctx, c.key)
}
