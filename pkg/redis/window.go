package redis

import (
	"context"
	"fmt"
	"time"
)

// WindowCount is the state of one fixed-window counter after an increment.
type WindowCount struct {
	Count   int64
	ResetIn time.Duration
}

// CountInWindow increments the counter for scope and reports how long until it resets.
// The first hit in a window sets the expiry; a counter found without one is given a fresh window.
func (c *Client) CountInWindow(ctx context.Context, scope string, window time.Duration) (WindowCount, error) {
	if c.cmd == nil {
		return WindowCount{}, ErrNotInitialized
	}
	if window <= 0 {
		return WindowCount{}, fmt.Errorf("window must be positive, got %s", window)
	}
	key := c.RateLimitKey(scope)

	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return WindowCount{}, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := c.cmd.Expire(ctx, key, window).Err(); err != nil {
			return WindowCount{Count: count}, fmt.Errorf("expire %s: %w", key, err)
		}
		return WindowCount{Count: count, ResetIn: window}, nil
	}

	ttl, err := c.cmd.PTTL(ctx, key).Result()
	if err != nil {
		return WindowCount{Count: count}, fmt.Errorf("pttl %s: %w", key, err)
	}
	if ttl < 0 {
		if err := c.cmd.Expire(ctx, key, window).Err(); err != nil {
			return WindowCount{Count: count}, fmt.Errorf("expire %s: %w", key, err)
		}
		ttl = window
	}
	return WindowCount{Count: count, ResetIn: ttl}, nil
}
