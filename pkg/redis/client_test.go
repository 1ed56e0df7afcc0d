package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payouts-backend/pkg/config"
)

type fakeCommands struct {
	data    map[string]string
	ttls    map[string]time.Duration
	expires []string
	evalErr error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func newTestClient(cmd *fakeCommands) *Client {
	return &Client{cmd: cmd, keys: NewKeyspace("payouts")}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	value, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	var n int64
	fmt.Sscan(f.data[key], &n)
	n++
	f.data[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommands) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires = append(f.expires, key)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) PTTL(_ context.Context, key string) *redis.DurationCmd {
	ttl, ok := f.ttls[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(ttl, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if script != compareAndDeleteScript || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, errors.New("unexpected script"))
	}
	if f.data[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestCountInWindow(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeCommands()
	client := newTestClient(cmd)

	first, err := client.CountInWindow(ctx, "redeem:user:1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, WindowCount{Count: 1, ResetIn: time.Minute}, first)

	cmd.ttls["payouts:rate_limit:redeem:user:1"] = 20 * time.Second
	second, err := client.CountInWindow(ctx, "redeem:user:1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), second.Count)
	require.Equal(t, 20*time.Second, second.ResetIn)
	require.Len(t, cmd.expires, 1)

	_, err = client.CountInWindow(ctx, "redeem:user:1", 0)
	require.Error(t, err)
}

func TestCountInWindowRepairsMissingExpiry(t *testing.T) {
	cmd := newFakeCommands()
	client := newTestClient(cmd)
	cmd.data["payouts:rate_limit:scope"] = "4"

	got, err := client.CountInWindow(context.Background(), "scope", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Count)
	require.Equal(t, time.Minute, got.ResetIn)
	require.Equal(t, []string{"payouts:rate_limit:scope"}, cmd.expires)
}

func TestLookupAndSetNX(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(newFakeCommands())
	key := client.LockKey("cron-worker", "test")

	_, found, err := client.Lookup(ctx, key)
	require.NoError(t, err)
	require.False(t, found)

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	value, found, err := client.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "owner-a", value)
}

func TestDeleteIfValue(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeCommands()
	client := newTestClient(cmd)
	cmd.data["k"] = "owner-a"

	deleted, err := client.DeleteIfValue(ctx, "k", "owner-b")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Contains(t, cmd.data, "k")

	deleted, err = client.DeleteIfValue(ctx, "k", "owner-a")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NotContains(t, cmd.data, "k")

	cmd.evalErr = errors.New("NOSCRIPT")
	_, err = client.DeleteIfValue(ctx, "k", "owner-a")
	require.ErrorIs(t, err, cmd.evalErr)
}

func TestKeyspace(t *testing.T) {
	keys := NewKeyspace(" staging: ")
	require.Equal(t, "staging:idempotency:evt:orders:42", keys.Idempotency("evt:orders", "42"))
	require.Equal(t, "staging:rate_limit:scope", keys.RateLimit("scope"))
	require.Equal(t, "staging:lock:cron-worker", keys.Lock("cron-worker", ""))

	require.Equal(t, "payouts:lock:cron-worker:prod", NewKeyspace("").Lock("cron-worker", "prod"))
	require.Equal(t, "payouts:rate_limit:x", Keyspace{}.RateLimit("x"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/3", DB: 5, PoolSize: 20})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 20, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, time.Second, opts.DialTimeout)
}

func TestZeroClient(t *testing.T) {
	client := &Client{}
	_, _, err := client.Lookup(context.Background(), "k")
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = client.CountInWindow(context.Background(), "k", time.Second)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.NoError(t, client.Close())
}
