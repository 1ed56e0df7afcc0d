package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeConsumer struct {
	err     error
	started atomic.Bool
}

func (f *fakeConsumer) Run(ctx context.Context) error {
	f.started.Store(true)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func newTestService(t *testing.T, db pinger, cancellations, notifications consumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Dependencies: map[string]pinger{
			"database": db,
			"redis":    fakePinger{},
			"pubsub":   fakePinger{},
		},
		Consumers: map[string]consumer{
			"cancellations": cancellations,
			"notifications": notifications,
		},
	})
	require.NoError(t, err)
	return svc
}

func TestRunFailsWhenDependencyUnavailable(t *testing.T) {
	a, b := &fakeConsumer{}, &fakeConsumer{}
	svc := newTestService(t, fakePinger{err: errors.New("connection refused")}, a, b)

	err := svc.Run(context.Background())
	require.ErrorContains(t, err, "database ping failed")
	require.False(t, a.started.Load())
	require.False(t, b.started.Load())
}

func TestRunStopsOnConsumerFailure(t *testing.T) {
	a := &fakeConsumer{err: errors.New("subscription deleted")}
	b := &fakeConsumer{}
	svc := newTestService(t, fakePinger{}, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := svc.Run(ctx)
	require.ErrorContains(t, err, "cancellations consumer: subscription deleted")
	require.True(t, b.started.Load())
}

func TestRunReturnsOnCancel(t *testing.T) {
	svc := newTestService(t, fakePinger{}, &fakeConsumer{}, &fakeConsumer{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.ErrorContains(t, err, "at least one consumer")

	_, err = NewService(ServiceParams{
		Logger:    testLogger(),
		Consumers: map[string]consumer{"cancellations": nil},
	})
	require.ErrorContains(t, err, "cancellations consumer is required")

	_, err = NewService(ServiceParams{
		Logger:       testLogger(),
		Dependencies: map[string]pinger{"redis": nil},
		Consumers:    map[string]consumer{"notifications": &fakeConsumer{}},
	})
	require.ErrorContains(t, err, "redis client is required")
}
