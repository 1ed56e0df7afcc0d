package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/metrics"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/registry"
	"github.com/angelmondragon/payouts-backend/pkg/pubsub"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	maxJitter          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicPublisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Publisher  topicPublisher
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   resolver
	Metrics    *metrics.OutboxMetrics
}

// Relay drains committed outbox rows to Pub/Sub. Rows of one aggregate share an ordering key,
// so a voucher's issue and refund events reach subscribers in commit order.
type Relay struct {
	logg     *logger.Logger
	db       txRunner
	pub      topicPublisher
	repo     outboxRepository
	dlq      dlqRepository
	registry resolver
	metrics  *metrics.OutboxMetrics
	limiter  *rate.Limiter

	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Publisher == nil:
		return nil, errors.New("publisher is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pub:         p.Publisher,
		repo:        p.Repository,
		dlq:         p.DLQ,
		registry:    p.Registry,
		metrics:     p.Metrics,
		batchSize:   orDefault(p.Outbox.BatchSize, defaultBatchSize),
		maxAttempts: orDefault(p.Outbox.MaxAttempts, defaultMaxAttempts),
		poll:        defaultPoll,
		now:         time.Now,
	}
	if p.Outbox.PollIntervalMS > 0 {
		r.poll = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	r.limiter = newLimiter(p.Outbox.PublishRate, r.batchSize)
	return r, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// newLimiter allows a full batch to burst; a non-positive rate means unlimited.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Run polls until ctx ends. Empty polls and failed batches back off, and any
// delivered batch polls again immediately.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping: %w", name, err)
		}
	}

	wait := r.poll
	for ctx.Err() == nil {
		delivered, err := r.drain(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			wait = backoff(wait, r.poll, maxIdleBackoff)
		case delivered:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}
		if err := sleep(ctx, jitter(wait)); err != nil {
			break
		}
	}
	r.logg.Info(ctx, "outbox relay stopping")
	return ctx.Err()
}

// verdict is what happens to a row once its publish attempt settles.
type verdict string

const (
	verdictPublished    verdict = "published"
	verdictRetry        verdict = "retried"
	verdictDeadLettered verdict = "dead_lettered"
)

type attempt struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	topic   string
	eventID string
	err     error
}

// drain relays one batch inside a single transaction so row locks hold until every
// row is settled. It reports whether the batch had any rows.
func (r *Relay) drain(ctx context.Context) (bool, error) {
	var seen bool
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch batch: %w", err)
		}
		seen = len(events) > 0
		for _, event := range events {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := r.settle(ctx, tx, event, r.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) attempt {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return attempt{verdict: verdictDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}

	a := attempt{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}
	err = r.publish(ctx, event, resolved)
	switch {
	case err == nil:
		a.verdict = verdictPublished
	case registry.IsUndeliverable(err) || errors.Is(err, pubsub.ErrTopicNotConfigured):
		a.verdict, a.reason, a.err = verdictDeadLettered, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= r.maxAttempts:
		a.verdict, a.reason = verdictDeadLettered, enums.OutboxDLQReasonMaxAttempts
		a.err = fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err)
	default:
		a.verdict, a.err = verdictRetry, err
	}
	return a
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err := r.pub.Publish(ctx, resolved.Descriptor.Topic, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderingKey(event),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	return err
}

func orderingKey(event models.OutboxEvent) string {
	return string(event.AggregateType) + ":" + event.AggregateID.String()
}

// settle records the attempt on the row. Errors here abort the batch and roll back
// every row state change in it.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, a attempt) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_id":       a.eventID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"topic":          a.topic,
		"attempt_count":  event.AttemptCount + 1,
	})

	switch a.verdict {
	case verdictPublished:
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Debug(ctx, "outbox.published")
	case verdictRetry:
		if err := r.repo.MarkFailedTx(tx, event.ID, a.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", a.err.Error()), "outbox.publish_failed")
	case verdictDeadLettered:
		if err := r.dlq.InsertTx(tx, outbox.NewDLQEntry(event, a.reason, a.err, r.now())); err != nil {
			return fmt.Errorf("dead-letter %s: %w", event.ID, err)
		}
		if err := r.repo.MarkTerminalTx(tx, event.ID, a.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		ctx = r.logg.WithFields(ctx, map[string]any{"error_reason": a.reason, "error": a.err.Error()})
		r.logg.Warn(ctx, "outbox.dead_lettered")
	}
	r.metrics.Observe(string(event.EventType), string(a.verdict))
	return nil
}

func backoff(current, base, ceiling time.Duration) time.Duration {
	next := max(current, base) * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(maxJitter)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
