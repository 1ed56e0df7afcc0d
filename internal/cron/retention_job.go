package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 30 * 24 * time.Hour
	defaultNotificationRetention = 90 * 24 * time.Hour
	defaultDLQRetention          = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PruneFunc deletes rows older than cutoff inside tx and reports how many were removed.
type PruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionTarget is one table the retention job keeps bounded.
type RetentionTarget struct {
	Name      string
	Retention time.Duration
	Prune     PruneFunc
}

type RetentionJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Targets []RetentionTarget
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type notificationPruner interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetention prunes published outbox rows and rows that ran out of publish attempts.
func OutboxRetention(repo outboxPruner, maxAttempts int, retention time.Duration) RetentionTarget {
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return RetentionTarget{
		Name:      "outbox_events",
		Retention: retention,
		Prune: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return repo.DeletePublishedBefore(ctx, tx, cutoff, maxAttempts)
		},
	}
}

// DLQRetention prunes dead letters after operators had time to replay them.
func DLQRetention(repo dlqPruner, retention time.Duration) RetentionTarget {
	if retention <= 0 {
		retention = defaultDLQRetention
	}
	return RetentionTarget{
		Name:      "outbox_dlq",
		Retention: retention,
		Prune:     repo.DeleteFailedBefore,
	}
}

// NotificationRetention prunes inbox entries once they age out.
func NotificationRetention(repo notificationPruner, retention time.Duration) RetentionTarget {
	if retention <= 0 {
		retention = defaultNotificationRetention
	}
	return RetentionTarget{
		Name:      "notifications",
		Retention: retention,
		Prune:     repo.DeleteOlderThan,
	}
}

func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if len(params.Targets) == 0 {
		return nil, fmt.Errorf("at least one retention target required")
	}
	for _, target := range params.Targets {
		if target.Name == "" || target.Prune == nil || target.Retention <= 0 {
			return nil, fmt.Errorf("retention target %q incomplete", target.Name)
		}
	}
	return &retentionJob{
		logg:    params.Logger,
		db:      params.DB,
		targets: params.Targets,
		now:     time.Now,
	}, nil
}

type retentionJob struct {
	logg    *logger.Logger
	db      txRunner
	targets []RetentionTarget
	now     func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

// Run prunes each target in its own transaction; one failing table does not block the others.
func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, target := range j.targets {
		cutoff := now.Add(-target.Retention)
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := target.Prune(ctx, tx, cutoff)
			if err != nil {
				return err
			}
			deleted = rows
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s retention: %w", target.Name, err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"target":       target.Name,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "retention cleanup complete")
	}
	return errs
}
