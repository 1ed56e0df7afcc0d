package cron

import (
	"context"
	"fmt"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service. Schedule, a standard five-field cron
// expression evaluated in UTC, takes precedence over Interval.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   *Locker
	LockKey  string
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Schedule string
}

// Service runs every registered job once per tick while holding the cluster-wide lease.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locker   *Locker
	lockKey  string
	metrics  *metrics.CronJobMetrics
	schedule robfigcron.Schedule
	now      func() time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locker == nil || params.LockKey == "" {
		return nil, fmt.Errorf("locker and lock key required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	schedule, err := parseSchedule(params.Schedule, params.Interval)
	if err != nil {
		return nil, err
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locker:   params.Locker,
		lockKey:  params.LockKey,
		metrics:  params.Metrics,
		schedule: schedule,
		now:      time.Now,
	}, nil
}

func parseSchedule(expr string, interval time.Duration) (robfigcron.Schedule, error) {
	if expr != "" {
		schedule, err := robfigcron.ParseStandard("CRON_TZ=UTC " + expr)
		if err != nil {
			return nil, fmt.Errorf("parse cron schedule %q: %w", expr, err)
		}
		return schedule, nil
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return robfigcron.Every(interval), nil
}

// Run executes a cycle immediately, then on every schedule tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}

		next := s.schedule.Next(s.now())
		s.logg.Debug(s.logg.WithField(ctx, "next_run", next.UTC().Format(time.RFC3339)), "cron cycle scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	lease, err := s.locker.TryAcquire(ctx, s.lockKey)
	if err != nil {
		s.metrics.IncCycle("lock_error")
		return fmt.Errorf("lock acquire: %w", err)
	}
	if lease == nil {
		s.metrics.IncCycle("locked")
		s.logg.Info(ctx, "cron.cycle_skipped_locked")
		return nil
	}
	s.metrics.IncCycle("ran")
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "cron.lease_release_failed", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithJob(ctx, job.Name())
	start := s.now()
	outcome, err := safeRun(jobCtx, job)
	finished := s.now()
	duration := finished.Sub(start)
	s.metrics.ObserveRun(job.Name(), outcome, duration, finished)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job "+outcome, err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}

// safeRun keeps one panicking job from taking down the cycle.
func safeRun(ctx context.Context, job Job) (outcome string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = metrics.JobOutcomePanic
			err = fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	if err := job.Run(ctx); err != nil {
		return metrics.JobOutcomeFailure, err
	}
	return metrics.JobOutcomeSuccess, nil
}
