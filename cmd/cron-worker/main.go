package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/payouts-backend/internal/bootstrap"
	"github.com/angelmondragon/payouts-backend/internal/cron"
	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/metrics"
	"github.com/angelmondragon/payouts-backend/pkg/migrate"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env not found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "resource not working: config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	services, err := bootstrap.NewServices(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}

	registry, err := buildJobs(cfg, logg, dbClient, redisClient, services)
	if err != nil {
		return err
	}

	cycleLocker, err := cron.NewLocker(redisClient, 0)
	if err != nil {
		return fmt.Errorf("cycle locker: %w", err)
	}
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   cycleLocker,
		LockKey:  redisClient.LockKey(serviceKind, env),
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Payouts.CronInterval,
		Schedule: cfg.Payouts.CronSchedule,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// buildJobs registers invoice generation ahead of retention so a cycle closes periods first.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, services *bootstrap.Services) (*cron.Registry, error) {
	invoiceLocker, err := cron.NewLocker(redisClient, cfg.Payouts.InvoiceLockTTL)
	if err != nil {
		return nil, fmt.Errorf("invoice locker: %w", err)
	}
	invoiceJob, err := cron.NewPayoutInvoiceJob(cron.PayoutInvoiceJobParams{
		Logger:      logg,
		Payouts:     services.Payouts,
		Locker:      invoiceLocker,
		Concurrency: cfg.Payouts.InvoiceConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("payout invoice job: %w", err)
	}

	retentionJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger: logg,
		DB:     dbClient,
		Targets: []cron.RetentionTarget{
			cron.OutboxRetention(services.OutboxRepo, cfg.Outbox.MaxAttempts, cfg.Outbox.Retention),
			cron.DLQRetention(outbox.NewDLQRepository(dbClient.DB()), cfg.Outbox.DLQRetention),
			cron.NotificationRetention(services.NotificationsRepo, cfg.Payouts.NotificationRetention),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retention job: %w", err)
	}

	registry, err := cron.NewRegistry(invoiceJob, retentionJob)
	if err != nil {
		return nil, fmt.Errorf("job registry: %w", err)
	}
	return registry, nil
}
