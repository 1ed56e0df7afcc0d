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
	"github.com/angelmondragon/payouts-backend/internal/cancellations"
	"github.com/angelmondragon/payouts-backend/internal/notifications"
	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/migrate"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/payouts-backend/pkg/pubsub"
	"github.com/angelmondragon/payouts-backend/pkg/redis"
)

const serviceKind = "worker"

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
		logg.Error(ctx, "worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer pubsubClient.Close()

	services, err := bootstrap.NewServices(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}

	consumers, err := buildConsumers(cfg, logg, redisClient, pubsubClient, services)
	if err != nil {
		return err
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
		Consumers: consumers,
	})
	if err != nil {
		return fmt.Errorf("worker service: %w", err)
	}
	return service.Run(ctx)
}

// buildConsumers gives each consumer its own idempotency namespace so a redelivered
// event is deduplicated per consumer, not across them.
func buildConsumers(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, pubsubClient *pubsub.Client, services *bootstrap.Services) (map[string]consumer, error) {
	ttl := cfg.Eventing.OutboxIdempotencyTTL

	cancellationGuard, err := idempotency.NewGuard(redisClient, cancellations.ConsumerName, ttl)
	if err != nil {
		return nil, fmt.Errorf("cancellation idempotency: %w", err)
	}
	cancellationConsumer, err := cancellations.NewConsumer(services.Cancellations, pubsubClient.OrdersSubscription(), cancellationGuard, logg)
	if err != nil {
		return nil, fmt.Errorf("cancellation consumer: %w", err)
	}

	notificationGuard, err := idempotency.NewGuard(redisClient, notifications.ConsumerName, ttl)
	if err != nil {
		return nil, fmt.Errorf("notification idempotency: %w", err)
	}
	notificationConsumer, err := notifications.NewConsumer(services.NotificationsRepo, pubsubClient.NotificationSubscription(), notificationGuard, logg)
	if err != nil {
		return nil, fmt.Errorf("notification consumer: %w", err)
	}

	return map[string]consumer{
		cancellations.ConsumerName: cancellationConsumer,
		notifications.ConsumerName: notificationConsumer,
	}, nil
}
