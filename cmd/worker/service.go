package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies map[string]pinger
	Consumers    map[string]consumer
}

// Service checks its dependencies once, then runs every consumer until one fails or ctx ends.
type Service struct {
	logg      *logger.Logger
	deps      map[string]pinger
	consumers map[string]consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, dep := range params.Dependencies {
		if dep == nil {
			return nil, fmt.Errorf("%s client is required", name)
		}
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("%s consumer is required", name)
		}
	}
	return &Service{logg: params.Logger, deps: params.Dependencies, consumers: params.Consumers}, nil
}

func (s *Service) checkDependencies(ctx context.Context) error {
	for _, name := range slices.Sorted(maps.Keys(s.deps)) {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.deps[name].Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "worker.dependencies_ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for name, c := range s.consumers {
		group.Go(func() error {
			consumerCtx := s.logg.WithField(groupCtx, "consumer", name)
			s.logg.Info(consumerCtx, "worker.consumer_started")
			err := c.Run(consumerCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				return err
			}
			s.logg.Error(consumerCtx, "worker.consumer_failed", err)
			return fmt.Errorf("%s consumer: %w", name, err)
		})
	}
	return group.Wait()
}
