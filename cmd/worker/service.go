package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer consumer
}

// Service owns the notification consumer's lifetime.
type Service struct {
	logg     *logger.Logger
	deps     []dependency
	consumer consumer
}

type dependency struct {
	name string
	p    pinger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("worker: config is required")
	case params.Logger == nil:
		return nil, errors.New("worker: logger is required")
	case params.Redis == nil:
		return nil, errors.New("worker: redis client is required")
	case params.PubSub == nil:
		return nil, errors.New("worker: pubsub client is required")
	case params.NotificationConsumer == nil:
		return nil, errors.New("worker: notification consumer is required")
	}
	return &Service{
		logg: params.Logger,
		deps: []dependency{
			{name: "redis", p: params.Redis},
			{name: "pubsub", p: params.PubSub},
		},
		consumer: params.NotificationConsumer,
	}, nil
}

// Run checks dependencies, then blocks in the consumer until it returns or
// ctx ends. Cancellation waits for in-flight messages to settle.
func (s *Service) Run(ctx context.Context) error {
	for _, d := range s.deps {
		if err := d.p.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", d.name), "worker.not_ready", err)
			return fmt.Errorf("%s ping failed: %w", d.name, err)
		}
	}
	s.logg.Info(ctx, "worker.ready")

	done := make(chan error, 1)
	go func() { done <- s.consumer.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "worker.consumer_stopped", err)
		}
		if err == nil {
			err = ctx.Err()
		}
		return err
	case <-ctx.Done():
		<-done
		return ctx.Err()
	}
}
