// Package cron runs the periodic housekeeping jobs of the shop: expiring
// abandoned checkout sessions and trimming the published outbox.
package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute
)

type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service ticks through the registry on a fixed cadence. Each job runs under
// its own distributed lock so replicas split work instead of repeating it.
type Service struct {
	logg       *logger.Logger
	jobs       *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	}
	s := &Service{
		logg:       params.Logger,
		jobs:       params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.jobs == nil {
		s.jobs = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run performs a cycle right away, then one per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce gives every job one chance to run. Failures are logged and
// counted; later jobs still run.
func (s *Service) RunOnce(ctx context.Context) {
	for _, job := range s.jobs.Jobs() {
		if ctx.Err() != nil {
			return
		}
		name := job.Name()
		jobCtx := s.logg.WithField(ctx, "job", name)
		outcome, took := s.attempt(jobCtx, job)
		s.metrics.Observe(name, outcome, took)
	}
}

func (s *Service) attempt(ctx context.Context, job Job) (string, time.Duration) {
	name := job.Name()
	held, err := s.lock.Acquire(ctx, name)
	if err != nil {
		s.logg.Error(ctx, "cron.lock_failed", err)
		return metrics.CronFailed, 0
	}
	if !held {
		s.logg.Debug(ctx, "cron.skipped")
		return metrics.CronSkipped, 0
	}
	defer func() {
		if err := s.lock.Release(ctx, name); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron.unlock_failed")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	start := time.Now()
	err = job.Run(runCtx)
	took := time.Since(start)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return metrics.CronFailed, took
	}
	s.logg.Info(ctx, "cron.job_done")
	return metrics.CronSucceeded, took
}
