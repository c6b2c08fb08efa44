package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval while holding the
// distributed lock. Only one worker runs a cycle at a time.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// CycleReport summarizes one scheduling cycle.
type CycleReport struct {
	Skipped bool
	Ran     []string
	Failed  []string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run fires a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        s.registry.Names(),
		"interval_ms": s.interval.Milliseconds(),
	}), "cron service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle. Job failures are reported, not returned;
// the error covers lock problems only.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		report.Skipped = true
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "cron lock held elsewhere, skipping cycle")
		return report, nil
	}
	defer func() {
		// release even when shutdown canceled ctx mid-cycle
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ran":    len(report.Ran),
		"failed": report.Failed,
	}), "cron cycle complete")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
			jobCtx = s.logg.WithField(jobCtx, "stack", string(debug.Stack()))
		}
		s.metrics.ObserveRun(job.Name(), started, err)
		doneCtx := s.logg.WithField(jobCtx, "duration_ms", time.Since(started).Milliseconds())
		if err != nil {
			s.logg.Error(doneCtx, "job failed", err)
			return
		}
		s.logg.Info(doneCtx, "job completed")
	}()
	return job.Run(jobCtx)
}
