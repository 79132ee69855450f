package usecase

import (
	"context"
	"log/slog"
	"time"

	"newsdigest/internal/metrics"
	"newsdigest/internal/ports"
)

// Scheduler wires the recurring driver with a full pipeline run followed by
// digest delivery.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	sender   *Sender
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, sender *Sender, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, sender: sender, logger: logger}
}

// Start registers the run-then-send job with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := s.pipeline.Run(ctx); err != nil {
			metrics.Global.SetError(err.Error())
			s.logger.Error("pipeline run failed", "error", err)
			return
		}
		if s.sender != nil {
			if _, err := s.sender.SendAll(ctx); err != nil {
				metrics.Global.SetError(err.Error())
				s.logger.Error("digest delivery failed", "error", err)
				return
			}
		}
		metrics.Global.SetLastRun()
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
