package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/codes"

	telemetry "yieldfarm/observability/otel"
)

// Checkpointer brings every pool up to date.
type Checkpointer interface {
	Checkpoint() error
}

// Recorder observes checkpoint outcomes.
type Recorder interface {
	RecordCheckpoint(err error)
}

// Scheduler runs periodic pool checkpoints so idle pools do not accumulate
// long emission intervals between user actions.
type Scheduler struct {
	Cron     *cron.Cron
	target   Checkpointer
	recorder Recorder
	logger   *slog.Logger
}

// New registers the checkpoint job on spec, a standard five-field cron
// expression or a descriptor such as "@every 1m".
func New(spec string, target Checkpointer, recorder Recorder, logger *slog.Logger) (*Scheduler, error) {
	if target == nil {
		return nil, fmt.Errorf("scheduler: checkpoint target must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		Cron:     cron.New(),
		target:   target,
		recorder: recorder,
		logger:   logger,
	}
	if _, err := s.Cron.AddFunc(strings.TrimSpace(spec), s.RunNow); err != nil {
		return nil, fmt.Errorf("scheduler: register checkpoint %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler: started", "jobs", len(s.Cron.Entries()))
}

// Stop stops the scheduler and waits for a running checkpoint to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler: stopped")
}

// RunNow executes one checkpoint immediately.
func (s *Scheduler) RunNow() {
	_, span := telemetry.Tracer("farmd/scheduler").Start(context.Background(), "farm.checkpoint")
	defer span.End()

	err := s.target.Checkpoint()
	if s.recorder != nil {
		s.recorder.RecordCheckpoint(err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint failed")
		s.logger.Error("scheduler: checkpoint failed", "error", err)
		return
	}
	s.logger.Debug("scheduler: checkpoint complete")
}
