// Package scheduler runs recurring background jobs such as analysis batches.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kozaktomas/photo-grouper/internal/analysis"
	"github.com/kozaktomas/photo-grouper/internal/logger"
)

// Scheduler wraps a gocron scheduler. Every job runs in singleton mode, so a
// run still in progress when the next tick fires is not started twice.
type Scheduler struct {
	cron *gocron.Scheduler

	mu      sync.Mutex
	jobs    map[string]*gocron.Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler.
func New() *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		jobs:   make(map[string]*gocron.Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers task under name on a five-field cron expression. The task
// context is cancelled by Stop.
func (s *Scheduler) AddJob(name, cronExpr string, task func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	job, err := s.cron.Cron(cronExpr).Tag(name).Do(func() {
		logger.Debug("scheduled job starting", "job", name)
		start := time.Now()
		task(s.ctx)
		logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	logger.Info("job scheduled", "job", name, "cron", cronExpr)
	return nil
}

// RunNow triggers a registered job immediately. The scheduler must be started.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	_, exists := s.jobs[name]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	return s.cron.RunByTag(name)
}

// NextRun returns the next scheduled time of a job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[name]
	if !exists {
		return time.Time{}, false
	}
	return job.NextRun(), true
}

// Start begins executing jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.StartAsync()
	s.running = true
	logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels running tasks and waits for the scheduler to halt.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.cron.Stop()
	s.running = false
	logger.Info("scheduler stopped")
}

// ValidateCronExpression reports whether expr is a valid five-field cron expression.
func ValidateCronExpression(expr string) error {
	cron := gocron.NewScheduler(time.UTC)
	if _, err := cron.Cron(expr).Do(func() {}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// BatchRunner is satisfied by *analysis.Orchestrator.
type BatchRunner interface {
	RunUntilDone(ctx context.Context, batchSize int, onBatch func(analysis.Result)) (analysis.Result, error)
}

// AnalysisTask returns a job that keeps analyzing batches until the catalog
// has no unanalyzed photos left. A tick that finds analysis already running
// (for example started over HTTP) is skipped.
func AnalysisTask(runner BatchRunner, batchSize int) func(ctx context.Context) {
	return func(ctx context.Context) {
		res, err := runner.RunUntilDone(ctx, batchSize, func(r analysis.Result) {
			logger.Debug("scheduled analysis batch", "processed", r.Processed, "remaining", r.TotalRemaining)
		})
		switch {
		case errors.Is(err, analysis.ErrAlreadyRunning):
			logger.Debug("analysis already running, skipping scheduled run")
		case err != nil:
			logger.Error("scheduled analysis failed", "state", res.State, "processed", res.Processed, "error", err)
		case res.Processed > 0:
			logger.Info("scheduled analysis finished",
				"state", res.State,
				"processed", res.Processed,
				"remaining", res.TotalRemaining,
				"analyzed", res.TotalAnalyzed)
		}
	}
}
