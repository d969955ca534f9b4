package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/analysis"
)

type fakeRunner struct {
	calls     int
	batchSize int
	result    analysis.Result
	err       error
}

func (f *fakeRunner) RunUntilDone(_ context.Context, batchSize int, onBatch func(analysis.Result)) (analysis.Result, error) {
	f.calls++
	f.batchSize = batchSize
	if onBatch != nil {
		onBatch(f.result)
	}
	return f.result, f.err
}

func TestAnalysisTask(t *testing.T) {
	tests := []struct {
		name   string
		result analysis.Result
		err    error
	}{
		{"processed", analysis.Result{State: analysis.StateSucceeded, Processed: 3}, nil},
		{"nothing to do", analysis.Result{State: analysis.StateSucceeded}, nil},
		{"already running", analysis.Result{}, analysis.ErrAlreadyRunning},
		{"failed", analysis.Result{State: analysis.StateRetrying}, errors.New("db down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: tt.result, err: tt.err}
			AnalysisTask(runner, 25)(context.Background())

			if runner.calls != 1 {
				t.Errorf("expected 1 call, got %d", runner.calls)
			}
			if runner.batchSize != 25 {
				t.Errorf("expected batch size 25, got %d", runner.batchSize)
			}
		})
	}
}

func TestValidateCronExpression(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/15 * * * *", false},
		{"0 3 * * *", false},
		{"not a cron", true},
		{"61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpression(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_AddJob(t *testing.T) {
	s := New()

	if err := s.AddJob("analysis", "0 3 * * *", func(context.Context) {}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	if err := s.AddJob("analysis", "0 4 * * *", func(context.Context) {}); err == nil {
		t.Error("expected error for duplicate job")
	}
	if err := s.AddJob("broken", "nope", func(context.Context) {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if _, ok := s.NextRun("missing"); ok {
		t.Error("expected no next run for unknown job")
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := New()
	done := make(chan struct{}, 1)

	err := s.AddJob("analysis", "0 3 1 1 *", func(ctx context.Context) {
		if ctx.Err() != nil {
			t.Error("task context cancelled before Stop")
		}
		done <- struct{}{}
	})
	if err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	s.Start()
	defer s.Stop()

	if err := s.RunNow("analysis"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestScheduler_StopCancelsContext(t *testing.T) {
	s := New()
	s.Start()
	s.Stop()

	if s.ctx.Err() == nil {
		t.Error("expected task context to be cancelled after Stop")
	}
	// Stopping twice is a no-op
	s.Stop()
}
