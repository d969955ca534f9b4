package handlers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJobManager_StartCompletes(t *testing.T) {
	manager := NewJobManager()

	job, err := manager.Start(JobKindCluster, func(ctx context.Context, job *Job) (any, error) {
		job.SetProgress(map[string]int{"visited": 1})
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := waitForJob(t, manager, job.ID())
	if snap.Status != JobStatusCompleted {
		t.Errorf("expected status 'completed', got '%s'", snap.Status)
	}
	if snap.Result != "done" {
		t.Errorf("expected result 'done', got %v", snap.Result)
	}
	if snap.Progress == nil || snap.CompletedAt == nil {
		t.Error("expected progress and completion time to be recorded")
	}
	if manager.Active(JobKindCluster) != job {
		t.Error("expected job to be the active cluster job")
	}
	if len(manager.ListJobs()) != 1 {
		t.Errorf("expected 1 job, got %d", len(manager.ListJobs()))
	}
}

func TestJobManager_OnePerKind(t *testing.T) {
	manager := NewJobManager()
	release := make(chan struct{})

	first, err := manager.Start(JobKindAnalysis, func(ctx context.Context, job *Job) (any, error) {
		<-release
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := manager.Start(JobKindAnalysis, func(context.Context, *Job) (any, error) { return nil, nil }); !errors.Is(err, ErrJobRunning) {
		t.Errorf("expected ErrJobRunning, got %v", err)
	}

	// Other kinds are independent
	other, err := manager.Start(JobKindDuplicates, func(context.Context, *Job) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("Start of another kind failed: %v", err)
	}
	waitForJob(t, manager, other.ID())

	close(release)
	waitForJob(t, manager, first.ID())

	if _, err := manager.Start(JobKindAnalysis, func(context.Context, *Job) (any, error) { return nil, nil }); err != nil {
		t.Errorf("expected new job after the first finished, got %v", err)
	}
}

func TestJobManager_OnePerKindUntilCancelledJobReturns(t *testing.T) {
	manager := NewJobManager()
	cancelled := make(chan struct{})
	release := make(chan struct{})

	first, err := manager.Start(JobKindCluster, func(ctx context.Context, job *Job) (any, error) {
		<-ctx.Done()
		close(cancelled)
		<-release
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	first.Cancel()
	<-cancelled

	if !first.Running() {
		t.Fatal("expected the cancelled job to still be running")
	}
	if _, err := manager.Start(JobKindCluster, func(context.Context, *Job) (any, error) { return nil, nil }); !errors.Is(err, ErrJobRunning) {
		t.Errorf("expected ErrJobRunning while the cancelled job is still running, got %v", err)
	}

	close(release)
	if snap := waitForJob(t, manager, first.ID()); snap.Status != JobStatusCancelled {
		t.Errorf("expected cancelled status, got %s", snap.Status)
	}
	if first.Running() {
		t.Error("expected the job to have stopped")
	}

	second, err := manager.Start(JobKindCluster, func(context.Context, *Job) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("expected a new job once the cancelled one returned, got %v", err)
	}
	waitForJob(t, manager, second.ID())
}

func TestJobManager_Failed(t *testing.T) {
	manager := NewJobManager()

	job, _ := manager.Start(JobKindCluster, func(context.Context, *Job) (any, error) {
		return nil, errors.New("boom")
	})
	snap := waitForJob(t, manager, job.ID())

	if snap.Status != JobStatusFailed {
		t.Errorf("expected status 'failed', got '%s'", snap.Status)
	}
	if snap.Error != "boom" {
		t.Errorf("expected error 'boom', got '%s'", snap.Error)
	}
}

func TestJob_Cancel(t *testing.T) {
	manager := NewJobManager()
	started := make(chan struct{})

	job, _ := manager.Start(JobKindDuplicates, func(ctx context.Context, job *Job) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	ch := job.AddListener()
	defer job.RemoveListener(ch)

	job.Cancel()
	if job.GetStatus() != JobStatusCancelled {
		t.Errorf("expected status 'cancelled', got '%s'", job.GetStatus())
	}

	select {
	case event := <-ch:
		if event.Type != "cancelled" {
			t.Errorf("expected event type 'cancelled', got '%s'", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected cancelled event")
	}

	snap := waitForJob(t, manager, job.ID())
	if snap.Status != JobStatusCancelled {
		t.Errorf("expected final status 'cancelled', got '%s'", snap.Status)
	}
	if snap.Error != "" {
		t.Errorf("cancelled job should carry no error, got '%s'", snap.Error)
	}
}

func TestEventBroadcaster_Listeners(t *testing.T) {
	var b EventBroadcaster

	ch := b.AddListener()
	b.SendEvent(JobEvent{Type: "test", Message: "hello"})

	event := <-ch
	if event.Type != "test" || event.Message != "hello" {
		t.Errorf("unexpected event: %+v", event)
	}

	b.RemoveListener(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after RemoveListener")
	}

	// Sending without listeners must not block
	b.SendEvent(JobEvent{Type: "ignored"})
}

func TestJobManager_Prune(t *testing.T) {
	manager := NewJobManager()

	old, _ := manager.Start(JobKindCluster, func(context.Context, *Job) (any, error) { return nil, nil })
	waitForJob(t, manager, old.ID())
	stale := time.Now().Add(-2 * jobRetention)
	old.mu.Lock()
	old.completedAt = &stale
	old.mu.Unlock()

	// Still the active cluster job, so it is kept
	manager.mu.Lock()
	manager.pruneLocked()
	manager.mu.Unlock()
	if manager.GetJob(old.ID()) == nil {
		t.Fatal("active job must not be pruned")
	}

	next, _ := manager.Start(JobKindCluster, func(context.Context, *Job) (any, error) { return nil, nil })
	waitForJob(t, manager, next.ID())

	manager.mu.Lock()
	manager.pruneLocked()
	manager.mu.Unlock()
	if manager.GetJob(old.ID()) != nil {
		t.Error("expected stale job to be pruned")
	}
	if manager.GetJob(next.ID()) == nil {
		t.Error("expected recent job to be kept")
	}
}
