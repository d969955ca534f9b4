package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/logger"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job kinds. At most one job of each kind runs at a time.
const (
	JobKindCluster    = "cluster"
	JobKindDuplicates = "duplicates"
	JobKindAnalysis   = "analysis"
)

// finished jobs are kept this long for late status queries
const jobRetention = time.Hour

// ErrJobRunning is returned when a job of the same kind is still active.
var ErrJobRunning = errors.New("a job of this kind is already running")

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// Job is a long-running operation started over the API.
type Job struct {
	EventBroadcaster

	id          string
	kind        string
	status      JobStatus
	progress    any
	result      any
	err         string
	startedAt   time.Time
	completedAt *time.Time
	done        chan struct{}
}

// JobSnapshot is the JSON view of a job.
type JobSnapshot struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      JobStatus  `json:"status"`
	Progress    any        `json:"progress,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ID returns the job ID.
func (j *Job) ID() string { return j.id }

// Done is closed once the job function has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Running reports whether the job function has not returned yet. A cancelled
// job keeps running until its function notices the cancellation.
func (j *Job) Running() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Snapshot returns a consistent copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		ID:          j.id,
		Kind:        j.kind,
		Status:      j.status,
		Progress:    j.progress,
		Result:      j.result,
		Error:       j.err,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
}

// SetProgress records the latest progress and broadcasts it.
func (j *Job) SetProgress(p any) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "progress", Data: p})
}

// Cancel cancels the job context. The job ends as cancelled once its
// function notices.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	if !isJobTerminal(j.status) {
		j.status = JobStatusCancelled
	}
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

func (j *Job) finish(ctx context.Context, result any, err error) {
	now := time.Now()
	j.mu.Lock()
	j.result = result
	j.completedAt = &now
	switch {
	case j.status == JobStatusCancelled || ctx.Err() != nil:
		j.status = JobStatusCancelled
	case err != nil:
		j.status = JobStatusFailed
		j.err = err.Error()
	default:
		j.status = JobStatusCompleted
	}
	status := j.status
	j.mu.Unlock()

	switch status {
	case JobStatusCompleted:
		j.SendEvent(JobEvent{Type: "completed", Data: result})
	case JobStatusFailed:
		j.SendEvent(JobEvent{Type: "failed", Message: err.Error()})
	default:
		j.SendEvent(JobEvent{Type: "cancelled", Data: result})
	}
}

// JobFunc is the body of a job. It must return promptly once ctx is cancelled.
type JobFunc func(ctx context.Context, job *Job) (any, error)

// JobManager runs async jobs, one per kind at a time.
type JobManager struct {
	jobs   map[string]*Job
	active map[string]*Job
	mu     sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		active: make(map[string]*Job),
	}
}

// Start launches fn in the background as a job of the given kind.
func (m *JobManager) Start(kind string, fn JobFunc) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.active[kind]; cur != nil && cur.Running() {
		return nil, ErrJobRunning
	}
	m.pruneLocked()

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		id:        uuid.New().String(),
		kind:      kind,
		status:    JobStatusPending,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	job.cancel = cancel
	m.jobs[job.id] = job
	m.active[kind] = job

	go m.run(ctx, cancel, job, fn)
	return job, nil
}

func (m *JobManager) run(ctx context.Context, cancel context.CancelFunc, job *Job, fn JobFunc) {
	defer close(job.done)
	defer cancel()

	job.mu.Lock()
	if job.status == JobStatusPending {
		job.status = JobStatusRunning
	}
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: job.kind + " job started"})

	result, err := fn(ctx, job)
	if err != nil && ctx.Err() == nil {
		logger.Error("job failed", "kind", job.kind, "id", job.id, "error", err)
	}
	job.finish(ctx, result, err)
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Active returns the most recent job of a kind, nil if none ran yet.
func (m *JobManager) Active(kind string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[kind]
}

// ListJobs returns all known jobs.
func (m *JobManager) ListJobs() []JobSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]JobSnapshot, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.Snapshot())
	}
	return jobs
}

// pruneLocked forgets jobs finished longer than jobRetention ago.
func (m *JobManager) pruneLocked() {
	cutoff := time.Now().Add(-jobRetention)
	for id, job := range m.jobs {
		snap := job.Snapshot()
		if snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) && m.active[job.kind] != job {
			delete(m.jobs, id)
		}
	}
}
