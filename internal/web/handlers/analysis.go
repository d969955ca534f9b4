package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/kozaktomas/photo-grouper/internal/analysis"
	"github.com/kozaktomas/photo-grouper/internal/database"
)

// AnalysisHandler runs analysis batches as background jobs.
type AnalysisHandler struct {
	orchestrator *analysis.Orchestrator
	store        database.Store
	jobs         *JobManager
	current      atomic.Pointer[Job]
}

// NewAnalysisHandler creates an analysis handler. Orchestrator progress is
// forwarded to the analysis job started over the API, if one is running.
func NewAnalysisHandler(orchestrator *analysis.Orchestrator, store database.Store, jobs *JobManager) *AnalysisHandler {
	h := &AnalysisHandler{orchestrator: orchestrator, store: store, jobs: jobs}
	orchestrator.OnProgress = h.forwardProgress
	return h
}

func (h *AnalysisHandler) forwardProgress(p analysis.Progress) {
	job := h.current.Load()
	if job == nil || isJobTerminal(job.GetStatus()) {
		return
	}
	job.SetProgress(p)
}

// AnalysisStartRequest represents a request to start analysis.
type AnalysisStartRequest struct {
	BatchSize int  `json:"batch_size"` // 0 selects the default
	All       bool `json:"all"`        // keep running batches until nothing is left
}

// AnalysisJobResult summarizes an analysis job.
type AnalysisJobResult struct {
	analysis.Result
	Batches int `json:"batches"`
}

// AnalysisStatus is the overview returned by Status.
type AnalysisStatus struct {
	State       analysis.State `json:"state"`
	Photos      int            `json:"photos"`
	Analyzed    int            `json:"analyzed"`
	Remaining   int            `json:"remaining"`
	ActiveJobID string         `json:"active_job_id,omitempty"`
}

// Start starts an analysis job.
func (h *AnalysisHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req AnalysisStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.BatchSize < 0 {
		respondError(w, http.StatusBadRequest, "batch_size must be non-negative")
		return
	}
	if h.orchestrator.State() == analysis.StateRunning {
		respondDomainError(w, r, analysis.ErrAlreadyRunning)
		return
	}

	job, err := h.jobs.Start(JobKindAnalysis, func(ctx context.Context, job *Job) (any, error) {
		h.current.Store(job)
		if !req.All {
			res, err := h.orchestrator.RunBatch(ctx, req.BatchSize)
			return AnalysisJobResult{Result: res, Batches: 1}, err
		}

		batches := 0
		res, err := h.orchestrator.RunUntilDone(ctx, req.BatchSize, func(b analysis.Result) {
			batches++
			job.SendEvent(JobEvent{Type: "batch", Data: b})
		})
		return AnalysisJobResult{Result: res, Batches: batches}, err
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID(),
		"status": string(JobStatusPending),
	})
}

// Status reports the orchestrator state and catalog counts.
func (h *AnalysisHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := AnalysisStatus{State: h.orchestrator.State()}
	err := h.store.WithReadTx(r.Context(), func(tx database.Reader) error {
		var err error
		if status.Photos, err = tx.CountPhotos(r.Context()); err != nil {
			return err
		}
		if status.Analyzed, err = tx.CountAnalyses(r.Context()); err != nil {
			return err
		}
		status.Remaining, err = tx.CountUnanalyzed(r.Context())
		return err
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if job := h.jobs.Active(JobKindAnalysis); job != nil && job.Running() {
		status.ActiveJobID = job.ID()
	}
	respondJSON(w, http.StatusOK, status)
}

// JobStatus returns the state of an analysis job.
func (h *AnalysisHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobStatus(w, r, h.jobs, JobKindAnalysis)
}

// Events streams analysis job events via SSE.
func (h *AnalysisHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, jobLookup(h.jobs, JobKindAnalysis), jobSnapshot)
}

// Cancel cancels an analysis job. Photos already stored are kept.
func (h *AnalysisHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobCancel(w, r, h.jobs, JobKindAnalysis)
}

// Stop cancels whatever batch is running, including scheduled ones.
func (h *AnalysisHandler) Stop(w http.ResponseWriter, r *http.Request) {
	running := h.orchestrator.State() == analysis.StateRunning
	h.orchestrator.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": running})
}
