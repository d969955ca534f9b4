package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kozaktomas/photo-grouper/internal/duplicates"
)

// DuplicatesHandler runs duplicate detection as a background job.
type DuplicatesHandler struct {
	detector *duplicates.Detector
	jobs     *JobManager
}

// NewDuplicatesHandler creates a duplicates handler.
func NewDuplicatesHandler(detector *duplicates.Detector, jobs *JobManager) *DuplicatesHandler {
	return &DuplicatesHandler{detector: detector, jobs: jobs}
}

// DuplicatesStartRequest represents a request to start duplicate detection.
type DuplicatesStartRequest struct {
	Threshold *float64 `json:"threshold"` // min cosine similarity, omitted selects the default
	Limit     int      `json:"limit"`     // max groups returned, 0 returns all
}

// DuplicatesJobResult holds the groups found by a detection job.
type DuplicatesJobResult struct {
	TotalGroups int                `json:"total_groups"`
	TotalPhotos int                `json:"total_photos"`
	Groups      []duplicates.Group `json:"groups"`
}

// Start starts a duplicate detection job.
func (h *DuplicatesHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req DuplicatesStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	threshold := -1.0
	if req.Threshold != nil {
		threshold = *req.Threshold
		if threshold < 0 || threshold > 1 {
			respondError(w, http.StatusBadRequest, "threshold must be within 0..1 and limit non-negative")
			return
		}
	}
	if req.Limit < 0 {
		respondError(w, http.StatusBadRequest, "threshold must be within 0..1 and limit non-negative")
		return
	}

	job, err := h.jobs.Start(JobKindDuplicates, func(ctx context.Context, job *Job) (any, error) {
		for ev := range h.detector.DetectSimilarGroups(ctx, threshold) {
			switch {
			case ev.Progress != nil:
				job.SetProgress(*ev.Progress)
			case ev.Err != nil:
				return nil, ev.Err
			default:
				return summarizeDuplicates(ev.Groups, req.Limit), nil
			}
		}
		// channel closed without a final event: cancelled
		return nil, ctx.Err()
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

func summarizeDuplicates(groups []duplicates.Group, limit int) DuplicatesJobResult {
	res := DuplicatesJobResult{TotalGroups: len(groups)}
	for i := range groups {
		res.TotalPhotos += len(groups[i].PhotoUIDs)
	}
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	if groups == nil {
		groups = []duplicates.Group{}
	}
	res.Groups = groups
	return res
}

// Status returns the state of a duplicate detection job.
func (h *DuplicatesHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobStatus(w, r, h.jobs, JobKindDuplicates)
}

// Events streams duplicate detection events via SSE.
func (h *DuplicatesHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, jobLookup(h.jobs, JobKindDuplicates), jobSnapshot)
}

// Cancel cancels a duplicate detection job.
func (h *DuplicatesHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobCancel(w, r, h.jobs, JobKindDuplicates)
}
