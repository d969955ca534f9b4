package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-grouper/internal/facecluster"
)

// progress events are sent at most every clusterProgressStep visited faces
const clusterProgressStep = 100

// ClusterHandler runs face clustering as a background job.
type ClusterHandler struct {
	engine *facecluster.Engine
	jobs   *JobManager
}

// NewClusterHandler creates a cluster handler.
func NewClusterHandler(engine *facecluster.Engine, jobs *JobManager) *ClusterHandler {
	return &ClusterHandler{engine: engine, jobs: jobs}
}

// ClusterStartRequest represents a request to start clustering.
// Zero values select the defaults.
type ClusterStartRequest struct {
	Eps             float64 `json:"eps"`
	MinPts          int     `json:"min_pts"`
	PreserveCurated bool    `json:"preserve_curated"`
}

// ClusterProgress is the payload of cluster progress events.
type ClusterProgress struct {
	Visited int `json:"visited"`
	Total   int `json:"total"`
}

// ClusterJobResult summarizes a finished clustering run.
type ClusterJobResult struct {
	Persons  int                         `json:"persons"`
	Clusters int                         `json:"clusters"`
	Noise    int                         `json:"noise"`
	Results  []facecluster.ClusterResult `json:"results"`
}

// Start starts a clustering job.
func (h *ClusterHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req ClusterStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Eps < 0 || req.Eps > 2 || req.MinPts < 0 {
		respondError(w, http.StatusBadRequest, "eps must be within 0..2 and min_pts non-negative")
		return
	}

	params := facecluster.DefaultParams()
	if req.Eps > 0 {
		params.Eps = req.Eps
	}
	if req.MinPts > 0 {
		params.MinPts = req.MinPts
	}
	params.PreserveCurated = req.PreserveCurated

	job, err := h.jobs.Start(JobKindCluster, func(ctx context.Context, job *Job) (any, error) {
		results, err := h.engine.RunClustering(ctx, params, func(visited, total int) {
			if visited == total || visited%clusterProgressStep == 0 {
				job.SetProgress(ClusterProgress{Visited: visited, Total: total})
			}
		})
		if err != nil {
			return nil, err
		}
		return summarizeClusters(results), nil
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

func summarizeClusters(results []facecluster.ClusterResult) ClusterJobResult {
	res := ClusterJobResult{Persons: len(results), Results: results}
	for i := range results {
		if results[i].Noise {
			res.Noise++
		} else {
			res.Clusters++
		}
	}
	return res
}

// Status returns the state of a clustering job.
func (h *ClusterHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobStatus(w, r, h.jobs, JobKindCluster)
}

// Events streams clustering job events via SSE.
func (h *ClusterHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, jobLookup(h.jobs, JobKindCluster), jobSnapshot)
}

// Cancel cancels a clustering job. Nothing is written for a cancelled run.
func (h *ClusterHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobCancel(w, r, h.jobs, JobKindCluster)
}

// jobStatus writes the snapshot of the job named by {jobId}.
func jobStatus(w http.ResponseWriter, r *http.Request, jobs *JobManager, kind string) {
	job := jobLookup(jobs, kind)(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, jobSnapshot(job))
}

// jobCancel cancels the job named by {jobId}.
func jobCancel(w http.ResponseWriter, r *http.Request, jobs *JobManager, kind string) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}
	job := jobs.GetJob(jobID)
	if job == nil || job.kind != kind {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
