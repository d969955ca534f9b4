package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-grouper/internal/analysis"
	"github.com/kozaktomas/photo-grouper/internal/database"
)

func newTestAnalysisHandler(photos int) (*AnalysisHandler, *JobManager) {
	manager, store, _ := newTestManager()
	for i := range photos {
		uid := "p" + formatID(int64(i+1))
		store.AddPhotos(database.Photo{UID: uid, FileName: uid + ".jpg"})
	}
	orchestrator := analysis.NewOrchestrator(manager, failingLoader{}, nil, nil, nil, nil, analysis.DefaultOptions())
	jobs := NewJobManager()
	return NewAnalysisHandler(orchestrator, store, jobs), jobs
}

func TestAnalysisHandler_StartBatch(t *testing.T) {
	handler, jobs := newTestAnalysisHandler(5)

	recorder := httptest.NewRecorder()
	handler.Start(recorder, jsonRequest("POST", "/api/v1/analysis", `{"batch_size":2}`))
	snap := waitForJob(t, jobs, startedJobID(t, recorder))

	if snap.Status != JobStatusCompleted {
		t.Fatalf("expected status 'completed', got '%s' (%s)", snap.Status, snap.Error)
	}
	result, ok := snap.Result.(AnalysisJobResult)
	if !ok {
		t.Fatalf("unexpected result type %T", snap.Result)
	}
	if result.Batches != 1 || result.Processed != 2 || result.TotalRemaining != 3 || !result.Continue {
		t.Errorf("unexpected result: %+v", result)
	}
	if _, ok := snap.Progress.(analysis.Progress); !ok {
		t.Errorf("expected orchestrator progress on the job, got %T", snap.Progress)
	}
}

func TestAnalysisHandler_StartAll(t *testing.T) {
	handler, jobs := newTestAnalysisHandler(5)

	recorder := httptest.NewRecorder()
	handler.Start(recorder, jsonRequest("POST", "/api/v1/analysis", `{"batch_size":2,"all":true}`))
	snap := waitForJob(t, jobs, startedJobID(t, recorder))

	result, ok := snap.Result.(AnalysisJobResult)
	if !ok {
		t.Fatalf("unexpected result type %T", snap.Result)
	}
	if result.Batches != 3 || result.Processed != 5 || result.TotalRemaining != 0 || result.State != analysis.StateSucceeded {
		t.Errorf("unexpected result: %+v", result)
	}

	recorder = httptest.NewRecorder()
	handler.Status(recorder, httptest.NewRequest("GET", "/api/v1/analysis", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var status AnalysisStatus
	parseJSONResponse(t, recorder, &status)
	if status.Photos != 5 || status.Analyzed != 5 || status.Remaining != 0 || status.ActiveJobID != "" {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.State != analysis.StateSucceeded {
		t.Errorf("expected state 'succeeded', got '%s'", status.State)
	}
}

func TestAnalysisHandler_StartValidation(t *testing.T) {
	handler, _ := newTestAnalysisHandler(1)

	recorder := httptest.NewRecorder()
	handler.Start(recorder, jsonRequest("POST", "/api/v1/analysis", `{"batch_size":-1}`))
	assertStatusCode(t, recorder, http.StatusBadRequest)

	recorder = httptest.NewRecorder()
	handler.Start(recorder, jsonRequest("POST", "/api/v1/analysis", `not json`))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestAnalysisHandler_StopIdle(t *testing.T) {
	handler, _ := newTestAnalysisHandler(1)

	recorder := httptest.NewRecorder()
	handler.Stop(recorder, httptest.NewRequest("POST", "/api/v1/analysis/stop", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]bool
	parseJSONResponse(t, recorder, &result)
	if result["cancelled"] {
		t.Error("expected nothing to cancel on an idle orchestrator")
	}
}
