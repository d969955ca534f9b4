package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/database/mock"
	"github.com/kozaktomas/photo-grouper/internal/persons"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

// newTestManager creates a persons manager over an empty mock store
func newTestManager() (*persons.Manager, *mock.MockStore, *workpool.Pool) {
	store := mock.NewMockStore()
	pool := workpool.New("compute", 2)
	return persons.NewManager(store, nil, pool), store, pool
}

// seedPerson stores a person owning one face per embedding with derived aggregates
func seedPerson(t *testing.T, m *persons.Manager, store *mock.MockStore, id, name string, embeddings ...[]float32) []database.Face {
	t.Helper()
	store.AddPerson(database.Person{ID: id, Name: name})
	var faces []database.Face
	for i, emb := range embeddings {
		faces = append(faces, store.AddFace(database.Face{
			PhotoUID:   "photo-" + id,
			FaceIndex:  i,
			BBox:       database.BBox{0.1, 0.1, 0.3, 0.3},
			Embedding:  emb,
			PersonID:   id,
			Confidence: 0.9,
		}))
	}
	if _, err := m.RecomputeAggregates(context.Background(), id); err != nil {
		t.Fatalf("RecomputeAggregates(%s): %v", id, err)
	}
	return faces
}

// jsonRequest creates a request with a JSON body
func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// waitForJob waits until the job function has returned
func waitForJob(t *testing.T, jobs *JobManager, id string) JobSnapshot {
	t.Helper()
	job := jobs.GetJob(id)
	if job == nil {
		t.Fatalf("job %s not found", id)
	}
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", id)
	}
	return job.Snapshot()
}

// startedJobID extracts the job ID from a 202 response
func startedJobID(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	assertStatusCode(t, recorder, http.StatusAccepted)
	var resp map[string]string
	parseJSONResponse(t, recorder, &resp)
	if resp["job_id"] == "" {
		t.Fatal("expected job_id in response")
	}
	return resp["job_id"]
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
