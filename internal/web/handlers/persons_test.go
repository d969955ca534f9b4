package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-grouper/internal/analysis"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/vector"
)

// failingLoader makes every photo unreadable so analyses are stored empty
type failingLoader struct{}

func (failingLoader) LoadImage(context.Context, *database.Photo) ([]byte, error) {
	return nil, errors.New("file missing")
}

func newTestPersonsHandler(t *testing.T) (*PersonsHandler, []database.Face) {
	t.Helper()
	manager, store, _ := newTestManager()
	alice := seedPerson(t, manager, store, "alice", "Alice", []float32{1, 0})
	seedPerson(t, manager, store, "bob", "Bob", vector.Normalize([]float32{0.99, 0.01}))
	return NewPersonsHandler(manager, nil), alice
}

func TestPersonsHandler_List(t *testing.T) {
	handler, _ := newTestPersonsHandler(t)

	tests := []struct {
		name     string
		path     string
		expected int
	}{
		{"all", "/api/v1/persons", 2},
		{"by name", "/api/v1/persons?q=Alice", 1},
		{"no match", "/api/v1/persons?q=Zed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.List(recorder, httptest.NewRequest("GET", tt.path, nil))

			assertStatusCode(t, recorder, http.StatusOK)
			var result []PersonResponse
			parseJSONResponse(t, recorder, &result)
			if len(result) != tt.expected {
				t.Errorf("expected %d persons, got %d", tt.expected, len(result))
			}
		})
	}
}

func TestPersonsHandler_Get(t *testing.T) {
	handler, alice := newTestPersonsHandler(t)

	t.Run("found", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/persons/alice", nil), map[string]string{"id": "alice"})
		recorder := httptest.NewRecorder()
		handler.Get(recorder, req)

		assertStatusCode(t, recorder, http.StatusOK)
		var result PersonResponse
		parseJSONResponse(t, recorder, &result)
		if result.Name != "Alice" || result.FaceCount != 1 || result.CoverFaceID != alice[0].ID {
			t.Errorf("unexpected person: %+v", result)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/persons/nobody", nil), map[string]string{"id": "nobody"})
		recorder := httptest.NewRecorder()
		handler.Get(recorder, req)
		assertStatusCode(t, recorder, http.StatusNotFound)
	})
}

func TestPersonsHandler_Update(t *testing.T) {
	handler, _ := newTestPersonsHandler(t)

	t.Run("rename and favorite", func(t *testing.T) {
		req := requestWithChiParams(jsonRequest("PUT", "/api/v1/persons/alice", `{"name":"Alice Smith","favorite":true}`), map[string]string{"id": "alice"})
		recorder := httptest.NewRecorder()
		handler.Update(recorder, req)

		assertStatusCode(t, recorder, http.StatusOK)
		var result PersonResponse
		parseJSONResponse(t, recorder, &result)
		if result.Name != "Alice Smith" || !result.Favorite || result.Hidden {
			t.Errorf("unexpected person: %+v", result)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := requestWithChiParams(jsonRequest("PUT", "/api/v1/persons/alice", `{`), map[string]string{"id": "alice"})
		recorder := httptest.NewRecorder()
		handler.Update(recorder, req)
		assertStatusCode(t, recorder, http.StatusBadRequest)
		assertJSONError(t, recorder, errInvalidRequestBody)
	})

	t.Run("unknown person", func(t *testing.T) {
		req := requestWithChiParams(jsonRequest("PUT", "/api/v1/persons/nobody", `{"hidden":true}`), map[string]string{"id": "nobody"})
		recorder := httptest.NewRecorder()
		handler.Update(recorder, req)
		assertStatusCode(t, recorder, http.StatusNotFound)
	})
}

func TestPersonsHandler_Merge(t *testing.T) {
	handler, _ := newTestPersonsHandler(t)

	req := requestWithChiParams(jsonRequest("POST", "/api/v1/persons/alice/merge", `{"source_id":"bob"}`), map[string]string{"id": "alice"})
	recorder := httptest.NewRecorder()
	handler.Merge(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result PersonResponse
	parseJSONResponse(t, recorder, &result)
	if result.ID != "alice" || result.FaceCount != 2 {
		t.Errorf("unexpected merged person: %+v", result)
	}

	req = requestWithChiParams(httptest.NewRequest("GET", "/api/v1/persons/alice/faces", nil), map[string]string{"id": "alice"})
	recorder = httptest.NewRecorder()
	handler.Faces(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)
	var faces []FaceResponse
	parseJSONResponse(t, recorder, &faces)
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	for _, f := range faces {
		if f.PersonID != "alice" || !f.HasEmbedding {
			t.Errorf("unexpected face: %+v", f)
		}
	}

	t.Run("missing source", func(t *testing.T) {
		req := requestWithChiParams(jsonRequest("POST", "/api/v1/persons/alice/merge", `{}`), map[string]string{"id": "alice"})
		recorder := httptest.NewRecorder()
		handler.Merge(recorder, req)
		assertStatusCode(t, recorder, http.StatusBadRequest)
	})
}

func TestPersonsHandler_Similar(t *testing.T) {
	manager, store, _ := newTestManager()
	seedPerson(t, manager, store, "alice", "Alice", []float32{1, 0})
	seedPerson(t, manager, store, "bob", "Bob", vector.Normalize([]float32{0.99, 0.01}))
	seedPerson(t, manager, store, "carol", "Carol", vector.Normalize([]float32{0.2, 0.98}))
	handler := NewPersonsHandler(manager, nil)

	tests := []struct {
		name     string
		query    string
		status   int
		expected []string
	}{
		{"explicit threshold", "?threshold=0.5", http.StatusOK, []string{"bob"}},
		{"default threshold", "", http.StatusOK, []string{"bob"}},
		{"zero threshold", "?threshold=0", http.StatusOK, []string{"bob", "carol"}},
		{"not a number", "?threshold=abc", http.StatusBadRequest, nil},
		{"negative", "?threshold=-0.5", http.StatusBadRequest, nil},
		{"above one", "?threshold=1.5", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/persons/alice/similar"+tt.query, nil), map[string]string{"id": "alice"})
			recorder := httptest.NewRecorder()
			handler.Similar(recorder, req)

			assertStatusCode(t, recorder, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			var result []SimilarPersonResponse
			parseJSONResponse(t, recorder, &result)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %v, got %+v", tt.expected, result)
			}
			for i, id := range tt.expected {
				if result[i].Person.ID != id {
					t.Errorf("match %d: expected %s, got %s", i, id, result[i].Person.ID)
				}
			}
		})
	}
}

func TestPersonsHandler_FaceOperations(t *testing.T) {
	manager, store, _ := newTestManager()
	alice := seedPerson(t, manager, store, "alice", "Alice", []float32{1, 0}, []float32{0, 1})
	loose := store.AddFace(database.Face{PhotoUID: "p9", Embedding: []float32{1, 0}, Confidence: 0.8})
	handler := NewPersonsHandler(manager, nil)

	faceReq := func(method, path string, id int64, body string) *http.Request {
		return requestWithChiParams(jsonRequest(method, path, body), map[string]string{"id": formatID(id)})
	}

	t.Run("assign", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.AssignFace(recorder, faceReq("POST", "/api/v1/faces/x/assign", loose.ID, `{"person_id":"alice"}`))
		assertStatusCode(t, recorder, http.StatusOK)
		var result PersonResponse
		parseJSONResponse(t, recorder, &result)
		if result.FaceCount != 3 {
			t.Errorf("expected 3 faces after assign, got %d", result.FaceCount)
		}
	})

	t.Run("assign unknown face", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.AssignFace(recorder, faceReq("POST", "/api/v1/faces/x/assign", 999, `{"person_id":"alice"}`))
		assertStatusCode(t, recorder, http.StatusNotFound)
	})

	t.Run("invalid face id", func(t *testing.T) {
		req := requestWithChiParams(jsonRequest("POST", "/api/v1/faces/x/assign", `{"person_id":"alice"}`), map[string]string{"id": "abc"})
		recorder := httptest.NewRecorder()
		handler.AssignFace(recorder, req)
		assertStatusCode(t, recorder, http.StatusBadRequest)
		assertJSONError(t, recorder, "invalid face ID")
	})

	t.Run("unassign", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.UnassignFace(recorder, faceReq("DELETE", "/api/v1/faces/x/person", loose.ID, ""))
		assertStatusCode(t, recorder, http.StatusNoContent)

		recorder = httptest.NewRecorder()
		handler.UnassignFace(recorder, faceReq("DELETE", "/api/v1/faces/x/person", loose.ID, ""))
		assertStatusCode(t, recorder, http.StatusConflict)
	})

	t.Run("split", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.SplitFace(recorder, faceReq("POST", "/api/v1/faces/x/split", alice[1].ID, ""))
		assertStatusCode(t, recorder, http.StatusCreated)
		var result PersonResponse
		parseJSONResponse(t, recorder, &result)
		if result.ID == "alice" || result.FaceCount != 1 || result.CoverFaceID != alice[1].ID {
			t.Errorf("unexpected split person: %+v", result)
		}
	})
}

func TestPersonsHandler_Photos(t *testing.T) {
	handler, _ := newTestPersonsHandler(t)
	photo := map[string]string{"uid": "photo-alice"}

	recorder := httptest.NewRecorder()
	handler.PhotoFaces(recorder, requestWithChiParams(httptest.NewRequest("GET", "/api/v1/photos/photo-alice/faces", nil), photo))
	assertStatusCode(t, recorder, http.StatusOK)
	var faces []FaceResponse
	parseJSONResponse(t, recorder, &faces)
	if len(faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(faces))
	}

	recorder = httptest.NewRecorder()
	handler.DeletePhoto(recorder, requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/photos/photo-alice", nil), photo))
	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		AffectedPersons []string `json:"affected_persons"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.AffectedPersons) != 1 || result.AffectedPersons[0] != "alice" {
		t.Errorf("unexpected affected persons: %v", result.AffectedPersons)
	}

	// alice lost her only face and is gone
	recorder = httptest.NewRecorder()
	handler.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/api/v1/persons/alice", nil), map[string]string{"id": "alice"}))
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestPersonsHandler_Reanalyze(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		handler, _ := newTestPersonsHandler(t)
		recorder := httptest.NewRecorder()
		handler.Reanalyze(recorder, requestWithChiParams(httptest.NewRequest("POST", "/api/v1/photos/p1/reanalyze", nil), map[string]string{"uid": "p1"}))
		assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	})

	manager, store, _ := newTestManager()
	store.AddPhotos(database.Photo{UID: "p1", FileName: "p1.jpg"})
	orchestrator := analysis.NewOrchestrator(manager, failingLoader{}, nil, nil, nil, nil, analysis.DefaultOptions())
	handler := NewPersonsHandler(manager, orchestrator)

	t.Run("stored", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.Reanalyze(recorder, requestWithChiParams(httptest.NewRequest("POST", "/api/v1/photos/p1/reanalyze", nil), map[string]string{"uid": "p1"}))
		assertStatusCode(t, recorder, http.StatusOK)
		var result map[string]any
		parseJSONResponse(t, recorder, &result)
		if result["photo_uid"] != "p1" || result["has_embedding"] != false {
			t.Errorf("unexpected analysis: %v", result)
		}
	})

	t.Run("unknown photo", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.Reanalyze(recorder, requestWithChiParams(httptest.NewRequest("POST", "/api/v1/photos/nope/reanalyze", nil), map[string]string{"uid": "nope"}))
		assertStatusCode(t, recorder, http.StatusNotFound)
	})
}
