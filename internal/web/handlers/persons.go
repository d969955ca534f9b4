package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-grouper/internal/analysis"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/persons"
)

// PersonResponse is the API view of a person. Embeddings are not exposed.
type PersonResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CoverFaceID int64     `json:"cover_face_id,omitempty"`
	FaceCount   int       `json:"face_count"`
	Favorite    bool      `json:"favorite"`
	Hidden      bool      `json:"hidden"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FaceResponse is the API view of a face.
type FaceResponse struct {
	ID               int64      `json:"id"`
	PhotoUID         string     `json:"photo_uid"`
	FaceIndex        int        `json:"face_index"`
	BBox             [4]float64 `json:"bbox"`
	PersonID         string     `json:"person_id,omitempty"`
	Confidence       float64    `json:"confidence"`
	ManuallyVerified bool       `json:"manually_verified"`
	HasEmbedding     bool       `json:"has_embedding"`
}

func toPersonResponse(p *database.Person) PersonResponse {
	return PersonResponse{
		ID:          p.ID,
		Name:        p.Name,
		CoverFaceID: p.CoverFaceID,
		FaceCount:   p.FaceCount,
		Favorite:    p.Favorite,
		Hidden:      p.Hidden,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toFaceResponses(faces []database.Face) []FaceResponse {
	out := make([]FaceResponse, len(faces))
	for i := range faces {
		f := &faces[i]
		out[i] = FaceResponse{
			ID:               f.ID,
			PhotoUID:         f.PhotoUID,
			FaceIndex:        f.FaceIndex,
			BBox:             f.BBox,
			PersonID:         f.PersonID,
			Confidence:       f.Confidence,
			ManuallyVerified: f.ManuallyVerified,
			HasEmbedding:     len(f.Embedding) > 0,
		}
	}
	return out
}

// PersonsHandler exposes the person lifecycle operations.
type PersonsHandler struct {
	manager      *persons.Manager
	orchestrator *analysis.Orchestrator
}

// NewPersonsHandler creates a persons handler. orchestrator is optional and
// only needed for re-analysis.
func NewPersonsHandler(manager *persons.Manager, orchestrator *analysis.Orchestrator) *PersonsHandler {
	return &PersonsHandler{manager: manager, orchestrator: orchestrator}
}

// List returns all persons, or those whose name matches ?q=.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		list []database.Person
		err  error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		list, err = h.manager.FindPersonsByName(r.Context(), q)
	} else {
		list, err = h.manager.ListPersons(r.Context())
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	out := make([]PersonResponse, len(list))
	for i := range list {
		out[i] = toPersonResponse(&list[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one person.
func (h *PersonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.GetPerson(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(p))
}

// UpdatePersonRequest carries the user-editable person fields. Absent fields
// are left unchanged.
type UpdatePersonRequest struct {
	Name     *string `json:"name"`
	Favorite *bool   `json:"favorite"`
	Hidden   *bool   `json:"hidden"`
}

// Update renames a person or toggles favorite/hidden.
func (h *PersonsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	p, err := h.manager.GetPerson(r.Context(), id)
	if err == nil && req.Name != nil {
		p, err = h.manager.RenamePerson(r.Context(), id, *req.Name)
	}
	if err == nil && req.Favorite != nil {
		p, err = h.manager.SetFavorite(r.Context(), id, *req.Favorite)
	}
	if err == nil && req.Hidden != nil {
		p, err = h.manager.SetHidden(r.Context(), id, *req.Hidden)
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(p))
}

// Faces lists the member faces of a person.
func (h *PersonsHandler) Faces(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.manager.GetPerson(r.Context(), id); err != nil {
		respondDomainError(w, r, err)
		return
	}
	faces, err := h.manager.Store().GetFacesByPerson(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toFaceResponses(faces))
}

// MergeRequest names the person merged into the URL person.
type MergeRequest struct {
	SourceID string `json:"source_id"`
}

// Merge moves all faces of the source person into the URL person.
func (h *PersonsHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceID == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	p, err := h.manager.MergePersons(r.Context(), chi.URLParam(r, "id"), req.SourceID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(p))
}

// Recompute re-derives the aggregates of a person.
func (h *PersonsHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.RecomputeAggregates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if p == nil {
		respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(p))
}

// SimilarPersonResponse is one entry of the similar persons list.
type SimilarPersonResponse struct {
	Person     PersonResponse `json:"person"`
	Similarity float64        `json:"similarity"`
}

// Similar lists persons that may be the same individual (?threshold=&limit=).
func (h *PersonsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	// absent threshold: -1 lets the manager pick its default
	threshold, err := queryFloatOr(r, "threshold", -1)
	if err != nil || threshold > 1 || (threshold < 0 && r.URL.Query().Has("threshold")) {
		respondError(w, http.StatusBadRequest, "invalid threshold")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	matches, err := h.manager.FindSimilarPersons(r.Context(), chi.URLParam(r, "id"), threshold, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	out := make([]SimilarPersonResponse, len(matches))
	for i := range matches {
		out[i] = SimilarPersonResponse{
			Person:     toPersonResponse(&matches[i].Person),
			Similarity: matches[i].Similarity,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// SuggestionResponse is one unassigned face proposed for a person.
type SuggestionResponse struct {
	Face     FaceResponse `json:"face"`
	Distance float64      `json:"distance"`
}

// Suggestions lists unassigned faces close to a person (?max_distance=&limit=).
func (h *PersonsHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	maxDistance, err := queryFloat(r, "max_distance")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid max_distance")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	suggestions, err := h.manager.SuggestFaces(r.Context(), chi.URLParam(r, "id"), maxDistance, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	out := make([]SuggestionResponse, len(suggestions))
	for i := range suggestions {
		out[i] = SuggestionResponse{
			Face:     toFaceResponses([]database.Face{suggestions[i].Face})[0],
			Distance: suggestions[i].Distance,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func faceIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid face ID")
		return 0, false
	}
	return id, true
}

// AssignRequest names the person a face is assigned to.
type AssignRequest struct {
	PersonID string `json:"person_id"`
}

// AssignFace assigns a face to a person.
func (h *PersonsHandler) AssignFace(w http.ResponseWriter, r *http.Request) {
	faceID, ok := faceIDParam(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PersonID == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	p, err := h.manager.AssignFaceToPerson(r.Context(), faceID, req.PersonID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(p))
}

// UnassignFace removes a face from its person.
func (h *PersonsHandler) UnassignFace(w http.ResponseWriter, r *http.Request) {
	faceID, ok := faceIDParam(w, r)
	if !ok {
		return
	}
	if err := h.manager.RemoveFaceFromPerson(r.Context(), faceID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SplitFace moves a face into a new person of its own.
func (h *PersonsHandler) SplitFace(w http.ResponseWriter, r *http.Request) {
	faceID, ok := faceIDParam(w, r)
	if !ok {
		return
	}
	p, err := h.manager.SplitFaceToNewPerson(r.Context(), faceID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPersonResponse(p))
}

// PhotoFaces lists the faces detected on a photo.
func (h *PersonsHandler) PhotoFaces(w http.ResponseWriter, r *http.Request) {
	faces, err := h.manager.Store().GetFaces(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toFaceResponses(faces))
}

// DeletePhoto removes a photo with its faces and repairs the affected persons.
func (h *PersonsHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	affected, err := h.manager.DeletePhoto(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"affected_persons": affected})
}

// Reanalyze analyzes one photo again, replacing its faces.
func (h *PersonsHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	a, err := h.orchestrator.Reanalyze(r.Context(), chi.URLParam(r, "uid"))
	if err == nil && a == nil {
		err = analysis.ErrPhotoNotFound
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"photo_uid":        a.PhotoUID,
		"labels":           a.Labels,
		"primary_category": a.PrimaryCategory,
		"face_count":       a.FaceCount,
		"has_embedding":    len(a.Embedding) > 0,
		"quality_score":    a.QualityScore,
		"analyzed_at":      a.AnalyzedAt,
	})
}
