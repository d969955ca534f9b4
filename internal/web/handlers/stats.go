package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

// StatsResponse summarizes the stored data.
type StatsResponse struct {
	Photos       int `json:"photos"`
	Analyzed     int `json:"analyzed"`
	Faces        int `json:"faces"`
	Persons      int `json:"persons"`
	NamedPersons int `json:"named_persons"`
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	store database.Store
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(store database.Store) *StatsHandler {
	return &StatsHandler{store: store}
}

// Get returns counts taken from one consistent snapshot.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var stats StatsResponse
	err := h.store.WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		if stats.Photos, err = tx.CountPhotos(ctx); err != nil {
			return err
		}
		if stats.Analyzed, err = tx.CountAnalyses(ctx); err != nil {
			return err
		}
		if stats.Faces, err = tx.CountFaces(ctx); err != nil {
			return err
		}
		persons, err := tx.ListPersons(ctx)
		if err != nil {
			return err
		}
		stats.Persons = len(persons)
		for i := range persons {
			if persons[i].Name != "" {
				stats.NamedPersons++
			}
		}
		return nil
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
