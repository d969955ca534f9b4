package persons

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/logger"
)

// Suggestion is an unassigned face that looks like a person.
type Suggestion struct {
	Face     database.Face `json:"face"`
	Distance float64       `json:"distance"`
}

// SuggestFaces returns unassigned faces within maxDistance of the person's
// average embedding, closest first. The face index is built on first use.
func (m *Manager) SuggestFaces(ctx context.Context, personID string, maxDistance float64, limit int) ([]Suggestion, error) {
	if maxDistance <= 0 {
		maxDistance = constants.DefaultFaceSuggestionDistance
	}
	if limit <= 0 {
		limit = constants.DefaultFaceSuggestionLimit
	}

	person, err := getPerson(ctx, m.store, personID)
	if err != nil {
		return nil, err
	}
	if len(person.AverageEmbedding) == 0 {
		return nil, nil
	}

	index, err := m.faceIndex(ctx)
	if err != nil {
		return nil, err
	}
	if index.Count() == 0 {
		return nil, nil
	}

	k := limit*database.HNSWSearchMultiplier + person.FaceCount
	hits, err := index.Search(person.AverageEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("search face index: %w", err)
	}

	var result []Suggestion
	for _, hit := range hits {
		if hit.Distance > maxDistance || len(result) >= limit {
			break
		}
		face, err := m.store.GetFace(ctx, hit.FaceID)
		if errors.Is(err, database.ErrNotFound) {
			index.Delete(hit.FaceID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get face %d: %w", hit.FaceID, err)
		}
		if face.PersonID != "" {
			continue
		}
		result = append(result, Suggestion{Face: *face, Distance: hit.Distance})
	}
	return result, nil
}

func (m *Manager) faceIndex(ctx context.Context) (*database.HNSWIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexReady {
		return m.index, nil
	}

	faces, err := m.store.GetFacesWithEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("load faces for index: %w", err)
	}
	m.index.BuildFromFaces(faces)
	m.indexReady = true
	logger.Info("face index built", "faces", m.index.Count())
	return m.index, nil
}
