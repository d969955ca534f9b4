package persons

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/vector"
)

// Match is a candidate person with its similarity to the queried person.
type Match struct {
	Person     database.Person `json:"person"`
	Similarity float64         `json:"similarity"`
}

// FindSimilarPersons compares the average embedding of a person against every
// other person's average embedding and returns those with similarity >= threshold,
// most similar first, at most limit of them. Persons without an average
// embedding never match. A negative threshold or a non-positive limit selects
// the default; a threshold of 0 is honoured.
func (m *Manager) FindSimilarPersons(ctx context.Context, personID string, threshold float64, limit int) ([]Match, error) {
	if threshold < 0 {
		threshold = constants.DefaultSimilarPersonThreshold
	}
	if limit <= 0 {
		limit = constants.DefaultSimilarPersonLimit
	}

	var (
		person *database.Person
		all    []database.Person
	)
	err := m.store.WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		person, err = getPerson(ctx, tx, personID)
		if err != nil {
			return err
		}
		all, err = tx.ListPersons(ctx)
		if err != nil {
			return fmt.Errorf("list persons: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(person.AverageEmbedding) == 0 {
		return nil, nil
	}

	var matches []Match
	scan := func(ctx context.Context) error {
		for i := range all {
			other := &all[i]
			if other.ID == personID || len(other.AverageEmbedding) == 0 {
				continue
			}
			sim, err := vector.CosineSimilarity(person.AverageEmbedding, other.AverageEmbedding)
			if errors.Is(err, vector.ErrDimensionMismatch) {
				logger.Warn("skipping person with different embedding dimension",
					"person", other.ID, "dim", len(other.AverageEmbedding), "want", len(person.AverageEmbedding))
				continue
			}
			if err != nil {
				return err
			}
			if sim >= threshold {
				matches = append(matches, Match{Person: *other, Similarity: sim})
			}
		}
		return nil
	}
	if m.compute != nil {
		err = m.compute.Do(ctx, scan)
	} else {
		err = scan(ctx)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Person.ID < matches[j].Person.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
