package persons

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/vector"
)

// DeriveAggregates sets FaceCount, AverageEmbedding and CoverFaceID of p from
// its complete member set. The cover is kept while it is still a member,
// otherwise the most confident member becomes the cover (lowest ID on ties).
func DeriveAggregates(p *database.Person, members []database.Face) error {
	embeddings := make([][]float32, 0, len(members))
	coverStillMember := false
	best := -1
	for i := range members {
		f := &members[i]
		embeddings = append(embeddings, f.Embedding)
		if f.ID == p.CoverFaceID {
			coverStillMember = true
		}
		if best < 0 || f.Confidence > members[best].Confidence ||
			(f.Confidence == members[best].Confidence && f.ID < members[best].ID) {
			best = i
		}
	}

	avg, err := vector.Mean(embeddings)
	if err != nil {
		return fmt.Errorf("person %s average embedding: %w", p.ID, err)
	}

	p.FaceCount = len(members)
	p.AverageEmbedding = avg
	switch {
	case best < 0:
		p.CoverFaceID = 0
	case !coverStillMember:
		p.CoverFaceID = members[best].ID
	}
	return nil
}

// Refresh re-derives the aggregates of a person from the faces currently
// assigned to it inside tx, deleting the person when it has none left.
// A person that no longer exists is reported as deleted.
func Refresh(ctx context.Context, tx database.Tx, personID string) (deleted bool, err error) {
	p, err := tx.GetPerson(ctx, personID)
	if errors.Is(err, database.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get person %s: %w", personID, err)
	}

	members, err := tx.GetFacesByPerson(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("get faces of person %s: %w", personID, err)
	}

	if len(members) == 0 {
		if err := tx.DeletePerson(ctx, personID); err != nil {
			return false, fmt.Errorf("delete empty person %s: %w", personID, err)
		}
		return true, nil
	}

	if err := DeriveAggregates(p, members); err != nil {
		return false, err
	}
	if err := tx.UpdatePerson(ctx, p); err != nil {
		return false, fmt.Errorf("update person %s: %w", personID, err)
	}
	return false, nil
}
