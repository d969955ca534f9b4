// Package persons maintains persons and their face membership after the
// initial clustering pass. Every mutation recomputes the aggregates of the
// affected persons inside the same transaction.
package persons

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/facematch"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

var (
	ErrPersonNotFound  = errors.New("person not found")
	ErrFaceNotFound    = errors.New("face not found")
	ErrFaceNotAssigned = errors.New("face is not assigned to a person")
)

// Manager serializes all person mutations behind one write lock and runs each
// of them in a single store transaction.
type Manager struct {
	store database.Store
	mu    sync.Mutex

	index      *database.HNSWIndex
	indexReady bool // guarded by mu
	compute    *workpool.Pool
	newID      func() string
}

// NewManager creates a manager over store. The face index and compute pool are optional.
// A non-empty index is trusted as up to date; otherwise it is built on first use.
func NewManager(store database.Store, index *database.HNSWIndex, compute *workpool.Pool) *Manager {
	if index == nil {
		index = database.NewHNSWIndex()
	}
	return &Manager{
		store:      store,
		index:      index,
		indexReady: !index.IsEmpty(),
		compute:    compute,
		newID:      uuid.NewString,
	}
}

// updateIndex applies fn to the face index once it has been built.
func (m *Manager) updateIndex(fn func(idx *database.HNSWIndex)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexReady {
		fn(m.index)
	}
}

// Store returns the backing store.
func (m *Manager) Store() database.Store {
	return m.store
}

// NewPersonID returns a fresh person identifier.
func (m *Manager) NewPersonID() string {
	return m.newID()
}

// Apply runs fn under the manager's write lock in one transaction.
// Callers outside this package that mutate membership (bulk clustering) use it
// so they serialize with the incremental operations.
func (m *Manager) Apply(ctx context.Context, fn func(tx database.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.WithTx(ctx, fn)
}

func getFace(ctx context.Context, tx database.Reader, faceID int64) (*database.Face, error) {
	f, err := tx.GetFace(ctx, faceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrFaceNotFound, faceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get face %d: %w", faceID, err)
	}
	return f, nil
}

func getPerson(ctx context.Context, tx database.Reader, personID string) (*database.Person, error) {
	p, err := tx.GetPerson(ctx, personID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
	}
	if err != nil {
		return nil, fmt.Errorf("get person %s: %w", personID, err)
	}
	return p, nil
}

// GetPerson returns a person by ID.
func (m *Manager) GetPerson(ctx context.Context, personID string) (*database.Person, error) {
	return getPerson(ctx, m.store, personID)
}

// ListPersons returns all persons, largest first.
func (m *Manager) ListPersons(ctx context.Context) ([]database.Person, error) {
	return m.store.ListPersons(ctx)
}

// AssignFaceToPerson assigns a face to a person and marks it manually verified.
// The previous person of the face, if any, is refreshed too.
func (m *Manager) AssignFaceToPerson(ctx context.Context, faceID int64, personID string) (*database.Person, error) {
	var result *database.Person
	err := m.Apply(ctx, func(tx database.Tx) error {
		face, err := getFace(ctx, tx, faceID)
		if err != nil {
			return err
		}
		if _, err := getPerson(ctx, tx, personID); err != nil {
			return err
		}

		previous := face.PersonID
		if err := tx.SetFacePerson(ctx, faceID, personID, true); err != nil {
			return fmt.Errorf("assign face %d: %w", faceID, err)
		}
		if _, err := Refresh(ctx, tx, personID); err != nil {
			return err
		}
		if previous != "" && previous != personID {
			if _, err := Refresh(ctx, tx, previous); err != nil {
				return err
			}
		}

		result, err = getPerson(ctx, tx, personID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("face assigned", "face", faceID, "person", personID)
	return result, nil
}

// RemoveFaceFromPerson unassigns a face. Its person is deleted when it becomes empty.
func (m *Manager) RemoveFaceFromPerson(ctx context.Context, faceID int64) error {
	return m.Apply(ctx, func(tx database.Tx) error {
		face, err := getFace(ctx, tx, faceID)
		if err != nil {
			return err
		}
		if face.PersonID == "" {
			return fmt.Errorf("%w: %d", ErrFaceNotAssigned, faceID)
		}

		if err := tx.SetFacePerson(ctx, faceID, "", false); err != nil {
			return fmt.Errorf("unassign face %d: %w", faceID, err)
		}
		deleted, err := Refresh(ctx, tx, face.PersonID)
		if err != nil {
			return err
		}
		if deleted {
			logger.Debug("person emptied and deleted", "person", face.PersonID)
		}
		return nil
	})
}

// MergePersons moves every face of source to target and deletes source.
// Target adopts the source name when it has none; favorite is kept if either was.
func (m *Manager) MergePersons(ctx context.Context, targetID, sourceID string) (*database.Person, error) {
	var result *database.Person
	err := m.Apply(ctx, func(tx database.Tx) error {
		target, err := getPerson(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if targetID == sourceID {
			result = target
			return nil
		}
		source, err := getPerson(ctx, tx, sourceID)
		if err != nil {
			return err
		}

		faces, err := tx.GetFacesByPerson(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("get faces of person %s: %w", sourceID, err)
		}
		for i := range faces {
			if err := tx.SetFacePerson(ctx, faces[i].ID, targetID, faces[i].ManuallyVerified); err != nil {
				return fmt.Errorf("move face %d: %w", faces[i].ID, err)
			}
		}
		if err := tx.DeletePerson(ctx, sourceID); err != nil {
			return fmt.Errorf("delete person %s: %w", sourceID, err)
		}

		if target.Name == "" {
			target.Name = source.Name
		}
		target.Favorite = target.Favorite || source.Favorite
		members, err := tx.GetFacesByPerson(ctx, targetID)
		if err != nil {
			return fmt.Errorf("get faces of person %s: %w", targetID, err)
		}
		if err := DeriveAggregates(target, members); err != nil {
			return err
		}
		if err := tx.UpdatePerson(ctx, target); err != nil {
			return fmt.Errorf("update person %s: %w", targetID, err)
		}
		result = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("persons merged", "target", targetID, "source", sourceID, "faces", result.FaceCount)
	return result, nil
}

// SplitFaceToNewPerson moves a face into a new singleton person.
func (m *Manager) SplitFaceToNewPerson(ctx context.Context, faceID int64) (*database.Person, error) {
	var result *database.Person
	err := m.Apply(ctx, func(tx database.Tx) error {
		face, err := getFace(ctx, tx, faceID)
		if err != nil {
			return err
		}
		if face.PersonID == "" {
			return fmt.Errorf("%w: %d", ErrFaceNotAssigned, faceID)
		}

		p := &database.Person{ID: m.newID()}
		if err := tx.CreatePerson(ctx, p); err != nil {
			return fmt.Errorf("create person: %w", err)
		}
		if err := tx.SetFacePerson(ctx, faceID, p.ID, true); err != nil {
			return fmt.Errorf("assign face %d: %w", faceID, err)
		}
		if _, err := Refresh(ctx, tx, p.ID); err != nil {
			return err
		}
		if _, err := Refresh(ctx, tx, face.PersonID); err != nil {
			return err
		}

		result, err = getPerson(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecomputeAggregates re-derives a person's aggregates from its members.
// Returns nil when the person had no faces and was deleted.
func (m *Manager) RecomputeAggregates(ctx context.Context, personID string) (*database.Person, error) {
	var result *database.Person
	err := m.Apply(ctx, func(tx database.Tx) error {
		if _, err := getPerson(ctx, tx, personID); err != nil {
			return err
		}
		deleted, err := Refresh(ctx, tx, personID)
		if err != nil || deleted {
			return err
		}
		result, err = getPerson(ctx, tx, personID)
		return err
	})
	return result, err
}

// updatePerson loads a person, applies fn and writes it back.
func (m *Manager) updatePerson(ctx context.Context, personID string, fn func(p *database.Person)) (*database.Person, error) {
	var result *database.Person
	err := m.Apply(ctx, func(tx database.Tx) error {
		p, err := getPerson(ctx, tx, personID)
		if err != nil {
			return err
		}
		fn(p)
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return fmt.Errorf("update person %s: %w", personID, err)
		}
		result = p
		return nil
	})
	return result, err
}

// RenamePerson sets the display name of a person; an empty name clears it.
func (m *Manager) RenamePerson(ctx context.Context, personID, name string) (*database.Person, error) {
	return m.updatePerson(ctx, personID, func(p *database.Person) { p.Name = name })
}

// SetFavorite marks or unmarks a person as favorite.
func (m *Manager) SetFavorite(ctx context.Context, personID string, favorite bool) (*database.Person, error) {
	return m.updatePerson(ctx, personID, func(p *database.Person) { p.Favorite = favorite })
}

// SetHidden hides or shows a person.
func (m *Manager) SetHidden(ctx context.Context, personID string, hidden bool) (*database.Person, error) {
	return m.updatePerson(ctx, personID, func(p *database.Person) { p.Hidden = hidden })
}

// FindPersonsByName returns persons whose name contains query, ignoring case,
// diacritics and dashes.
func (m *Manager) FindPersonsByName(ctx context.Context, query string) ([]database.Person, error) {
	all, err := m.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	var result []database.Person
	for i := range all {
		if facematch.MatchesName(all[i].Name, query) {
			result = append(result, all[i])
		}
	}
	return result, nil
}

// refreshAll refreshes each distinct person ID once, in sorted order.
func refreshAll(ctx context.Context, tx database.Tx, personIDs map[string]struct{}) error {
	ids := make([]string, 0, len(personIDs))
	for id := range personIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := Refresh(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeletePhoto removes a photo with its analysis and faces, then repairs every
// person that lost a face. Returns the IDs of the affected persons.
func (m *Manager) DeletePhoto(ctx context.Context, photoUID string) ([]string, error) {
	var deletedFaces []database.Face
	affected := make(map[string]struct{})
	err := m.Apply(ctx, func(tx database.Tx) error {
		var err error
		deletedFaces, err = tx.DeletePhoto(ctx, photoUID)
		if err != nil {
			return fmt.Errorf("delete photo %s: %w", photoUID, err)
		}
		for i := range deletedFaces {
			if deletedFaces[i].PersonID != "" {
				affected[deletedFaces[i].PersonID] = struct{}{}
			}
		}
		return refreshAll(ctx, tx, affected)
	})
	if err != nil {
		return nil, err
	}

	m.updateIndex(func(idx *database.HNSWIndex) {
		for i := range deletedFaces {
			idx.Delete(deletedFaces[i].ID)
		}
	})

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// StoreAnalysis persists a photo analysis together with its faces, replacing
// any previous analysis and faces of the photo. Persons that owned replaced
// faces are refreshed in the same transaction.
func (m *Manager) StoreAnalysis(ctx context.Context, analysis *database.PhotoAnalysis, faces []database.Face) ([]database.Face, error) {
	var saved, replaced []database.Face
	err := m.Apply(ctx, func(tx database.Tx) error {
		var err error
		replaced, err = tx.GetFaces(ctx, analysis.PhotoUID)
		if err != nil {
			return fmt.Errorf("get faces of %s: %w", analysis.PhotoUID, err)
		}

		analysis.FaceCount = len(faces)
		if err := tx.SaveAnalysis(ctx, analysis); err != nil {
			return fmt.Errorf("save analysis of %s: %w", analysis.PhotoUID, err)
		}
		saved, err = tx.SaveFaces(ctx, analysis.PhotoUID, faces)
		if err != nil {
			return fmt.Errorf("save faces of %s: %w", analysis.PhotoUID, err)
		}

		affected := make(map[string]struct{})
		for i := range replaced {
			if replaced[i].PersonID != "" {
				affected[replaced[i].PersonID] = struct{}{}
			}
		}
		return refreshAll(ctx, tx, affected)
	})
	if err != nil {
		return nil, err
	}

	m.updateIndex(func(idx *database.HNSWIndex) {
		for i := range replaced {
			idx.Delete(replaced[i].ID)
		}
		for i := range saved {
			idx.Add(saved[i])
		}
	})
	return saved, nil
}
