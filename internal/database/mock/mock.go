// Package mock provides an in-memory implementation of database.Store for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

type state struct {
	faces      map[int64]database.Face
	persons    map[string]database.Person
	analyses   map[string]database.PhotoAnalysis
	photos     map[string]database.Photo
	nextFaceID int64
}

func newState() *state {
	return &state{
		faces:      make(map[int64]database.Face),
		persons:    make(map[string]database.Person),
		analyses:   make(map[string]database.PhotoAnalysis),
		photos:     make(map[string]database.Photo),
		nextFaceID: 1,
	}
}

// clone copies the maps. Embedding slices are shared since nothing mutates them in place.
func (s *state) clone() *state {
	c := &state{
		faces:      make(map[int64]database.Face, len(s.faces)),
		persons:    make(map[string]database.Person, len(s.persons)),
		analyses:   make(map[string]database.PhotoAnalysis, len(s.analyses)),
		photos:     make(map[string]database.Photo, len(s.photos)),
		nextFaceID: s.nextFaceID,
	}
	for k, v := range s.faces {
		c.faces[k] = v
	}
	for k, v := range s.persons {
		c.persons[k] = v
	}
	for k, v := range s.analyses {
		v.Labels = slices.Clone(v.Labels)
		c.analyses[k] = v
	}
	for k, v := range s.photos {
		c.photos[k] = v
	}
	return c
}

// MockStore is an in-memory database.Store. Transactions operate on a copy of
// the state which replaces the live state on commit.
type MockStore struct {
	mu   sync.RWMutex // guards st
	txMu sync.Mutex   // serializes writers
	st   *state

	// Error injection
	GetPhotoError     error
	UnanalyzedError   error
	SaveAnalysisError error
	SaveFacesError    error
	UpdatePersonError error
	ListPersonsError  error

	// SaveAnalysisHook is called before every SaveAnalysis; a non-nil return fails the call.
	SaveAnalysisHook func(a *database.PhotoAnalysis) error
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{st: newState()}
}

// seed applies fn to a copy of the committed state, so snapshots already
// handed out to readers are never mutated.
func (m *MockStore) seed(fn func(st *state)) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.st.clone()
	fn(next)
	m.st = next
}

// AddPhotos seeds catalog photos
func (m *MockStore) AddPhotos(photos ...database.Photo) {
	m.seed(func(st *state) {
		for _, p := range photos {
			st.photos[p.UID] = p
		}
	})
}

// AddFace seeds a face, assigning an ID when zero, and returns the stored face
func (m *MockStore) AddFace(f database.Face) database.Face {
	m.seed(func(st *state) {
		if f.ID == 0 {
			f.ID = st.nextFaceID
		}
		if f.ID >= st.nextFaceID {
			st.nextFaceID = f.ID + 1
		}
		st.faces[f.ID] = f
	})
	return f
}

// AddPerson seeds a person as-is, without deriving aggregates
func (m *MockStore) AddPerson(p database.Person) {
	m.seed(func(st *state) { st.persons[p.ID] = p })
}

// AddAnalysis seeds an analysis
func (m *MockStore) AddAnalysis(a database.PhotoAnalysis) {
	m.seed(func(st *state) { st.analyses[a.PhotoUID] = a })
}

func (m *MockStore) read() *view {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Reads see the committed state; the pointer is swapped, never mutated, on commit.
	return &view{st: m.st, store: m}
}

// WithTx runs fn against a private copy of the state and publishes it on success.
func (m *MockStore) WithTx(ctx context.Context, fn func(tx database.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	working := m.st.clone()
	m.mu.RUnlock()

	if err := fn(&view{st: working, store: m}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.mu.Lock()
	m.st = working
	m.mu.Unlock()
	return nil
}

// WithReadTx runs fn against the committed state, which is immutable once published.
func (m *MockStore) WithReadTx(ctx context.Context, fn func(tx database.Reader) error) error {
	return fn(m.read())
}

func (m *MockStore) write(ctx context.Context, fn func(v *view) error) error {
	return m.WithTx(ctx, func(tx database.Tx) error {
		return fn(tx.(*view))
	})
}

// view implements database.Tx over one state snapshot without locking.
type view struct {
	st    *state
	store *MockStore
}

var (
	_ database.Store = (*MockStore)(nil)
	_ database.Tx    = (*view)(nil)
)

// --- faces ---

func (v *view) GetFace(_ context.Context, id int64) (*database.Face, error) {
	f, ok := v.st.faces[id]
	if !ok {
		return nil, fmt.Errorf("face %d: %w", id, database.ErrNotFound)
	}
	return &f, nil
}

func (v *view) sortedFaces(keep func(f *database.Face) bool) []database.Face {
	var out []database.Face
	for _, f := range v.st.faces {
		if keep(&f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) GetFaces(_ context.Context, photoUID string) ([]database.Face, error) {
	out := v.sortedFaces(func(f *database.Face) bool { return f.PhotoUID == photoUID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].FaceIndex < out[j].FaceIndex })
	return out, nil
}

func (v *view) GetFacesByPerson(_ context.Context, personID string) ([]database.Face, error) {
	return v.sortedFaces(func(f *database.Face) bool { return personID != "" && f.PersonID == personID }), nil
}

func (v *view) GetFacesWithEmbedding(_ context.Context) ([]database.Face, error) {
	return v.sortedFaces(func(f *database.Face) bool { return len(f.Embedding) > 0 }), nil
}

func (v *view) CountFaces(_ context.Context) (int, error) {
	return len(v.st.faces), nil
}

func (v *view) SaveFaces(_ context.Context, photoUID string, faces []database.Face) ([]database.Face, error) {
	if v.store.SaveFacesError != nil {
		return nil, v.store.SaveFacesError
	}
	for id, f := range v.st.faces {
		if f.PhotoUID == photoUID {
			delete(v.st.faces, id)
		}
	}
	saved := make([]database.Face, len(faces))
	for i, f := range faces {
		f.ID = v.st.nextFaceID
		v.st.nextFaceID++
		f.PhotoUID = photoUID
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		v.st.faces[f.ID] = f
		saved[i] = f
	}
	return saved, nil
}

func (v *view) SetFacePerson(_ context.Context, faceID int64, personID string, verified bool) error {
	f, ok := v.st.faces[faceID]
	if !ok {
		return fmt.Errorf("face %d: %w", faceID, database.ErrNotFound)
	}
	if personID != "" {
		if _, ok := v.st.persons[personID]; !ok {
			return fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
	}
	f.PersonID = personID
	f.ManuallyVerified = verified
	v.st.faces[faceID] = f
	return nil
}

// --- persons ---

func (v *view) GetPerson(_ context.Context, id string) (*database.Person, error) {
	p, ok := v.st.persons[id]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	return &p, nil
}

func (v *view) ListPersons(_ context.Context) ([]database.Person, error) {
	if v.store.ListPersonsError != nil {
		return nil, v.store.ListPersonsError
	}
	out := make([]database.Person, 0, len(v.st.persons))
	for _, p := range v.st.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FaceCount != out[j].FaceCount {
			return out[i].FaceCount > out[j].FaceCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) CreatePerson(_ context.Context, p *database.Person) error {
	if _, exists := v.st.persons[p.ID]; exists {
		return fmt.Errorf("person %s already exists", p.ID)
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	v.st.persons[p.ID] = *p
	return nil
}

func (v *view) UpdatePerson(_ context.Context, p *database.Person) error {
	if v.store.UpdatePersonError != nil {
		return v.store.UpdatePersonError
	}
	if _, ok := v.st.persons[p.ID]; !ok {
		return fmt.Errorf("person %s: %w", p.ID, database.ErrNotFound)
	}
	p.UpdatedAt = time.Now()
	v.st.persons[p.ID] = *p
	return nil
}

func (v *view) DeletePerson(_ context.Context, id string) error {
	delete(v.st.persons, id)
	for fid, f := range v.st.faces {
		if f.PersonID == id {
			f.PersonID = ""
			v.st.faces[fid] = f
		}
	}
	return nil
}

// --- analyses ---

func (v *view) GetAnalysis(_ context.Context, photoUID string) (*database.PhotoAnalysis, error) {
	a, ok := v.st.analyses[photoUID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (v *view) GetAnalysesWithEmbedding(_ context.Context) ([]database.PhotoAnalysis, error) {
	var out []database.PhotoAnalysis
	for _, a := range v.st.analyses {
		if len(a.Embedding) > 0 {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhotoUID < out[j].PhotoUID })
	return out, nil
}

func (v *view) CountAnalyses(_ context.Context) (int, error) {
	return len(v.st.analyses), nil
}

func (v *view) SaveAnalysis(_ context.Context, a *database.PhotoAnalysis) error {
	if v.store.SaveAnalysisError != nil {
		return v.store.SaveAnalysisError
	}
	if v.store.SaveAnalysisHook != nil {
		if err := v.store.SaveAnalysisHook(a); err != nil {
			return err
		}
	}
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now()
	}
	stored := *a
	stored.Labels = slices.Clone(a.Labels)
	v.st.analyses[a.PhotoUID] = stored
	return nil
}

// --- photos ---

func (v *view) GetPhoto(_ context.Context, uid string) (*database.Photo, error) {
	if v.store.GetPhotoError != nil {
		return nil, v.store.GetPhotoError
	}
	p, ok := v.st.photos[uid]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *view) unanalyzed() []string {
	var uids []string
	for uid := range v.st.photos {
		if _, done := v.st.analyses[uid]; !done {
			uids = append(uids, uid)
		}
	}
	sort.Strings(uids)
	return uids
}

func (v *view) UnanalyzedPhotoUIDs(_ context.Context, limit int) ([]string, error) {
	if v.store.UnanalyzedError != nil {
		return nil, v.store.UnanalyzedError
	}
	uids := v.unanalyzed()
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}
	return uids, nil
}

func (v *view) CountUnanalyzed(_ context.Context) (int, error) {
	if v.store.UnanalyzedError != nil {
		return 0, v.store.UnanalyzedError
	}
	return len(v.unanalyzed()), nil
}

func (v *view) CountPhotos(_ context.Context) (int, error) {
	return len(v.st.photos), nil
}

func (v *view) UpsertPhotos(_ context.Context, photos []database.Photo) error {
	for _, p := range photos {
		v.st.photos[p.UID] = p
	}
	return nil
}

func (v *view) DeletePhoto(_ context.Context, uid string) ([]database.Face, error) {
	var deleted []database.Face
	for id, f := range v.st.faces {
		if f.PhotoUID == uid {
			deleted = append(deleted, f)
			delete(v.st.faces, id)
		}
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].ID < deleted[j].ID })
	delete(v.st.analyses, uid)
	delete(v.st.photos, uid)
	return deleted, nil
}

// --- Store methods outside an explicit transaction ---

func (m *MockStore) GetFace(ctx context.Context, id int64) (*database.Face, error) {
	return m.read().GetFace(ctx, id)
}

func (m *MockStore) GetFaces(ctx context.Context, photoUID string) ([]database.Face, error) {
	return m.read().GetFaces(ctx, photoUID)
}

func (m *MockStore) GetFacesByPerson(ctx context.Context, personID string) ([]database.Face, error) {
	return m.read().GetFacesByPerson(ctx, personID)
}

func (m *MockStore) GetFacesWithEmbedding(ctx context.Context) ([]database.Face, error) {
	return m.read().GetFacesWithEmbedding(ctx)
}

func (m *MockStore) CountFaces(ctx context.Context) (int, error) {
	return m.read().CountFaces(ctx)
}

func (m *MockStore) SaveFaces(ctx context.Context, photoUID string, faces []database.Face) ([]database.Face, error) {
	var saved []database.Face
	err := m.write(ctx, func(v *view) error {
		var err error
		saved, err = v.SaveFaces(ctx, photoUID, faces)
		return err
	})
	return saved, err
}

func (m *MockStore) SetFacePerson(ctx context.Context, faceID int64, personID string, verified bool) error {
	return m.write(ctx, func(v *view) error { return v.SetFacePerson(ctx, faceID, personID, verified) })
}

func (m *MockStore) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	return m.read().GetPerson(ctx, id)
}

func (m *MockStore) ListPersons(ctx context.Context) ([]database.Person, error) {
	return m.read().ListPersons(ctx)
}

func (m *MockStore) CreatePerson(ctx context.Context, p *database.Person) error {
	return m.write(ctx, func(v *view) error { return v.CreatePerson(ctx, p) })
}

func (m *MockStore) UpdatePerson(ctx context.Context, p *database.Person) error {
	return m.write(ctx, func(v *view) error { return v.UpdatePerson(ctx, p) })
}

func (m *MockStore) DeletePerson(ctx context.Context, id string) error {
	return m.write(ctx, func(v *view) error { return v.DeletePerson(ctx, id) })
}

func (m *MockStore) GetAnalysis(ctx context.Context, photoUID string) (*database.PhotoAnalysis, error) {
	return m.read().GetAnalysis(ctx, photoUID)
}

func (m *MockStore) GetAnalysesWithEmbedding(ctx context.Context) ([]database.PhotoAnalysis, error) {
	return m.read().GetAnalysesWithEmbedding(ctx)
}

func (m *MockStore) CountAnalyses(ctx context.Context) (int, error) {
	return m.read().CountAnalyses(ctx)
}

func (m *MockStore) SaveAnalysis(ctx context.Context, a *database.PhotoAnalysis) error {
	return m.write(ctx, func(v *view) error { return v.SaveAnalysis(ctx, a) })
}

func (m *MockStore) GetPhoto(ctx context.Context, uid string) (*database.Photo, error) {
	return m.read().GetPhoto(ctx, uid)
}

func (m *MockStore) UnanalyzedPhotoUIDs(ctx context.Context, limit int) ([]string, error) {
	return m.read().UnanalyzedPhotoUIDs(ctx, limit)
}

func (m *MockStore) CountUnanalyzed(ctx context.Context) (int, error) {
	return m.read().CountUnanalyzed(ctx)
}

func (m *MockStore) CountPhotos(ctx context.Context) (int, error) {
	return m.read().CountPhotos(ctx)
}

func (m *MockStore) UpsertPhotos(ctx context.Context, photos []database.Photo) error {
	return m.write(ctx, func(v *view) error { return v.UpsertPhotos(ctx, photos) })
}

func (m *MockStore) DeletePhoto(ctx context.Context, uid string) ([]database.Face, error) {
	var deleted []database.Face
	err := m.write(ctx, func(v *view) error {
		var err error
		deleted, err = v.DeletePhoto(ctx, uid)
		return err
	})
	return deleted, err
}
