package database

import (
	"context"
)

// FaceReader provides read-only access to detected faces
type FaceReader interface {
	// GetFace retrieves a face by ID, returns ErrNotFound if missing
	GetFace(ctx context.Context, id int64) (*Face, error)
	// GetFaces retrieves all faces for a photo ordered by face index
	GetFaces(ctx context.Context, photoUID string) ([]Face, error)
	// GetFacesByPerson retrieves all faces assigned to a person ordered by ID
	GetFacesByPerson(ctx context.Context, personID string) ([]Face, error)
	// GetFacesWithEmbedding retrieves every face carrying an embedding ordered by ID
	GetFacesWithEmbedding(ctx context.Context) ([]Face, error)
	// CountFaces returns the total number of faces stored
	CountFaces(ctx context.Context) (int, error)
}

// FaceWriter provides write access to face data
type FaceWriter interface {
	// SaveFaces replaces all faces of a photo and returns them with IDs assigned
	SaveFaces(ctx context.Context, photoUID string, faces []Face) ([]Face, error)
	// SetFacePerson sets (or clears, with an empty personID) the person of a face
	SetFacePerson(ctx context.Context, faceID int64, personID string, verified bool) error
}

// PersonReader provides read-only access to persons
type PersonReader interface {
	// GetPerson retrieves a person by ID, returns ErrNotFound if missing
	GetPerson(ctx context.Context, id string) (*Person, error)
	// ListPersons returns all persons ordered by face count descending, then ID
	ListPersons(ctx context.Context) ([]Person, error)
}

// PersonWriter provides write access to persons
type PersonWriter interface {
	CreatePerson(ctx context.Context, p *Person) error
	// UpdatePerson overwrites all mutable fields, returns ErrNotFound if missing
	UpdatePerson(ctx context.Context, p *Person) error
	DeletePerson(ctx context.Context, id string) error
}

// AnalysisReader provides read-only access to photo analyses
type AnalysisReader interface {
	// GetAnalysis retrieves the analysis of a photo, returns nil if not found
	GetAnalysis(ctx context.Context, photoUID string) (*PhotoAnalysis, error)
	// GetAnalysesWithEmbedding returns every analysis carrying an embedding ordered by photo UID
	GetAnalysesWithEmbedding(ctx context.Context) ([]PhotoAnalysis, error)
	// CountAnalyses returns the number of analyzed photos
	CountAnalyses(ctx context.Context) (int, error)
}

// AnalysisWriter provides write access to photo analyses
type AnalysisWriter interface {
	// SaveAnalysis inserts or replaces the analysis of a photo
	SaveAnalysis(ctx context.Context, a *PhotoAnalysis) error
}

// PhotoReader provides read-only access to the photo catalog
type PhotoReader interface {
	// GetPhoto retrieves a photo by UID, returns nil if not found
	GetPhoto(ctx context.Context, uid string) (*Photo, error)
	// UnanalyzedPhotoUIDs returns up to limit photo UIDs lacking an analysis, ordered by UID
	UnanalyzedPhotoUIDs(ctx context.Context, limit int) ([]string, error)
	// CountUnanalyzed returns the number of photos lacking an analysis
	CountUnanalyzed(ctx context.Context) (int, error)
	// CountPhotos returns the number of photos in the catalog
	CountPhotos(ctx context.Context) (int, error)
}

// PhotoWriter provides write access to the photo catalog
type PhotoWriter interface {
	// UpsertPhotos inserts new photos and updates metadata of existing ones
	UpsertPhotos(ctx context.Context, photos []Photo) error
	// DeletePhoto removes a photo together with its analysis and faces.
	// Returns the deleted faces so callers can repair the affected persons.
	DeletePhoto(ctx context.Context, uid string) ([]Face, error)
}

// Reader combines every read-only repository
type Reader interface {
	FaceReader
	PersonReader
	AnalysisReader
	PhotoReader
}

// Tx is the full repository surface available inside a transaction
type Tx interface {
	Reader
	FaceWriter
	PersonWriter
	AnalysisWriter
	PhotoWriter
}

// Store is the backing store. Calls made directly on the Store run in their
// own implicit transaction; WithTx groups several calls into one atomic unit.
type Store interface {
	Tx

	// WithTx runs fn in a read-write transaction, committed if fn returns nil
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// WithReadTx runs fn against a consistent read-only snapshot
	WithReadTx(ctx context.Context, fn func(tx Reader) error) error
}
