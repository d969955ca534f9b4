package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned by single-row getters when the row does not exist.
var ErrNotFound = errors.New("not found")

// BBox is a normalized [x1, y1, x2, y2] rectangle, every coordinate in 0..1.
type BBox [4]float64

// Width returns the relative width of the box.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns the relative height of the box.
func (b BBox) Height() float64 { return b[3] - b[1] }

// Face is a detected face owned by a photo. PersonID is a weak reference and
// is empty while the face is unassigned.
type Face struct {
	ID               int64
	PhotoUID         string
	FaceIndex        int
	BBox             BBox
	Embedding        []float32 // nil when the face has no (valid) embedding
	PersonID         string
	Confidence       float64
	ManuallyVerified bool
	CreatedAt        time.Time
}

// Person is a cluster of faces believed to show the same individual.
// FaceCount, AverageEmbedding and CoverFaceID are derived from the member faces.
type Person struct {
	ID               string
	Name             string
	CoverFaceID      int64
	FaceCount        int
	AverageEmbedding []float32
	Favorite         bool
	Hidden           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Label is a detected label with its confidence.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// PhotoAnalysis holds everything derived from one analysis pass over a photo.
type PhotoAnalysis struct {
	PhotoUID          string
	Embedding         []float32 // nil when the embedder failed
	Labels            []Label
	PrimaryCategory   string
	PrimaryConfidence float64
	FaceCount         int
	PerceptualHash    string
	DifferenceHash    string
	QualityScore      float64
	SharpnessScore    float64
	AnalyzedAt        time.Time
}

// Photo is a catalog entry the analysis pipeline works through.
type Photo struct {
	UID      string
	FileName string // path relative to the originals directory
	Width    int
	Height   int
	TakenAt  time.Time
}
