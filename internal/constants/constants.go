// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face clustering constants
const (
	// DefaultClusterEps is the default DBSCAN neighbourhood radius (cosine distance)
	DefaultClusterEps = 0.4

	// DefaultClusterMinPts is the default minimum neighbourhood size to seed a cluster
	DefaultClusterMinPts = 2

	// PairwiseMatrixThreshold is the largest input for which DBSCAN precomputes
	// the full distance matrix; above it distances are computed on demand
	PairwiseMatrixThreshold = 500
)

// Person constants
const (
	// DefaultSimilarPersonThreshold is the default min cosine similarity for similar persons
	DefaultSimilarPersonThreshold = 0.6

	// DefaultSimilarPersonLimit is the default number of similar persons returned
	DefaultSimilarPersonLimit = 5

	// DefaultFaceSuggestionLimit is the default number of face suggestions to return
	DefaultFaceSuggestionLimit = 10

	// DefaultFaceSuggestionDistance is the default max cosine distance for face suggestions
	DefaultFaceSuggestionDistance = 0.5
)

// Duplicate detection constants
const (
	// DefaultDuplicateThreshold is the default min cosine similarity for duplicate detection
	DefaultDuplicateThreshold = 0.85

	// DuplicateProgressInterval is the number of comparisons between progress events
	DuplicateProgressInterval = 1000
)

// Analysis constants
const (
	// DefaultBatchSize is the default number of photos per analysis batch
	DefaultBatchSize = 20

	// FaceDedupIoU is the IoU above which two detections of the same photo are
	// considered the same face
	FaceDedupIoU = 0.5

	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920

	// DefaultLabelConfidence is the minimum confidence score for detected labels
	DefaultLabelConfidence = 0.5
)

// Processing constants
const (
	// DefaultIOWorkers is the default number of concurrent detector calls
	DefaultIOWorkers = 4

	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)
