package database

// Face filter constants
const (
	// MinFaceWidthRel is the minimum face width relative to photo width (1%)
	MinFaceWidthRel = 0.01
)

// Embedding dimensions produced by the embedding server
const (
	FaceEmbeddingDim  = 128
	ImageEmbeddingDim = 1280
)

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after filtering.
	HNSWSearchMultiplier = 3
)
