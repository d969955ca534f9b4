package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/photo-grouper/internal/vector"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	FaceCount int64     `json:"face_count"`
	MaxFaceID int64     `json:"max_face_id"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const hnswMetadataVersion = 2

// Neighbor is one search hit.
type Neighbor struct {
	FaceID   int64
	Distance float64
}

// HNSWIndex wraps the HNSW graph for face embedding search.
// Only IDs and embeddings are indexed; callers re-read face rows from the store
// since person assignments change far more often than embeddings.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	embeddings map[int64][]float32 // live faces; deleted IDs are dropped from here
	maxFaceID  int64
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		embeddings: make(map[int64][]float32),
	}
}

func newFaceGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromFaces builds the index from a slice of faces.
// Faces without an embedding are skipped.
func (h *HNSWIndex) BuildFromFaces(faces []Face) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	h.graph = nil
	h.embeddings = make(map[int64][]float32, len(faces))
	h.maxFaceID = 0

	for i := range faces {
		h.addLocked(faces[i].ID, faces[i].Embedding)
	}
}

func (h *HNSWIndex) addLocked(id int64, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	if _, exists := h.embeddings[id]; exists {
		return
	}
	if h.graph == nil && h.savedGraph == nil {
		h.graph = newFaceGraph()
	}
	node := hnsw.MakeNode(id, embedding)
	if h.savedGraph != nil {
		h.savedGraph.Add(node)
	} else {
		h.graph.Add(node)
	}
	h.embeddings[id] = embedding
	if id > h.maxFaceID {
		h.maxFaceID = id
	}
}

// Add adds a single face to the index.
func (h *HNSWIndex) Add(face Face) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(face.ID, face.Embedding)
}

// Delete removes a face from search results.
// The graph node stays in place; hits are filtered against the live set.
func (h *HNSWIndex) Delete(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.embeddings, id)
}

// Search returns up to k live faces nearest to query, closest first.
// Distances are recomputed exactly from the stored embeddings.
func (h *HNSWIndex) Search(query []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, errors.New("index not initialized")
	}

	var nodes []hnsw.Node[int64]
	if h.savedGraph != nil {
		nodes = h.savedGraph.Search(query, k)
	} else {
		nodes = h.graph.Search(query, k)
	}

	result := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		emb, ok := h.embeddings[n.Key]
		if !ok {
			continue
		}
		dist, err := vector.CosineDistance(query, emb)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", n.Key, err)
		}
		result = append(result, Neighbor{FaceID: n.Key, Distance: dist})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Distance != result[j].Distance {
			return result[i].Distance < result[j].Distance
		}
		return result[i].FaceID < result[j].FaceID
	})
	return result, nil
}

// Count returns the number of live indexed faces.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.embeddings)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// Metadata describes the current index contents.
func (h *HNSWIndex) Metadata() HNSWIndexMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HNSWIndexMetadata{
		FaceCount: int64(len(h.embeddings)),
		MaxFaceID: h.maxFaceID,
		Version:   hnswMetadataVersion,
	}
}

// IsStale reports whether the index no longer reflects the given face set.
func (h *HNSWIndex) IsStale(faceCount int, maxFaceID int64) bool {
	m := h.Metadata()
	return h.IsEmpty() || m.FaceCount != int64(faceCount) || m.MaxFaceID != maxFaceID
}

// SaveWithMetadata persists the index to disk along with metadata for staleness detection.
func (h *HNSWIndex) SaveWithMetadata(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.graph
	if h.savedGraph != nil {
		g = h.savedGraph.Graph
	}
	if g == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := g.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata := HNSWIndexMetadata{
		FaceCount: int64(len(h.embeddings)),
		MaxFaceID: h.maxFaceID,
		BuildTime: time.Now(),
		Version:   hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// LoadOrBuild loads the graph saved at path when its metadata matches faces,
// otherwise it builds a fresh graph and saves it. An empty path only builds.
// Returns true when the saved graph was reused.
func (h *HNSWIndex) LoadOrBuild(path string, faces []Face) (bool, error) {
	var maxID int64
	count := 0
	for i := range faces {
		if len(faces[i].Embedding) == 0 {
			continue
		}
		count++
		if faces[i].ID > maxID {
			maxID = faces[i].ID
		}
	}

	if path != "" {
		meta, err := LoadHNSWMetadata(path)
		if err == nil && meta.Version == hnswMetadataVersion && meta.FaceCount == int64(count) && meta.MaxFaceID == maxID {
			saved, err := hnsw.LoadSavedGraph[int64](path)
			if err == nil {
				h.mu.Lock()
				h.graph = nil
				h.savedGraph = saved
				h.embeddings = make(map[int64][]float32, count)
				h.maxFaceID = maxID
				for i := range faces {
					if len(faces[i].Embedding) > 0 {
						h.embeddings[faces[i].ID] = faces[i].Embedding
					}
				}
				h.mu.Unlock()
				return true, nil
			}
		}
	}

	h.BuildFromFaces(faces)
	if path == "" {
		return false, nil
	}
	return false, h.SaveWithMetadata(path)
}
