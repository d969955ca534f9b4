package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/photo-grouper/internal/ai"
	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/fingerprint"
	"github.com/kozaktomas/photo-grouper/internal/logger"
)

// LabelDetector tags an image with content labels. ai.LabelProvider
// satisfies it.
type LabelDetector interface {
	DetectLabels(ctx context.Context, imageData []byte) (*ai.LabelResult, error)
}

// DetectedFace is one face as reported by a FaceDetector. BBox is in pixels
// of the submitted image: [x1, y1, x2, y2].
type DetectedFace struct {
	BBox       []float64
	Confidence float64
	Embedding  []float32
}

// FaceDetector finds faces and embeds them.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]DetectedFace, error)
}

// ImageEmbedder computes a whole-image embedding. It may fail; the analysis
// is stored without an embedding then.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, imageData []byte) ([]float32, error)
}

// ImageLoader returns the original bytes of a catalog photo.
type ImageLoader interface {
	LoadImage(ctx context.Context, photo *database.Photo) ([]byte, error)
}

// EmbeddingServer adapts the embedding server client to FaceDetector and
// ImageEmbedder.
type EmbeddingServer struct {
	client *fingerprint.EmbeddingClient
}

// NewEmbeddingServer creates an adapter for the server at baseURL.
func NewEmbeddingServer(baseURL string) *EmbeddingServer {
	return &EmbeddingServer{client: fingerprint.NewEmbeddingClient(baseURL)}
}

func (s *EmbeddingServer) DetectFaces(ctx context.Context, imageData []byte) ([]DetectedFace, error) {
	resp, err := s.client.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}
	faces := make([]DetectedFace, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		faces = append(faces, DetectedFace{
			BBox:       f.BBox,
			Confidence: f.DetScore,
			Embedding:  f.Embedding,
		})
	}
	return faces, nil
}

// EmbedImage downsizes large originals before uploading them.
func (s *EmbeddingServer) EmbedImage(ctx context.Context, imageData []byte) ([]float32, error) {
	resized, err := ai.ResizeImage(imageData, constants.MaxImageSize)
	if err != nil {
		logger.Debug("resize before embedding failed, sending original", "error", err)
		resized = imageData
	}
	return s.client.EmbedImage(ctx, resized)
}

// ErrOutsideOriginals is returned for catalog paths escaping the originals root.
var ErrOutsideOriginals = errors.New("path outside originals directory")

// FileLoader reads originals from a local directory (PHOTOPRISM_ORIGINALS_PATH).
type FileLoader struct {
	Root string
}

func (l FileLoader) LoadImage(_ context.Context, photo *database.Photo) ([]byte, error) {
	if l.Root == "" {
		return nil, errors.New("originals path is not configured")
	}
	root := filepath.Clean(l.Root)
	path := filepath.Join(root, filepath.FromSlash(photo.FileName))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s: %w", photo.FileName, ErrOutsideOriginals)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read original %s: %w", photo.FileName, err)
	}
	return data, nil
}
