// Package vector holds the embedding byte layout and the similarity math
// shared by face clustering, person maintenance and duplicate detection.
package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// BytesPerComponent is the encoded size of one float32 component.
const BytesPerComponent = 4

var (
	// ErrMalformedEmbedding is returned when stored bytes cannot be decoded.
	ErrMalformedEmbedding = errors.New("malformed embedding")
	// ErrDimensionMismatch is returned when vectors of different length are compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Encode serializes v as native-endian float32 values without a header.
// A nil or empty vector encodes to nil.
func Encode(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*BytesPerComponent)
	for i, f := range v {
		binary.NativeEndian.PutUint32(buf[i*BytesPerComponent:], math.Float32bits(f))
	}
	return buf
}

// Decode is the inverse of Encode. The dimension is implied by len(b)/4.
// Empty input decodes to a nil vector (no embedding).
func Decode(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%BytesPerComponent != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedEmbedding, len(b), BytesPerComponent)
	}
	v := make([]float32, len(b)/BytesPerComponent)
	for i := range v {
		v[i] = math.Float32frombits(binary.NativeEndian.Uint32(b[i*BytesPerComponent:]))
	}
	return v, nil
}

// DecodeDim decodes b and additionally checks it has the expected dimension.
func DecodeDim(b []byte, dim int) ([]float32, error) {
	v, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if v != nil && dim > 0 && len(v) != dim {
		return nil, fmt.Errorf("%w: got %d components, want %d", ErrMalformedEmbedding, len(v), dim)
	}
	return v, nil
}
