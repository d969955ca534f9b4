package vector

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-6

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
	}{
		{"single", []float32{0.5}},
		{"face sized", make128()},
		{"negative and tiny", []float32{-1, 1e-30, 3.4e38, 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := Encode(tc.v)
			if len(b) != len(tc.v)*BytesPerComponent {
				t.Fatalf("Encode produced %d bytes; want %d", len(b), len(tc.v)*BytesPerComponent)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(got) != len(tc.v) {
				t.Fatalf("Decode length = %d; want %d", len(got), len(tc.v))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tc.v[i])) > tolerance {
					t.Errorf("component %d = %v; want %v", i, got[i], tc.v[i])
				}
			}
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	got, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil) error: %v", err)
	}
	if got != nil {
		t.Errorf("Decode(nil) = %v; want nil", got)
	}
	if Encode(nil) != nil {
		t.Error("Encode(nil) should be nil")
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7} {
		_, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrMalformedEmbedding) {
			t.Errorf("Decode(%d bytes) error = %v; want ErrMalformedEmbedding", n, err)
		}
	}
}

func TestDecodeDim(t *testing.T) {
	b := Encode([]float32{1, 2, 3})
	if _, err := DecodeDim(b, 3); err != nil {
		t.Errorf("DecodeDim with matching dim: %v", err)
	}
	if _, err := DecodeDim(b, 4); !errors.Is(err, ErrMalformedEmbedding) {
		t.Errorf("DecodeDim with wrong dim error = %v; want ErrMalformedEmbedding", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
		{"empty", []float32{}, []float32{}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			if err != nil {
				t.Fatalf("CosineSimilarity error: %v", err)
			}
			if math.Abs(got-tc.want) > tolerance {
				t.Errorf("CosineSimilarity = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error = %v; want ErrDimensionMismatch", err)
	}
	_, err = CosineDistance([]float32{1}, nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("CosineDistance error = %v; want ErrDimensionMismatch", err)
	}
}

func TestCosineProperties(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.3, 0.4, 0.5},
		{-0.2, 0.9, 0.1},
		{5, 5, 5},
		{0.001, -3, 2},
	}

	for i, a := range vectors {
		self, err := CosineSimilarity(a, a)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(self-1) > tolerance {
			t.Errorf("reflexivity: sim(v%d, v%d) = %v", i, i, self)
		}

		for j, b := range vectors {
			ab, _ := CosineSimilarity(a, b)
			ba, _ := CosineSimilarity(b, a)
			if math.Abs(ab-ba) > tolerance {
				t.Errorf("symmetry: sim(v%d,v%d)=%v sim(v%d,v%d)=%v", i, j, ab, j, i, ba)
			}
			dist, _ := CosineDistance(a, b)
			if math.Abs(ab+dist-1) > tolerance {
				t.Errorf("sim+dist for v%d,v%d = %v; want 1", i, j, ab+dist)
			}
			if dist < 0 || dist > 2 {
				t.Errorf("distance out of range: %v", dist)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	n := Normalize([]float32{3, 4})
	if math.Abs(Norm(n)-1) > tolerance {
		t.Errorf("Norm(Normalize) = %v; want 1", Norm(n))
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Normalize(zero) = %v", zero)
	}
}

func TestMean(t *testing.T) {
	t.Run("skips nil", func(t *testing.T) {
		got, err := Mean([][]float32{{1, 3}, nil, {3, 5}})
		if err != nil {
			t.Fatal(err)
		}
		if got[0] != 2 || got[1] != 4 {
			t.Errorf("Mean = %v; want [2 4]", got)
		}
	})

	t.Run("all nil", func(t *testing.T) {
		got, err := Mean([][]float32{nil, nil})
		if err != nil || got != nil {
			t.Errorf("Mean = %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		_, err := Mean([][]float32{{1, 2}, {1}})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("error = %v; want ErrDimensionMismatch", err)
		}
	})
}

func make128() []float32 {
	v := make([]float32, 128)
	for i := range v {
		v[i] = float32(i) / 128
	}
	return Normalize(v)
}
