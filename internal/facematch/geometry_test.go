package facematch

import (
	"math"
	"testing"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		bbox1    database.BBox
		bbox2    database.BBox
		expected float64
	}{
		{"identical", database.BBox{0, 0, 1, 1}, database.BBox{0, 0, 1, 1}, 1},
		{"no overlap", database.BBox{0, 0, 0.2, 0.2}, database.BBox{0.5, 0.5, 0.7, 0.7}, 0},
		{"touching", database.BBox{0, 0, 0.5, 0.5}, database.BBox{0.5, 0, 1, 0.5}, 0},
		{"half overlap", database.BBox{0, 0, 0.4, 0.4}, database.BBox{0.2, 0, 0.6, 0.4}, 1.0 / 3.0},
		{"contained", database.BBox{0, 0, 1, 1}, database.BBox{0.25, 0.25, 0.75, 0.75}, 0.25},
		{"degenerate", database.BBox{0, 0, 0, 0}, database.BBox{0, 0, 0, 0}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := ComputeIoU(tc.bbox1, tc.bbox2)
			if math.Abs(result-tc.expected) > 1e-9 {
				t.Errorf("ComputeIoU() = %v, want %v", result, tc.expected)
			}
		})
	}
}

func TestPixelToRelative(t *testing.T) {
	tests := []struct {
		name   string
		bbox   []float64
		width  int
		height int
		want   database.BBox
		ok     bool
	}{
		{"basic", []float64{100, 50, 200, 150}, 1000, 500, database.BBox{0.1, 0.1, 0.2, 0.3}, true},
		{"clamped", []float64{-10, -10, 1100, 600}, 1000, 500, database.BBox{0, 0, 1, 1}, true},
		{"wrong length", []float64{1, 2, 3}, 100, 100, database.BBox{}, false},
		{"zero size image", []float64{1, 2, 3, 4}, 0, 100, database.BBox{}, false},
		{"inverted", []float64{200, 50, 100, 150}, 1000, 500, database.BBox{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PixelToRelative(tc.bbox, tc.width, tc.height)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			for i := range got {
				if math.Abs(got[i]-tc.want[i]) > 1e-9 {
					t.Errorf("PixelToRelative() = %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestFilterFaces(t *testing.T) {
	faces := []database.Face{
		{BBox: database.BBox{0.1, 0.1, 0.3, 0.3}, Confidence: 0.7},
		{BBox: database.BBox{0.11, 0.1, 0.31, 0.3}, Confidence: 0.9}, // overlaps the first, more confident
		{BBox: database.BBox{0.6, 0.6, 0.605, 0.61}, Confidence: 0.99}, // too small
		{BBox: database.BBox{0.6, 0.1, 0.8, 0.3}, Confidence: 0.5},
	}

	got := FilterFaces(faces, 0.01, 0.5)
	if len(got) != 2 {
		t.Fatalf("got %d faces, want 2: %+v", len(got), got)
	}
	if got[0].Confidence != 0.9 || got[1].Confidence != 0.5 {
		t.Errorf("unexpected survivors: %+v", got)
	}
	if got[0].FaceIndex != 0 || got[1].FaceIndex != 1 {
		t.Errorf("faces not re-indexed: %d, %d", got[0].FaceIndex, got[1].FaceIndex)
	}
}
