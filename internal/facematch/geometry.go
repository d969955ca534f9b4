// Package facematch provides face geometry and name helpers shared by the
// analysis pipeline and the person manager.
package facematch

import (
	"sort"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// Both boxes are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 database.BBox) float64 {
	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// PixelToRelative converts a pixel bbox [x1, y1, x2, y2] to relative (0-1) coordinates,
// clamped to the image. Returns false for malformed input.
func PixelToRelative(bbox []float64, width, height int) (database.BBox, bool) {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return database.BBox{}, false
	}
	clamp := func(v float64) float64 { return min(max(v, 0), 1) }
	rel := database.BBox{
		clamp(bbox[0] / float64(width)),
		clamp(bbox[1] / float64(height)),
		clamp(bbox[2] / float64(width)),
		clamp(bbox[3] / float64(height)),
	}
	if rel[2] <= rel[0] || rel[3] <= rel[1] {
		return database.BBox{}, false
	}
	return rel, true
}

// FilterFaces drops faces narrower than minWidthRel and collapses detections
// overlapping by more than maxIoU into the most confident one. The survivors keep
// their input order and are re-indexed from 0.
func FilterFaces(faces []database.Face, minWidthRel, maxIoU float64) []database.Face {
	order := make([]int, 0, len(faces))
	for i := range faces {
		if faces[i].BBox.Width() >= minWidthRel {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return faces[order[a]].Confidence > faces[order[b]].Confidence
	})

	keep := make([]bool, len(faces))
	var kept []int
	for _, i := range order {
		duplicate := false
		for _, k := range kept {
			if ComputeIoU(faces[i].BBox, faces[k].BBox) > maxIoU {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, i)
			keep[i] = true
		}
	}

	result := make([]database.Face, 0, len(kept))
	for i := range faces {
		if keep[i] {
			f := faces[i]
			f.FaceIndex = len(result)
			result = append(result, f)
		}
	}
	return result
}
