package fingerprint

import (
	"image"
	"math"
)

const (
	// sharpnessSampleSize bounds the longer edge of the image used for the
	// Laplacian so large originals cost the same as thumbnails.
	sharpnessSampleSize = 512

	// sharpVariance is the Laplacian variance treated as fully sharp.
	sharpVariance = 500.0

	sharpnessWeight = 0.7
)

// computeSharpness returns the variance of the 4-neighbour Laplacian of the
// grayscale image, mapped to 0..1.
func computeSharpness(img image.Image) float64 {
	w, h := sampleSize(img.Bounds().Dx(), img.Bounds().Dy(), sharpnessSampleSize)
	if w < 3 || h < 3 {
		return 0
	}
	gray := toGrayscale(resizeImage(img, w, h))

	var sum, sumSq float64
	n := 0
	for x := 1; x < w-1; x++ {
		for y := 1; y < h-1; y++ {
			lap := gray[x-1][y] + gray[x+1][y] + gray[x][y-1] + gray[x][y+1] - 4*gray[x][y]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	return math.Min(1, math.Max(0, variance/sharpVariance))
}

// computeExposure scores mean luminance: 1 for mid-gray, 0 for fully black
// or fully white images.
func computeExposure(img image.Image) float64 {
	gray := toGrayscale(resizeImage(img, 32, 32))
	var sum float64
	for x := range gray {
		for y := range gray[x] {
			sum += gray[x][y]
		}
	}
	mean := sum / (32 * 32)
	return math.Max(0, 1-math.Abs(mean-127.5)/127.5)
}

func qualityScore(sharpness, exposure float64) float64 {
	return sharpnessWeight*sharpness + (1-sharpnessWeight)*exposure
}

// sampleSize scales (w, h) down so the longer edge is at most limit.
func sampleSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
