package vector

import "fmt"

// Mean returns the per-component average of the given vectors.
// Nil vectors are skipped; if none remain the result is nil.
func Mean(vectors [][]float32) ([]float32, error) {
	var sum []float64
	count := 0
	for _, v := range vectors {
		if v == nil {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		} else if len(v) != len(sum) {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(v), len(sum))
		}
		for i, f := range v {
			sum[i] += float64(f)
		}
		count++
	}
	if count == 0 {
		return nil, nil
	}

	out := make([]float32, len(sum))
	for i, s := range sum {
		out[i] = float32(s / float64(count))
	}
	return out, nil
}
