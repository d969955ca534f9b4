// Package facecluster groups face embeddings into persons with DBSCAN over
// cosine distance.
package facecluster

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/vector"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

// Point labels.
const (
	Unvisited = -2
	Noise     = -1
)

// Options configures a DBSCAN run.
type Options struct {
	Eps    float64 // maximum cosine distance between neighbours
	MinPts int     // minimum neighbourhood size, the point itself included

	// MatrixThreshold is the largest input for which the full distance matrix
	// is precomputed. Zero selects constants.PairwiseMatrixThreshold.
	MatrixThreshold int

	// Pool computes the distance matrix rows in parallel and runs the
	// neighbourhood scan. Optional.
	Pool *workpool.Pool
}

// DBSCAN labels every point with a cluster number starting at 0, or Noise.
// Points are visited in input order and onVisit (optional) receives the
// number of points visited so far after each one. ctx is checked once per
// visited point. Returns the labels and the number of clusters.
func DBSCAN(ctx context.Context, points [][]float32, opts Options, onVisit func(visited, total int)) ([]int, int, error) {
	n := len(points)
	if n == 0 {
		return nil, 0, nil
	}
	for i := 1; i < n; i++ {
		if len(points[i]) != len(points[0]) {
			return nil, 0, fmt.Errorf("point %d: %w: %d vs %d", i, vector.ErrDimensionMismatch, len(points[i]), len(points[0]))
		}
	}
	if opts.MinPts < 1 {
		opts.MinPts = 1
	}
	threshold := opts.MatrixThreshold
	if threshold <= 0 {
		threshold = constants.PairwiseMatrixThreshold
	}

	var dist func(i, j int) float64
	if n <= threshold {
		matrix, err := distanceMatrix(ctx, points, opts.Pool)
		if err != nil {
			return nil, 0, err
		}
		dist = func(i, j int) float64 { return matrix[i*n+j] }
	} else {
		dist = func(i, j int) float64 { return distance(points[i], points[j]) }
	}

	neighbours := func(p int) []int {
		var result []int
		for q := range n {
			if q == p || dist(p, q) <= opts.Eps {
				result = append(result, q)
			}
		}
		return result
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Unvisited
	}

	cluster := 0
	visit := func(ctx context.Context) error {
		for p := range n {
			if err := ctx.Err(); err != nil {
				return err
			}

			if labels[p] == Unvisited {
				nb := neighbours(p)
				if len(nb) < opts.MinPts {
					labels[p] = Noise
				} else {
					expand(p, nb, cluster, labels, opts.MinPts, neighbours)
					cluster++
				}
			}

			if onVisit != nil {
				onVisit(p+1, n)
			}
		}
		return nil
	}

	// The neighbourhood scan holds one compute slot. The matrix workers have
	// released theirs by now.
	var err error
	if opts.Pool != nil {
		err = opts.Pool.Do(ctx, visit)
	} else {
		err = visit(ctx)
	}
	if err != nil {
		return nil, 0, err
	}
	return labels, cluster, nil
}

// expand grows cluster from the core point p. Noise reached from a core point
// becomes a border point and is not expanded further.
func expand(p int, nb []int, cluster int, labels []int, minPts int, neighbours func(int) []int) {
	labels[p] = cluster
	queue := make([]int, 0, len(nb))
	for _, q := range nb {
		if q != p {
			queue = append(queue, q)
		}
	}

	for k := 0; k < len(queue); k++ {
		q := queue[k]
		switch labels[q] {
		case Noise:
			labels[q] = cluster
			continue
		case Unvisited:
		default:
			continue
		}

		labels[q] = cluster
		qn := neighbours(q)
		if len(qn) >= minPts {
			for _, r := range qn {
				if labels[r] == Unvisited || labels[r] == Noise {
					queue = append(queue, r)
				}
			}
		}
	}
}

// distance assumes equal lengths, checked up front by DBSCAN.
func distance(a, b []float32) float64 {
	d, _ := vector.CosineDistance(a, b)
	return d
}

// distanceMatrix returns the symmetric n*n matrix in row-major order.
// Row i fills the cells (i, j) and (j, i) for j > i, so rows never write the same cell.
func distanceMatrix(ctx context.Context, points [][]float32, pool *workpool.Pool) ([]float64, error) {
	n := len(points)
	matrix := make([]float64, n*n)
	row := func(_ context.Context, i int) error {
		for j := i + 1; j < n; j++ {
			d := distance(points[i], points[j])
			matrix[i*n+j] = d
			matrix[j*n+i] = d
		}
		return nil
	}

	if pool == nil {
		for i := range n {
			if err := row(ctx, i); err != nil {
				return nil, err
			}
		}
		return matrix, ctx.Err()
	}
	if err := pool.ForEach(ctx, n, row); err != nil {
		return nil, err
	}
	return matrix, nil
}
