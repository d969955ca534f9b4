// Package duplicates finds groups of near-duplicate photos by comparing every
// pair of image embeddings.
package duplicates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/vector"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

// Group is a set of photos whose embeddings are transitively similar.
type Group struct {
	ID                int      `json:"id"`
	PhotoUIDs         []string `json:"photo_uids"`
	AverageSimilarity float64  `json:"average_similarity"`
	RepresentativeUID string   `json:"representative_uid"`
}

// Progress reports how far a scan got.
type Progress struct {
	ProcessedPairs int64 `json:"processed_pairs"`
	TotalPairs     int64 `json:"total_pairs"`
	Unions         int   `json:"unions"`
}

// Event is one element of the DetectSimilarGroups stream. Exactly one of the
// fields is set; the last event carries Groups or Err.
type Event struct {
	Progress *Progress
	Groups   []Group
	Err      error
}

// Detector scans photo analyses for duplicates.
type Detector struct {
	store   database.Store
	compute *workpool.Pool

	// Limit caps the number of returned groups, 0 means no cap.
	Limit int
}

// NewDetector creates a detector reading from store. compute is optional.
func NewDetector(store database.Store, compute *workpool.Pool) *Detector {
	return &Detector{store: store, compute: compute}
}

// Detect loads every analysis carrying an embedding and groups the photos
// whose pairwise similarity is >= threshold. A negative threshold selects the
// default 0.85.
func (d *Detector) Detect(ctx context.Context, threshold float64, onProgress func(Progress)) ([]Group, error) {
	if threshold < 0 {
		threshold = constants.DefaultDuplicateThreshold
	}
	start := time.Now()

	var analyses []database.PhotoAnalysis
	err := d.store.WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		analyses, err = tx.GetAnalysesWithEmbedding(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load analyses: %w", err)
	}

	uids := make([]string, len(analyses))
	embeddings := make([][]float32, len(analyses))
	for i := range analyses {
		uids[i] = analyses[i].PhotoUID
		embeddings[i] = analyses[i].Embedding
	}

	var groups []Group
	scan := func(ctx context.Context) error {
		var err error
		groups, err = FindGroups(ctx, uids, embeddings, threshold, onProgress)
		return err
	}
	if d.compute != nil {
		err = d.compute.Do(ctx, scan)
	} else {
		err = scan(ctx)
	}
	if err != nil {
		return nil, err
	}

	if d.Limit > 0 && len(groups) > d.Limit {
		groups = groups[:d.Limit]
	}
	logger.Info("duplicate scan finished",
		"photos", len(uids), "groups", len(groups), "threshold", threshold,
		"duration", time.Since(start).Round(time.Millisecond))
	return groups, nil
}

// DetectSimilarGroups runs Detect in the background and streams its progress
// followed by one final event. The channel is closed afterwards.
func (d *Detector) DetectSimilarGroups(ctx context.Context, threshold float64) <-chan Event {
	events := make(chan Event, constants.EventChannelBuffer)
	go func() {
		defer close(events)
		send := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		groups, err := d.Detect(ctx, threshold, func(p Progress) {
			send(Event{Progress: &p})
		})
		if err != nil {
			send(Event{Err: err})
			return
		}
		send(Event{Groups: groups})
	}()
	return events
}

// FindGroups is the scan itself: every unordered pair (i, j), i < j, is
// compared once and similar pairs are unioned. Progress is reported every
// DuplicateProgressInterval comparisons and once at the end; ctx is checked
// once per outer index. Groups of one photo are dropped. The representative is
// the member appearing first in uids. Groups are ordered by size, then by
// average similarity, then by representative.
func FindGroups(ctx context.Context, uids []string, embeddings [][]float32, threshold float64, onProgress func(Progress)) ([]Group, error) {
	n := len(uids)
	if len(embeddings) != n {
		return nil, fmt.Errorf("%d uids but %d embeddings", n, len(embeddings))
	}
	for i := 1; i < n; i++ {
		if len(embeddings[i]) != len(embeddings[0]) {
			return nil, fmt.Errorf("photo %s: %w: %d vs %d", uids[i], vector.ErrDimensionMismatch, len(embeddings[i]), len(embeddings[0]))
		}
	}

	uf := newUnionFind(n)
	progress := Progress{TotalPairs: int64(n) * int64(n-1) / 2}
	lastReported := int64(-1)
	report := func() {
		if onProgress != nil && progress.ProcessedPairs != lastReported {
			lastReported = progress.ProcessedPairs
			onProgress(progress)
		}
	}

	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < n; j++ {
			sim, err := vector.CosineSimilarity(embeddings[i], embeddings[j])
			if err != nil {
				return nil, err
			}
			if sim >= threshold && uf.union(i, j) {
				progress.Unions++
			}
			progress.ProcessedPairs++
			if progress.ProcessedPairs%constants.DuplicateProgressInterval == 0 {
				report()
			}
		}
	}
	report()

	members := make(map[int][]int)
	var roots []int
	for i := range n {
		root := uf.find(i)
		if _, seen := members[root]; !seen {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}

	var groups []Group
	for _, root := range roots {
		idx := members[root]
		if len(idx) < 2 {
			continue
		}
		g := Group{
			PhotoUIDs:         make([]string, len(idx)),
			RepresentativeUID: uids[idx[0]],
		}
		for k, i := range idx {
			g.PhotoUIDs[k] = uids[i]
		}
		g.AverageSimilarity = averageSimilarity(embeddings, idx)
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		if len(groups[a].PhotoUIDs) != len(groups[b].PhotoUIDs) {
			return len(groups[a].PhotoUIDs) > len(groups[b].PhotoUIDs)
		}
		if groups[a].AverageSimilarity != groups[b].AverageSimilarity {
			return groups[a].AverageSimilarity > groups[b].AverageSimilarity
		}
		return groups[a].RepresentativeUID < groups[b].RepresentativeUID
	})
	for i := range groups {
		groups[i].ID = i + 1
	}
	return groups, nil
}

// averageSimilarity is the mean similarity over all member pairs.
func averageSimilarity(embeddings [][]float32, idx []int) float64 {
	var sum float64
	pairs := 0
	for a := range idx {
		for b := a + 1; b < len(idx); b++ {
			sim, _ := vector.CosineSimilarity(embeddings[idx[a]], embeddings[idx[b]])
			sum += sim
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
