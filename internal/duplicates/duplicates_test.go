package duplicates

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/database/mock"
	"github.com/kozaktomas/photo-grouper/internal/vector"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

// xyz returns three unit vectors: sim(x,y)=0.9, sim(x,z)=0.5, sim(y,z)=0.5.
func xyz() (x, y, z []float32) {
	y2 := math.Sqrt(0.19)
	z2 := 0.05 / y2
	z3 := math.Sqrt(1 - 0.25 - z2*z2)
	return []float32{1, 0, 0},
		[]float32{0.9, float32(y2), 0},
		[]float32{0.5, float32(z2), float32(z3)}
}

func angle(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func newTestDetector(analyses ...database.PhotoAnalysis) *Detector {
	store := mock.NewMockStore()
	for _, a := range analyses {
		store.AddAnalysis(a)
	}
	return NewDetector(store, workpool.New("compute", 2))
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)
	if !uf.union(0, 1) {
		t.Error("first union(0,1) should merge")
	}
	if uf.union(1, 0) {
		t.Error("repeated union should report no merge")
	}
	uf.union(3, 4)
	uf.union(1, 4)
	if uf.find(0) != uf.find(3) {
		t.Error("0 and 3 should share a root")
	}
	if uf.find(2) == uf.find(0) {
		t.Error("2 should stay alone")
	}
}

func TestDetect_ThreeVectors(t *testing.T) {
	x, y, z := xyz()
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "x", Embedding: x},
		database.PhotoAnalysis{PhotoUID: "y", Embedding: y},
		database.PhotoAnalysis{PhotoUID: "z", Embedding: z},
	)

	groups, err := d.Detect(context.Background(), 0.85, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d: %+v", len(groups), groups)
	}
	g := groups[0]
	if len(g.PhotoUIDs) != 2 || g.PhotoUIDs[0] != "x" || g.PhotoUIDs[1] != "y" {
		t.Errorf("unexpected members %v", g.PhotoUIDs)
	}
	if g.RepresentativeUID != "x" {
		t.Errorf("representative = %s, want x", g.RepresentativeUID)
	}
	if math.Abs(g.AverageSimilarity-0.9) > 1e-5 {
		t.Errorf("average similarity = %f, want 0.9", g.AverageSimilarity)
	}
	if g.ID != 1 {
		t.Errorf("group ID = %d, want 1", g.ID)
	}
}

func TestDetect_DefaultThreshold(t *testing.T) {
	x, y, z := xyz()
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "x", Embedding: x},
		database.PhotoAnalysis{PhotoUID: "y", Embedding: y},
		database.PhotoAnalysis{PhotoUID: "z", Embedding: z},
	)
	groups, err := d.Detect(context.Background(), -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].PhotoUIDs) != 2 {
		t.Fatalf("expected default threshold 0.85 to group x and y only, got %+v", groups)
	}
}

func TestDetect_ZeroThreshold(t *testing.T) {
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "a", Embedding: []float32{1, 0, 0}},
		database.PhotoAnalysis{PhotoUID: "b", Embedding: []float32{0, 1, 0}},
	)

	groups, err := d.Detect(context.Background(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].PhotoUIDs) != 2 {
		t.Fatalf("expected orthogonal photos to group at threshold 0, got %+v", groups)
	}

	groups, err = d.Detect(context.Background(), -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Errorf("expected no groups at the default threshold, got %+v", groups)
	}
}

func TestDetect_SkipsMissingEmbeddings(t *testing.T) {
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "a", Embedding: angle(0)},
		database.PhotoAnalysis{PhotoUID: "b"},
		database.PhotoAnalysis{PhotoUID: "c", Embedding: angle(1)},
	)
	groups, err := d.Detect(context.Background(), 0.9, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].PhotoUIDs) != 2 {
		t.Fatalf("unexpected groups %+v", groups)
	}
}

func TestDetect_Transitive(t *testing.T) {
	// 0-8 and 8-16 are similar, 0-16 is not; union-find still joins all three.
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "a", Embedding: angle(0)},
		database.PhotoAnalysis{PhotoUID: "b", Embedding: angle(8)},
		database.PhotoAnalysis{PhotoUID: "c", Embedding: angle(16)},
	)
	threshold := math.Cos(10 * math.Pi / 180)
	groups, err := d.Detect(context.Background(), threshold, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].PhotoUIDs) != 3 {
		t.Fatalf("expected one group of three, got %+v", groups)
	}
}

func TestDetect_OrderingAndLimit(t *testing.T) {
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "a1", Embedding: angle(0)},
		database.PhotoAnalysis{PhotoUID: "a2", Embedding: angle(1)},
		database.PhotoAnalysis{PhotoUID: "b1", Embedding: angle(90)},
		database.PhotoAnalysis{PhotoUID: "b2", Embedding: angle(90.5)},
		database.PhotoAnalysis{PhotoUID: "b3", Embedding: angle(91)},
		database.PhotoAnalysis{PhotoUID: "c1", Embedding: angle(180)},
		database.PhotoAnalysis{PhotoUID: "c2", Embedding: angle(180.2)},
	)
	threshold := math.Cos(3 * math.Pi / 180)

	groups, err := d.Detect(context.Background(), threshold, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	want := []string{"b1", "c1", "a1"}
	for i, g := range groups {
		if g.RepresentativeUID != want[i] {
			t.Errorf("group %d representative = %s, want %s", i, g.RepresentativeUID, want[i])
		}
		if g.ID != i+1 {
			t.Errorf("group %d ID = %d", i, g.ID)
		}
	}

	d.Limit = 1
	groups, err = d.Detect(context.Background(), threshold, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].RepresentativeUID != "b1" {
		t.Errorf("limit not applied: %+v", groups)
	}
}

func TestFindGroups_Progress(t *testing.T) {
	const n = 50
	uids := make([]string, n)
	embs := make([][]float32, n)
	for i := range n {
		uids[i] = string(rune('A' + i))
		embs[i] = angle(float64(i) * 7)
	}

	var reports []Progress
	_, err := FindGroups(context.Background(), uids, embs, 0.999, func(p Progress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	// 50*49/2 = 1225 pairs: one report at 1000 and one at the end.
	if len(reports) != 2 {
		t.Fatalf("expected 2 progress reports, got %d: %+v", len(reports), reports)
	}
	if reports[0].ProcessedPairs != 1000 {
		t.Errorf("first report at %d, want 1000", reports[0].ProcessedPairs)
	}
	last := reports[len(reports)-1]
	if last.ProcessedPairs != 1225 || last.TotalPairs != 1225 {
		t.Errorf("final report %+v, want 1225/1225", last)
	}
}

func TestFindGroups_Errors(t *testing.T) {
	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := FindGroups(context.Background(),
			[]string{"a", "b"},
			[][]float32{{1, 0}, {1, 0, 0}}, 0.85, nil)
		if !errors.Is(err, vector.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := FindGroups(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {1, 0}}, 0.85, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		groups, err := FindGroups(context.Background(), nil, nil, 0.85, nil)
		if err != nil || len(groups) != 0 {
			t.Errorf("expected no groups, got %v, %v", groups, err)
		}
	})
}

func TestDetectSimilarGroups_Stream(t *testing.T) {
	x, y, z := xyz()
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "x", Embedding: x},
		database.PhotoAnalysis{PhotoUID: "y", Embedding: y},
		database.PhotoAnalysis{PhotoUID: "z", Embedding: z},
	)

	var progress int
	var final *Event
	for ev := range d.DetectSimilarGroups(context.Background(), 0.85) {
		switch {
		case ev.Progress != nil:
			progress++
		default:
			e := ev
			final = &e
		}
	}
	if progress != 1 {
		t.Errorf("expected one progress event, got %d", progress)
	}
	if final == nil || final.Err != nil || len(final.Groups) != 1 {
		t.Fatalf("unexpected final event %+v", final)
	}
}

func TestDetectSimilarGroups_Error(t *testing.T) {
	d := newTestDetector(
		database.PhotoAnalysis{PhotoUID: "a", Embedding: []float32{1, 0}},
		database.PhotoAnalysis{PhotoUID: "b", Embedding: []float32{1, 0, 0}},
	)
	var last Event
	for ev := range d.DetectSimilarGroups(context.Background(), 0.85) {
		last = ev
	}
	if !errors.Is(last.Err, vector.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch error, got %+v", last)
	}
}
