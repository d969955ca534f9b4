package facecluster

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/persons"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

// Params configures a clustering run.
type Params struct {
	Eps    float64
	MinPts int

	// PreserveCurated leaves manually verified faces and named persons untouched.
	PreserveCurated bool
}

// DefaultParams returns eps 0.4, minPts 2, no curation preserved.
func DefaultParams() Params {
	return Params{
		Eps:    constants.DefaultClusterEps,
		MinPts: constants.DefaultClusterMinPts,
	}
}

// ClusterResult describes one person created by a run.
type ClusterResult struct {
	PersonID    string  `json:"person_id"`
	FaceIDs     []int64 `json:"face_ids"`
	CoverFaceID int64   `json:"cover_face_id"`
	FaceCount   int     `json:"face_count"`
	Noise       bool    `json:"noise"`
}

// Engine runs bulk clustering. Unlike the incremental operations of
// persons.Manager it replaces every assignment of the faces it processes.
type Engine struct {
	manager *persons.Manager
	compute *workpool.Pool
}

// NewEngine creates an engine writing through manager. compute is optional.
func NewEngine(manager *persons.Manager, compute *workpool.Pool) *Engine {
	return &Engine{manager: manager, compute: compute}
}

// RunClustering clusters every face carrying an embedding and rebuilds the
// persons from the result: prior assignments of those faces are cleared,
// persons left empty are deleted, one person is created per cluster and one
// singleton person per noise face. The write happens in a single transaction.
// onProgress (optional) receives the number of visited faces.
func (e *Engine) RunClustering(ctx context.Context, params Params, onProgress func(visited, total int)) ([]ClusterResult, error) {
	if params.Eps <= 0 {
		params.Eps = constants.DefaultClusterEps
	}
	if params.MinPts <= 0 {
		params.MinPts = constants.DefaultClusterMinPts
	}
	start := time.Now()
	store := e.manager.Store()

	var faces []database.Face
	err := store.WithReadTx(ctx, func(tx database.Reader) error {
		all, err := tx.GetFacesWithEmbedding(ctx)
		if err != nil {
			return fmt.Errorf("load faces: %w", err)
		}
		curated, err := curatedPersons(ctx, tx, params.PreserveCurated)
		if err != nil {
			return err
		}
		for i := range all {
			if isCurated(&all[i], curated, params.PreserveCurated) {
				continue
			}
			faces = append(faces, all[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	points := make([][]float32, len(faces))
	for i := range faces {
		points[i] = faces[i].Embedding
	}

	labels, clusters, err := DBSCAN(ctx, points, Options{
		Eps:    params.Eps,
		MinPts: params.MinPts,
		Pool:   e.compute,
	}, onProgress)
	if err != nil {
		return nil, fmt.Errorf("dbscan: %w", err)
	}

	groups := make([][]int64, clusters)
	var noise []int64
	for i, label := range labels {
		if label == Noise {
			noise = append(noise, faces[i].ID)
			continue
		}
		groups[label] = append(groups[label], faces[i].ID)
	}
	for _, id := range noise {
		groups = append(groups, []int64{id})
	}

	var results []ClusterResult
	err = e.manager.Apply(ctx, func(tx database.Tx) error {
		var err error
		results, err = e.apply(ctx, tx, groups, clusters, params.PreserveCurated)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("clustering finished",
		"faces", len(faces), "clusters", clusters, "noise", len(noise),
		"persons", len(results), "duration", time.Since(start).Round(time.Millisecond))
	return results, nil
}

func curatedPersons(ctx context.Context, tx database.Reader, preserve bool) (map[string]bool, error) {
	if !preserve {
		return nil, nil
	}
	all, err := tx.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	named := make(map[string]bool)
	for i := range all {
		if all[i].Name != "" {
			named[all[i].ID] = true
		}
	}
	return named, nil
}

func isCurated(f *database.Face, named map[string]bool, preserve bool) bool {
	return preserve && (f.ManuallyVerified || named[f.PersonID])
}

// apply writes the clustering result. groups[:clusters] are DBSCAN clusters,
// the rest are noise singletons. Faces that disappeared since the read are skipped.
func (e *Engine) apply(ctx context.Context, tx database.Tx, groups [][]int64, clusters int, preserve bool) ([]ClusterResult, error) {
	current, err := tx.GetFacesWithEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload faces: %w", err)
	}
	named, err := curatedPersons(ctx, tx, preserve)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*database.Face, len(current))
	affected := make(map[string]struct{})
	for i := range current {
		f := &current[i]
		if isCurated(f, named, preserve) {
			continue
		}
		byID[f.ID] = f
		if f.PersonID == "" {
			continue
		}
		affected[f.PersonID] = struct{}{}
		if err := tx.SetFacePerson(ctx, f.ID, "", false); err != nil {
			return nil, fmt.Errorf("unassign face %d: %w", f.ID, err)
		}
		f.PersonID = ""
		f.ManuallyVerified = false
	}

	for id := range affected {
		if _, err := persons.Refresh(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	results := make([]ClusterResult, 0, len(groups))
	for g, ids := range groups {
		members := make([]database.Face, 0, len(ids))
		for _, id := range ids {
			if f, ok := byID[id]; ok {
				members = append(members, *f)
			}
		}
		if len(members) == 0 {
			continue
		}

		p := &database.Person{ID: e.manager.NewPersonID()}
		for i := range members {
			members[i].PersonID = p.ID
		}
		if err := persons.DeriveAggregates(p, members); err != nil {
			return nil, err
		}
		if err := tx.CreatePerson(ctx, p); err != nil {
			return nil, fmt.Errorf("create person: %w", err)
		}

		faceIDs := make([]int64, len(members))
		for i := range members {
			if err := tx.SetFacePerson(ctx, members[i].ID, p.ID, false); err != nil {
				return nil, fmt.Errorf("assign face %d: %w", members[i].ID, err)
			}
			faceIDs[i] = members[i].ID
		}

		results = append(results, ClusterResult{
			PersonID:    p.ID,
			FaceIDs:     faceIDs,
			CoverFaceID: p.CoverFaceID,
			FaceCount:   p.FaceCount,
			Noise:       g >= clusters,
		})
	}
	return results, nil
}
