package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/ai"
	"github.com/kozaktomas/photo-grouper/internal/analysis"
	"github.com/kozaktomas/photo-grouper/internal/config"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/database/postgres"
	"github.com/kozaktomas/photo-grouper/internal/duplicates"
	"github.com/kozaktomas/photo-grouper/internal/facecluster"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/persons"
	"github.com/kozaktomas/photo-grouper/internal/photoprism"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

// app bundles the components every command works with.
type app struct {
	cfg     *config.Config
	store   database.Store
	pools   *workpool.Pools
	manager *persons.Manager
	labels  ai.LabelProvider
	closers []func()
}

// openApp connects to PostgreSQL, applies migrations and wires the person
// manager. index may be nil; it is then built on first use.
func openApp(ctx context.Context, index *database.HNSWIndex) (*app, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	logger.Debug("connecting to PostgreSQL")
	dims := postgres.Dimensions{Face: cfg.Embedding.FaceDim, Image: cfg.Embedding.ImageDim}
	if err := postgres.Initialize(&cfg.Database, dims); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	store, err := database.GetStore(ctx)
	if err != nil {
		return nil, err
	}

	pools := workpool.NewPools(cfg.Analysis.ComputeWorkers, cfg.Analysis.IOWorkers)
	return &app{
		cfg:     cfg,
		store:   store,
		pools:   pools,
		manager: persons.NewManager(store, index, pools.Compute),
	}, nil
}

func (a *app) Close() {
	for _, fn := range a.closers {
		fn()
	}
	if pool := postgres.GetGlobalPool(); pool != nil {
		if err := pool.Close(); err != nil {
			logger.Warn("closing database", "error", err)
		}
	}
}

func (a *app) clusterEngine() *facecluster.Engine {
	return facecluster.NewEngine(a.manager, a.pools.Compute)
}

func (a *app) duplicateDetector() *duplicates.Detector {
	return duplicates.NewDetector(a.store, a.pools.Compute)
}

// orchestrator wires the analysis pipeline: the configured label provider,
// the embedding server for faces and image embeddings, and originals read
// from PHOTOPRISM_ORIGINALS_PATH.
func (a *app) orchestrator(ctx context.Context) (*analysis.Orchestrator, error) {
	provider, err := ai.NewFromConfig(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	var labels analysis.LabelDetector
	if provider != nil {
		labels = provider
		a.labels = provider
		logger.Info("label provider enabled", "provider", provider.Name())
	}

	server := analysis.NewEmbeddingServer(a.cfg.Embedding.URL)
	opts := analysis.DefaultOptions()
	opts.FaceDim = a.cfg.Embedding.FaceDim
	opts.ImageDim = a.cfg.Embedding.ImageDim

	loader, err := a.imageLoader(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.NewOrchestrator(a.manager, loader, labels, server, server, a.pools.IO, opts), nil
}

// imageLoader reads originals from PHOTOPRISM_ORIGINALS_PATH when set and
// downloads them through the PhotoPrism API otherwise.
func (a *app) imageLoader(ctx context.Context) (analysis.ImageLoader, error) {
	pp := a.cfg.PhotoPrism
	if pp.OriginalsPath != "" || pp.URL == "" {
		return analysis.FileLoader{Root: pp.OriginalsPath}, nil
	}

	client, err := photoprism.NewPhotoPrism(ctx, pp.URL, pp.Username, pp.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PhotoPrism: %w", err)
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Logout(ctx); err != nil {
			logger.Warn("PhotoPrism logout failed", "error", err)
		}
	})
	logger.Info("downloading originals from PhotoPrism", "url", pp.URL)
	return photoprism.Loader{Client: client}, nil
}

// loadFaceIndex loads the face HNSW index persisted at path, or builds it
// from the store and saves it there.
func loadFaceIndex(ctx context.Context, store database.Store, path string) (*database.HNSWIndex, error) {
	var faces []database.Face
	err := store.WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		faces, err = tx.GetFacesWithEmbedding(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load faces: %w", err)
	}

	index := database.NewHNSWIndex()
	reused, err := index.LoadOrBuild(path, faces)
	if err != nil {
		return nil, fmt.Errorf("face index: %w", err)
	}
	logger.Info("face index ready", "faces", index.Count(), "reused", reused, "path", path)
	return index, nil
}
