package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/persons"
	"github.com/kozaktomas/photo-grouper/internal/scheduler"
	"github.com/kozaktomas/photo-grouper/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Photo Grouper API server.
The server exposes persons, faces, clustering, duplicate detection and
analysis over HTTP. Long-running operations run as jobs with SSE progress.

With ANALYSIS_SCHEDULE set, unanalyzed photos are analyzed in the background
on that cron schedule; PHOTOPRISM_SYNC_SCHEDULE does the same for catalog syncs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		} else {
			logger.Warn("ignoring invalid WEB_PORT", "value", envPort)
		}
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// saveFaceIndex persists the face HNSW index during shutdown.
func saveFaceIndex(index *database.HNSWIndex, path string) {
	if path == "" || index == nil {
		return
	}
	if err := index.SaveWithMetadata(path); err != nil {
		logger.Warn("failed to save face index", "path", path, "error", err)
		return
	}
	logger.Info("face index saved", "path", path, "faces", index.Count())
}

// setupScheduler registers the background analysis and catalog sync tasks.
// It returns nil when neither is configured.
func setupScheduler(a *app, runner scheduler.BatchRunner) (*scheduler.Scheduler, error) {
	cfg := a.cfg
	if cfg.Analysis.Schedule == "" && cfg.PhotoPrism.SyncSchedule == "" {
		return nil, nil
	}

	sched := scheduler.New()
	if cfg.Analysis.Schedule != "" {
		if err := sched.AddJob("analysis", cfg.Analysis.Schedule, scheduler.AnalysisTask(runner, cfg.Analysis.BatchSize)); err != nil {
			return nil, err
		}
	}

	if cfg.PhotoPrism.SyncSchedule != "" {
		catalog, err := openCatalog(a)
		if err != nil {
			return nil, err
		}
		// incremental after the first run
		var last time.Time
		err = sched.AddJob("sync", cfg.PhotoPrism.SyncSchedule, func(ctx context.Context) {
			started := time.Now()
			stats, err := syncCatalog(ctx, a, catalog, last)
			if err != nil {
				logger.Error("scheduled sync failed", "error", err)
				return
			}
			last = started
			logger.Info("catalog synced", "upserted", stats.Upserted, "deleted", stats.Deleted)
		})
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	indexPath := a.cfg.Database.HNSWIndexPath
	index, err := loadFaceIndex(ctx, a.store, indexPath)
	if err != nil {
		logger.Warn("face index unavailable, building on first use", "error", err)
		index = nil
	} else {
		database.RegisterFaceIndex(index)
	}
	a.manager = persons.NewManager(a.store, index, a.pools.Compute)

	orchestrator, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}

	sched, err := setupScheduler(a, orchestrator)
	if err != nil {
		return err
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(a.cfg, web.Services{
		Manager:      a.manager,
		Engine:       a.clusterEngine(),
		Detector:     a.duplicateDetector(),
		Orchestrator: orchestrator,
	}, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down")
		if sched != nil {
			sched.Stop()
		}
		orchestrator.Cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
		saveFaceIndex(index, indexPath)
	}()

	if sched != nil {
		sched.Start()
	}

	fmt.Printf("Starting Photo Grouper API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
