package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/database/mariadb"
	"github.com/kozaktomas/photo-grouper/internal/logger"
)

// photos are upserted in chunks of this size, one transaction each
const syncChunkSize = 500

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Photo catalog commands",
}

var photosSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the photo catalog from the PhotoPrism database",
	Long: `Read photos and their primary files from the PhotoPrism MariaDB database
(PHOTOPRISM_DATABASE_URL) into the local catalog. Photos deleted in PhotoPrism
are removed together with their faces and analysis; affected persons are
re-derived.

Examples:
  # Full sync
  photo-grouper photos sync

  # Only photos changed in the last day
  photo-grouper photos sync --since 24h`,
	RunE: runPhotosSync,
}

var photosDeleteCmd = &cobra.Command{
	Use:   "delete <photo-uid>",
	Short: "Delete a photo with its faces and analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runPhotosDelete,
}

func init() {
	rootCmd.AddCommand(photosCmd)
	photosCmd.AddCommand(photosSyncCmd, photosDeleteCmd)

	photosSyncCmd.Flags().Duration("since", 0, "Only sync photos updated within this duration (0 = all)")
}

// syncStats summarizes one catalog sync.
type syncStats struct {
	Upserted int
	Deleted  int
}

// syncCatalog copies the PhotoPrism catalog into the store and removes photos
// deleted there.
func syncCatalog(ctx context.Context, a *app, catalog *mariadb.Pool, since time.Time) (syncStats, error) {
	var stats syncStats

	photos, err := catalog.Photos(ctx, since)
	if err != nil {
		return stats, err
	}
	for start := 0; start < len(photos); start += syncChunkSize {
		chunk := photos[start:min(start+syncChunkSize, len(photos))]
		if err := a.store.WithTx(ctx, func(tx database.Tx) error {
			return tx.UpsertPhotos(ctx, chunk)
		}); err != nil {
			return stats, fmt.Errorf("upsert photos: %w", err)
		}
		stats.Upserted += len(chunk)
	}

	deleted, err := catalog.DeletedPhotoUIDs(ctx)
	if err != nil {
		return stats, err
	}
	for _, uid := range deleted {
		var known *database.Photo
		if err := a.store.WithReadTx(ctx, func(tx database.Reader) error {
			var err error
			known, err = tx.GetPhoto(ctx, uid)
			return err
		}); err != nil {
			return stats, fmt.Errorf("get photo %s: %w", uid, err)
		}
		if known == nil {
			continue
		}
		affected, err := a.manager.DeletePhoto(ctx, uid)
		if err != nil {
			return stats, err
		}
		logger.Debug("photo removed", "photo", uid, "affected_persons", len(affected))
		stats.Deleted++
	}
	return stats, nil
}

func openCatalog(a *app) (*mariadb.Pool, error) {
	if a.cfg.PhotoPrism.DatabaseURL == "" {
		return nil, errors.New("PHOTOPRISM_DATABASE_URL environment variable is required")
	}
	catalog, err := mariadb.NewPool(a.cfg.PhotoPrism.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PhotoPrism database: %w", err)
	}
	return catalog, nil
}

func runPhotosSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	catalog, err := openCatalog(a)
	if err != nil {
		return err
	}
	defer catalog.Close()

	var since time.Time
	if d, _ := cmd.Flags().GetDuration("since"); d > 0 {
		since = time.Now().Add(-d)
	}

	stats, err := syncCatalog(ctx, a, catalog, since)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Printf("Synced %d photos, removed %d deleted photos\n", stats.Upserted, stats.Deleted)
	return nil
}

func runPhotosDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	affected, err := a.manager.DeletePhoto(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Photo %s deleted, %d persons re-derived\n", args[0], len(affected))
	return nil
}
