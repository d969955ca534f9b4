package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-grouper/internal/facecluster"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster all face embeddings into persons",
	Long: `Run density-based clustering over every face embedding and rebuild the
person set from the result. Faces that fit no cluster become single-face
persons.

With --preserve-curated, named persons and manually verified faces are kept
as they are and only the remaining faces are clustered.

Examples:
  photo-grouper cluster
  photo-grouper cluster --eps 0.35 --min-pts 3 --preserve-curated`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().Float64("eps", 0, "Neighborhood radius in cosine distance (0 = CLUSTER_EPS)")
	clusterCmd.Flags().Int("min-pts", 0, "Minimum neighbors for a core face (0 = CLUSTER_MIN_PTS)")
	clusterCmd.Flags().Bool("preserve-curated", false, "Keep named persons and verified faces")
}

func runCluster(cmd *cobra.Command, args []string) error {
	eps := mustGetFloat64(cmd, "eps")
	minPts := mustGetInt(cmd, "min-pts")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	params := facecluster.Params{
		Eps:             a.cfg.Clustering.Eps,
		MinPts:          a.cfg.Clustering.MinPts,
		PreserveCurated: mustGetBool(cmd, "preserve-curated"),
	}
	if eps > 0 {
		params.Eps = eps
	}
	if minPts > 0 {
		params.MinPts = minPts
	}
	if params.Eps > 2 {
		return fmt.Errorf("--eps must be within 0..2, got %g", params.Eps)
	}

	var bar *progressbar.ProgressBar
	results, err := a.clusterEngine().RunClustering(ctx, params, func(visited, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Clustering faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(visited)
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}

	var clusters, noise, faces int
	for _, r := range results {
		faces += r.FaceCount
		if r.Noise {
			noise++
		} else {
			clusters++
		}
	}
	fmt.Printf("Created %d persons from %d faces (%d clusters, %d single-face)\n",
		len(results), faces, clusters, noise)
	return nil
}
