package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-grouper/internal/duplicates"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find groups of near-duplicate photos",
	Long: `Compare the image embeddings of all analyzed photos and print groups of
photos whose similarity reaches the threshold. Similarity is transitive:
if A~B and B~C, all three end up in one group.

Examples:
  photo-grouper duplicates
  photo-grouper duplicates --threshold 0.95 --limit 20
  photo-grouper duplicates --json > groups.json`,
	RunE: runDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)

	duplicatesCmd.Flags().Float64("threshold", 0, "Minimum cosine similarity (default DUPLICATE_THRESHOLD)")
	duplicatesCmd.Flags().Int("limit", 0, "Maximum number of groups to print (0 = all)")
	duplicatesCmd.Flags().Bool("json", false, "Print groups as JSON")
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	limit := mustGetInt(cmd, "limit")
	asJSON := mustGetBool(cmd, "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cmd.Flags().Changed("threshold") {
		threshold = a.cfg.Duplicates.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("--threshold must be within 0..1, got %g", threshold)
	}

	detector := a.duplicateDetector()
	detector.Limit = limit

	var bar *progressbar.ProgressBar
	groups, err := detector.Detect(ctx, threshold, func(p duplicates.Progress) {
		if bar == nil {
			bar = progressbar.NewOptions64(p.TotalPairs,
				progressbar.OptionSetDescription("Comparing photos"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set64(p.ProcessedPairs)
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("duplicate detection failed: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}
	for _, g := range groups {
		fmt.Printf("Group %d: %d photos, avg similarity %.3f, representative %s\n",
			g.ID, len(g.PhotoUIDs), g.AverageSimilarity, g.RepresentativeUID)
		for _, uid := range g.PhotoUIDs {
			fmt.Printf("  %s\n", uid)
		}
	}
	return nil
}
