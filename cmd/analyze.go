package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-grouper/internal/analysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze unanalyzed photos",
	Long: `Analyze photos that have no stored analysis yet: detect labels, faces and
the whole-image embedding, then store the result.

Examples:
  # Analyze one batch of 20 photos
  photo-grouper analyze

  # Keep going until every photo is analyzed
  photo-grouper analyze --all --batch-size 50

  # Re-analyze a single photo, replacing its faces
  photo-grouper analyze --photo pt1abc2def3`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Int("batch-size", 0, "Photos per batch (0 = ANALYSIS_BATCH_SIZE)")
	analyzeCmd.Flags().Bool("all", false, "Run batches until nothing is left")
	analyzeCmd.Flags().String("photo", "", "Re-analyze a single photo by UID")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	batchSize := mustGetInt(cmd, "batch-size")
	all := mustGetBool(cmd, "all")
	photoUID := mustGetString(cmd, "photo")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if batchSize <= 0 {
		batchSize = a.cfg.Analysis.BatchSize
	}

	orchestrator, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}

	if photoUID != "" {
		res, err := orchestrator.Reanalyze(ctx, photoUID)
		if err != nil {
			return fmt.Errorf("re-analyze %s: %w", photoUID, err)
		}
		fmt.Printf("Photo %s: %d faces, %d labels, category %q, embedding: %v\n",
			res.PhotoUID, res.FaceCount, len(res.Labels), res.PrimaryCategory, len(res.Embedding) > 0)
		return nil
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWriter(os.Stderr),
	)
	orchestrator.OnProgress = func(p analysis.Progress) {
		if p.Stage == analysis.StageSaved {
			_ = bar.Add(1)
		}
		bar.Describe(fmt.Sprintf("Analyzing %s (%s)", p.PhotoUID, p.Stage))
	}

	var res analysis.Result
	if all {
		res, err = orchestrator.RunUntilDone(ctx, batchSize, nil)
	} else {
		res, err = orchestrator.RunBatch(ctx, batchSize)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	fmt.Printf("State: %s\n", res.State)
	fmt.Printf("Processed: %d\n", res.Processed)
	fmt.Printf("Analyzed:  %d\n", res.TotalAnalyzed)
	fmt.Printf("Remaining: %d\n", res.TotalRemaining)
	if a.labels != nil {
		usage := a.labels.GetUsage()
		fmt.Printf("Labels:    %s, %d in / %d out tokens, $%.4f\n",
			a.labels.Name(), usage.InputTokens, usage.OutputTokens, usage.TotalCost)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if res.Continue && !all {
		fmt.Println("More photos are waiting; run again or pass --all.")
	}
	return nil
}
