package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-grouper/internal/config"
	"github.com/kozaktomas/photo-grouper/internal/logger"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "photo-grouper",
	Short: "Group photos into persons and duplicate sets",
	Long: `Photo Grouper analyzes a PhotoPrism catalog: it tags photos with labels,
detects and embeds faces, clusters faces into persons and finds groups of
near-duplicate photos. Results are stored in PostgreSQL.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (or LOG_DEBUG=true)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(logger.Options{Debug: debug || cfg.Log.Debug})
}
