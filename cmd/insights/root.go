package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/insights/internal/config"
)

var (
	cfg           config.Config
	logger        *slog.Logger
	closeLogger   func() error
	levelOverride string
)

var rootCmd = &cobra.Command{
	Use:   "insights",
	Short: "Sales conversation insight pipeline",
	Long: `insights turns stored sales-call transcripts into tracker insights:
phrase extraction, per-sentence classification and qualitative scoring
across the seven conversation trackers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal in deployed environments.
		_ = godotenv.Load()

		cfg = config.Load()
		if levelOverride != "" {
			cfg.LogLevel = levelOverride
		}
		logger, closeLogger = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&levelOverride, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(classifyCmd)
}
