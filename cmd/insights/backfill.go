package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/insights/internal/backfill"
)

var backfillCfg backfill.Config

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Import transcript files and compute their insights",
	Long: `Walks a directory of .json/.jsonl transcript files, stores each
transcript and runs the insight pipeline on it. Progress is kept in a state
file so an interrupted run resumes with the next unprocessed file.

Examples:
  insights backfill --dir ./exports
  insights backfill --file ./exports/2026-09.jsonl --skip-process
  insights backfill --dir ./exports --dry-run`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func init() {
	f := backfillCmd.Flags()
	f.StringVar(&backfillCfg.Dir, "dir", "", "directory to scan for transcript files")
	f.StringVar(&backfillCfg.SingleFile, "file", "", "process a single file instead of a directory")
	f.StringVar(&backfillCfg.StatePath, "state", backfill.DefaultStatePath, "state file for resumable runs")
	f.BoolVar(&backfillCfg.DryRun, "dry-run", false, "parse and validate without writing")
	f.BoolVar(&backfillCfg.SkipProcess, "skip-process", false, "import transcripts without running the pipeline")
	f.DurationVar(&backfillCfg.Pause, "pause", 0, "pause between transcripts, e.g. 5s")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	start := time.Now()
	sum, err := backfill.NewRunner(backfillCfg, c.db, c.processor, logger).Run(ctx)
	if sum != nil {
		fmt.Printf("\n=== Backfill Summary ===\n")
		fmt.Printf("Files: %d\n", sum.Files)
		fmt.Printf("Transcripts imported: %d\n", sum.TranscriptsImported)
		fmt.Printf("Transcripts processed: %d (%d partial)\n", sum.TranscriptsProcessed, sum.PartialRecords)
		fmt.Printf("Skipped: %d\n", sum.Skipped)
		fmt.Printf("Errors: %d\n", sum.Errors)
		fmt.Printf("Elapsed: %s\n", time.Since(start).Round(time.Second))
		if backfillCfg.DryRun {
			fmt.Printf("Mode: DRY RUN (no DB writes)\n")
		}
	}
	return err
}
