package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var extractOnly bool

var processCmd = &cobra.Command{
	Use:   "process <person-id> <transcript-id>",
	Short: "Compute and store the insight record for one transcript",
	Long: `Runs extraction, classification and scoring for a stored transcript,
overwrites its insight record and prints the record as JSON.

With --extract-only, only phrase extraction runs and nothing is stored.`,
	Args: cobra.ExactArgs(2),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().BoolVar(&extractOnly, "extract-only", false, "run phrase extraction only")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	personID, transcriptID := args[0], args[1]

	c, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if extractOnly {
		result, err := c.processor.Extract(ctx, transcriptID, personID)
		if err != nil {
			return err
		}
		return enc.Encode(result)
	}

	rec, err := c.processor.Process(ctx, transcriptID, personID)
	if err != nil {
		return err
	}
	return enc.Encode(rec)
}
