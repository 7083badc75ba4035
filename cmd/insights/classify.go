package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
)

var classifyJobID string

var classifyCmd = &cobra.Command{
	Use:   "classify <file|->",
	Short: "Classify every sentence of a plain-text transcript",
	Long: `Submits a classification job for a local transcript file (or stdin
when the argument is "-"), prints progress to stderr and the finished job as
JSON to stdout.

Examples:
  insights classify call.txt
  cat call.txt | insights classify - --job-id call-42`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyJobID, "job-id", "", "job id to use instead of a generated one")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	text, err := readInput(args[0])
	if err != nil {
		return err
	}

	c, err := buildClassifier(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	sub, err := c.classifier.Submit(ctx, text, classifyJobID)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Fprintf(os.Stderr, "job %s submitted, estimated %ds\n", sub.JobID, sub.EstimatedTime)

	job, err := follow(ctx, c.classifier, sub.JobID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		return err
	}
	if job.Status == classifier.StatusFailed {
		return fmt.Errorf("%w: %s", classifier.ErrJobFailed, derefString(job.Error))
	}
	return nil
}

func follow(ctx context.Context, cl *classifier.Classifier, jobID string) (*classifier.Job, error) {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastDone := -1
	for {
		job, err := cl.Status(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("job status: %w", err)
		}
		if job.Progress.CompletedBatches != lastDone {
			lastDone = job.Progress.CompletedBatches
			fmt.Fprintf(os.Stderr, "%s: %d/%d batches (%.0f%%)\n",
				job.Status, job.Progress.CompletedBatches, job.Progress.TotalBatches, job.Progress.Percentage)
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func readInput(arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
