// Package backfill bulk-imports transcripts from disk and runs the insight
// pipeline over each one, resuming where a previous run stopped.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

type TranscriptWriter interface {
	PutTranscript(ctx context.Context, tr *transcript.Transcript) error
}

type Pipeline interface {
	Process(ctx context.Context, transcriptID, personID string) (*processor.Record, error)
}

type Config struct {
	Dir        string
	SingleFile string
	StatePath  string
	// DryRun parses and validates files without writing or processing.
	DryRun bool
	// SkipProcess imports transcripts without running the pipeline.
	SkipProcess bool
	// Pause is slept between transcripts to spread LLM load.
	Pause time.Duration
}

// Summary reports the totals of a single run.
type Summary struct {
	Files                int
	TranscriptsImported  int
	TranscriptsProcessed int
	PartialRecords       int
	Skipped              int
	Errors               int
}

type Runner struct {
	cfg      Config
	writer   TranscriptWriter
	pipeline Pipeline
	logger   *slog.Logger
}

func NewRunner(cfg Config, writer TranscriptWriter, pipeline Pipeline, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		writer:   writer,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Run imports and processes every file not already recorded in the state
// file. A failure on one transcript is recorded and the run moves on; the
// file is still marked processed so it is not retried automatically.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	files, err := r.discoverFiles()
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	var pending []string
	for _, f := range files {
		if !state.IsProcessed(f) {
			pending = append(pending, f)
		}
	}
	state.FilesRemaining = len(pending)
	r.logger.Info("files discovered", "total", len(files), "pending", len(pending), "dry_run", r.cfg.DryRun)

	sum := &Summary{}
	for _, path := range pending {
		if err := ctx.Err(); err != nil {
			r.logger.Info("backfill interrupted, saving state")
			r.save(state)
			return sum, err
		}

		transcripts, err := ParseFile(path)
		if err != nil {
			r.logger.Warn("failed to parse file", "path", path, "error", err)
			state.AddError(fmt.Sprintf("parse %s: %v", path, err))
			sum.Errors++
			r.finishFile(state, path)
			continue
		}

		for i := range transcripts {
			if err := r.handle(ctx, state, sum, &transcripts[i]); err != nil {
				r.save(state)
				return sum, err
			}
		}

		sum.Files++
		r.finishFile(state, path)
	}

	r.save(state)
	r.logger.Info("backfill complete",
		"files", sum.Files,
		"imported", sum.TranscriptsImported,
		"processed", sum.TranscriptsProcessed,
		"partial", sum.PartialRecords,
		"skipped", sum.Skipped,
		"errors", sum.Errors,
		"state_file", state.Path(),
	)
	return sum, nil
}

// handle returns an error only when the run should stop.
func (r *Runner) handle(ctx context.Context, state *State, sum *Summary, tr *transcript.Transcript) error {
	log := r.logger.With("transcript_id", tr.ID, "person_id", tr.PersonID)

	if !tr.Complete() {
		log.Warn("skipping transcript without text or speaker segmentation")
		sum.Skipped++
		return nil
	}
	if r.cfg.DryRun {
		sum.TranscriptsImported++
		return nil
	}

	if err := r.writer.PutTranscript(ctx, tr); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("import failed", "error", err)
		state.AddError(fmt.Sprintf("import %s/%s: %v", tr.PersonID, tr.ID, err))
		sum.Errors++
		return nil
	}
	sum.TranscriptsImported++
	state.TranscriptsImported++

	if r.cfg.SkipProcess {
		return nil
	}

	rec, err := r.pipeline.Process(ctx, tr.ID, tr.PersonID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.Error("processing failed", "error", err)
		state.AddError(fmt.Sprintf("process %s/%s: %v", tr.PersonID, tr.ID, err))
		sum.Errors++
		return nil
	}
	sum.TranscriptsProcessed++
	state.TranscriptsProcessed++
	if rec.Partial {
		sum.PartialRecords++
		state.PartialRecords++
	}
	log.Info("transcript processed", "sentences", rec.TotalSentences, "partial", rec.Partial)

	if r.cfg.Pause > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.Pause):
		}
	}
	return nil
}

func (r *Runner) finishFile(state *State, path string) {
	state.MarkProcessed(path)
	state.FilesRemaining--
	r.save(state)
}

func (r *Runner) save(state *State) {
	if r.cfg.DryRun {
		return
	}
	if err := state.Save(); err != nil {
		r.logger.Warn("failed to save backfill state", "path", state.Path(), "error", err)
	}
}

func (r *Runner) discoverFiles() ([]string, error) {
	if r.cfg.SingleFile != "" {
		return []string{r.cfg.SingleFile}, nil
	}
	if r.cfg.Dir == "" {
		return nil, errors.New("no directory or file given")
	}

	var files []string
	err := filepath.WalkDir(r.cfg.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".jsonl":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
