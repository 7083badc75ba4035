package backfill

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

type fakeWriter struct {
	put  []string
	fail map[string]bool
}

func (f *fakeWriter) PutTranscript(_ context.Context, tr *transcript.Transcript) error {
	if f.fail[tr.ID] {
		return errors.New("insert failed")
	}
	f.put = append(f.put, tr.ID)
	return nil
}

type fakePipeline struct {
	processed []string
	partial   map[string]bool
	fail      map[string]bool
}

func (f *fakePipeline) Process(_ context.Context, transcriptID, personID string) (*processor.Record, error) {
	if f.fail[transcriptID] {
		return nil, processor.ErrNoSignal
	}
	f.processed = append(f.processed, transcriptID)
	return &processor.Record{TranscriptID: transcriptID, PersonID: personID, Partial: f.partial[transcriptID]}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "a.json", oneTranscript)
	writeFile(t, dir, "b.jsonl",
		`{"id":"t-2","personId":"p-2","transcript":"Any questions on pricing?","speakerUtterances":[{"speaker":"Rep","text":"Any questions on pricing?","timestamp":"00:10"}]}`+"\n"+
			`{"id":"t-3","personId":"p-2","transcript":"","speakerUtterances":[]}`+"\n")
	writeFile(t, dir, "notes.txt", "ignored")
	return dir
}

func TestRunner_ImportsAndProcesses(t *testing.T) {
	dir := seedDir(t)
	statePath := filepath.Join(t.TempDir(), "state.json")
	w := &fakeWriter{}
	p := &fakePipeline{partial: map[string]bool{"t-2": true}}

	r := NewRunner(Config{Dir: dir, StatePath: statePath}, w, p, discardLogger())
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Files != 2 {
		t.Errorf("files = %d, want 2", sum.Files)
	}
	if sum.TranscriptsImported != 2 || sum.TranscriptsProcessed != 2 {
		t.Errorf("unexpected counts: %+v", sum)
	}
	if sum.Skipped != 1 {
		t.Errorf("incomplete transcript should be skipped, got %d", sum.Skipped)
	}
	if sum.PartialRecords != 1 {
		t.Errorf("partial = %d, want 1", sum.PartialRecords)
	}
	if len(p.processed) != 2 || p.processed[0] != "t-1" || p.processed[1] != "t-2" {
		t.Errorf("processing order = %v", p.processed)
	}

	state, err := LoadState(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.FilesProcessed) != 2 {
		t.Errorf("state should record both files, got %v", state.FilesProcessed)
	}
}

func TestRunner_ResumesFromState(t *testing.T) {
	dir := seedDir(t)
	statePath := filepath.Join(t.TempDir(), "state.json")

	first := &fakePipeline{}
	if _, err := NewRunner(Config{Dir: dir, StatePath: statePath}, &fakeWriter{}, first, discardLogger()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := &fakePipeline{}
	sum, err := NewRunner(Config{Dir: dir, StatePath: statePath}, &fakeWriter{}, second, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Files != 0 || len(second.processed) != 0 {
		t.Errorf("second run should skip processed files, got %+v processed=%v", sum, second.processed)
	}
}

func TestRunner_RecordsFailuresAndContinues(t *testing.T) {
	dir := seedDir(t)
	writeFile(t, dir, "c.json", `{"transcript":"no ids"}`)
	statePath := filepath.Join(t.TempDir(), "state.json")
	w := &fakeWriter{fail: map[string]bool{"t-1": true}}
	p := &fakePipeline{fail: map[string]bool{"t-2": true}}

	sum, err := NewRunner(Config{Dir: dir, StatePath: statePath}, w, p, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Errors != 3 {
		t.Errorf("errors = %d, want 3 (import, process, parse)", sum.Errors)
	}
	if len(p.processed) != 0 {
		t.Errorf("nothing should have processed successfully, got %v", p.processed)
	}

	state, err := LoadState(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Errors) != 3 {
		t.Errorf("state errors = %v", state.Errors)
	}
}

func TestRunner_DryRun(t *testing.T) {
	dir := seedDir(t)
	statePath := filepath.Join(t.TempDir(), "state.json")
	w := &fakeWriter{}
	p := &fakePipeline{}

	sum, err := NewRunner(Config{Dir: dir, StatePath: statePath, DryRun: true}, w, p, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(w.put) != 0 || len(p.processed) != 0 {
		t.Errorf("dry run must not write or process: put=%v processed=%v", w.put, p.processed)
	}
	if sum.TranscriptsImported != 2 {
		t.Errorf("dry run should count valid transcripts, got %d", sum.TranscriptsImported)
	}
}

func TestRunner_SkipProcess(t *testing.T) {
	dir := seedDir(t)
	w := &fakeWriter{}
	p := &fakePipeline{}

	cfg := Config{Dir: dir, StatePath: filepath.Join(t.TempDir(), "state.json"), SkipProcess: true}
	if _, err := NewRunner(cfg, w, p, discardLogger()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(w.put) != 2 || len(p.processed) != 0 {
		t.Errorf("expected import only: put=%v processed=%v", w.put, p.processed)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	dir := seedDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(Config{Dir: dir, StatePath: filepath.Join(t.TempDir(), "state.json")}, &fakeWriter{}, &fakePipeline{}, discardLogger()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_NoInput(t *testing.T) {
	_, err := NewRunner(Config{StatePath: filepath.Join(t.TempDir(), "state.json")}, &fakeWriter{}, &fakePipeline{}, discardLogger()).Run(context.Background())
	if err == nil {
		t.Error("expected error without dir or file")
	}
}
