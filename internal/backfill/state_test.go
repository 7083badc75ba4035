package backfill

import (
	"os"
	"path/filepath"
	"testing"
)

func TestState_SaveAndLoad(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")

	s, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("LoadState on missing file: %v", err)
	}
	if s.StartedAt.IsZero() {
		t.Error("fresh state should record a start time")
	}

	s.MarkProcessed("a.json")
	s.MarkProcessed("b.jsonl")
	s.TranscriptsImported = 5
	s.PartialRecords = 1
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.IsProcessed("a.json") || !reloaded.IsProcessed("b.jsonl") {
		t.Errorf("processed files not persisted: %v", reloaded.FilesProcessed)
	}
	if reloaded.TranscriptsImported != 5 || reloaded.PartialRecords != 1 {
		t.Errorf("counters not persisted: %+v", reloaded)
	}
	if reloaded.Path() != statePath {
		t.Errorf("Path() = %q, want %q", reloaded.Path(), statePath)
	}
}

func TestState_LoadCorrupt(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadState(statePath); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestState_IsProcessed(t *testing.T) {
	s := &State{}

	if s.IsProcessed("file1.json") {
		t.Error("file1 should not be processed yet")
	}

	s.MarkProcessed("file1.json")

	if !s.IsProcessed("file1.json") {
		t.Error("file1 should be processed")
	}
	if s.IsProcessed("file2.json") {
		t.Error("file2 should not be processed")
	}
}

func TestState_AddError(t *testing.T) {
	s := &State{}
	s.AddError("something went wrong")
	s.AddError("another error")

	if len(s.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(s.Errors))
	}
	if s.Errors[0] != "something went wrong" {
		t.Errorf("error[0] = %q", s.Errors[0])
	}
}

func TestState_SaveCreatesDirectories(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "nested", "dir", "state.json")

	s := &State{path: statePath}
	if err := s.Save(); err != nil {
		t.Fatalf("Save with nested dir failed: %v", err)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state file not created in nested dir: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	got := expandHome("~/test/path")
	want := filepath.Join(home, "test/path")
	if got != want {
		t.Errorf("expandHome(~/test/path) = %q, want %q", got, want)
	}

	// Non-tilde paths should pass through.
	got = expandHome("/absolute/path")
	if got != "/absolute/path" {
		t.Errorf("expandHome(/absolute/path) = %q", got)
	}
}
