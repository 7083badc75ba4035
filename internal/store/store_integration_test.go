//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/extractor"
	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/scoring"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_TranscriptRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	personID := "it-person-" + uuid.New().String()[:8]

	tr := &transcript.Transcript{
		ID:       "tr-1",
		PersonID: personID,
		Text:     "Hello. Goodbye.",
		Utterances: []transcript.SpeakerUtterance{
			{Speaker: "Rep", Text: "Hello.", Timestamp: "00:01"},
		},
	}
	if err := s.PutTranscript(ctx, tr); err != nil {
		t.Fatalf("PutTranscript failed: %v", err)
	}

	got, err := s.GetTranscript(ctx, personID, "tr-1")
	if err != nil {
		t.Fatalf("GetTranscript failed: %v", err)
	}
	if got.Text != tr.Text || len(got.Utterances) != 1 || got.Utterances[0].Timestamp != "00:01" {
		t.Errorf("unexpected transcript %+v", got)
	}

	_, err = s.GetTranscript(ctx, personID, "nope")
	if !errors.Is(err, processor.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_UpsertInsightOverwrites(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	personID := "it-person-" + uuid.New().String()[:8]

	first := &processor.Record{
		TranscriptID:     "tr-1",
		PersonID:         personID,
		ExtractionResult: extractor.Result{taxonomy.Closing: {Found: true, Confidence: 80}},
		ClassifiedSentences: []classifier.ClassifiedSentence{
			{Text: "Shall we sign?", Tracker: taxonomy.Closing, Confidence: 0.9},
		},
		TrackerScores: map[taxonomy.Category]scoring.TrackerScore{
			taxonomy.Closing: {Category: taxonomy.Closing, Label: taxonomy.LabelStrongExecution, PhraseCount: 1},
		},
		ExtractionMethod: processor.ExtractionSinglePass,
		ScoringMethod:    scoring.MethodLLM,
		TotalSentences:   1,
		JobID:            "job-1",
		JobStatus:        classifier.StatusCompleted,
		CalculatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.UpsertInsight(ctx, first); err != nil {
		t.Fatalf("UpsertInsight failed: %v", err)
	}

	second := &processor.Record{
		TranscriptID:        "tr-1",
		PersonID:            personID,
		ClassifiedSentences: []classifier.ClassifiedSentence{},
		TrackerScores:       map[taxonomy.Category]scoring.TrackerScore{},
		ExtractionMethod:    processor.ExtractionClassificationOnly,
		ScoringMethod:       scoring.MethodRules,
		Partial:             true,
		ExtractionError:     "extraction failed",
		CalculatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.UpsertInsight(ctx, second); err != nil {
		t.Fatalf("second UpsertInsight failed: %v", err)
	}

	got, err := s.GetInsight(ctx, personID, "tr-1")
	if err != nil {
		t.Fatalf("GetInsight failed: %v", err)
	}
	if got.ExtractionResult != nil {
		t.Errorf("expected extraction to be cleared, got %+v", got.ExtractionResult)
	}
	if got.ScoringMethod != scoring.MethodRules || !got.Partial || got.JobID != "" {
		t.Errorf("record not fully replaced: %+v", got)
	}
	if got.ExtractionError != "extraction failed" {
		t.Errorf("expected extraction error, got %q", got.ExtractionError)
	}
}
