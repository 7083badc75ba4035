package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/scoring"
)

// UpsertInsight writes rec, replacing any previous record for the same
// person and transcript in full.
func (s *Store) UpsertInsight(ctx context.Context, rec *processor.Record) error {
	var extraction []byte
	if rec.ExtractionResult != nil {
		var err error
		if extraction, err = json.Marshal(rec.ExtractionResult); err != nil {
			return fmt.Errorf("encode extraction: %w", err)
		}
	}
	sentences, err := json.Marshal(rec.ClassifiedSentences)
	if err != nil {
		return fmt.Errorf("encode sentences: %w", err)
	}
	scores, err := json.Marshal(rec.TrackerScores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO insights (
			person_id, transcript_id, extraction_result, classified_sentences, tracker_scores,
			extraction_method, scoring_method, total_sentences, job_id, job_status,
			partial, extraction_error, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, NULLIF($12, ''), $13)
		ON CONFLICT (person_id, transcript_id) DO UPDATE SET
			extraction_result    = EXCLUDED.extraction_result,
			classified_sentences = EXCLUDED.classified_sentences,
			tracker_scores       = EXCLUDED.tracker_scores,
			extraction_method    = EXCLUDED.extraction_method,
			scoring_method       = EXCLUDED.scoring_method,
			total_sentences      = EXCLUDED.total_sentences,
			job_id               = EXCLUDED.job_id,
			job_status           = EXCLUDED.job_status,
			partial              = EXCLUDED.partial,
			extraction_error     = EXCLUDED.extraction_error,
			calculated_at        = EXCLUDED.calculated_at`,
		rec.PersonID, rec.TranscriptID, extraction, sentences, scores,
		rec.ExtractionMethod, string(rec.ScoringMethod), rec.TotalSentences, rec.JobID, string(rec.JobStatus),
		rec.Partial, rec.ExtractionError, rec.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert insight: %w", err)
	}
	return nil
}

// GetInsight returns the stored record for a transcript.
func (s *Store) GetInsight(ctx context.Context, personID, transcriptID string) (*processor.Record, error) {
	var (
		rec                          processor.Record
		extraction, sentences, score []byte
		scoringMethod                string
		jobID, jobStatus, extErr     *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT person_id, transcript_id, extraction_result, classified_sentences, tracker_scores,
			extraction_method, scoring_method, total_sentences, job_id, job_status,
			partial, extraction_error, calculated_at
		FROM insights
		WHERE person_id = $1 AND transcript_id = $2`,
		personID, transcriptID,
	).Scan(
		&rec.PersonID, &rec.TranscriptID, &extraction, &sentences, &score,
		&rec.ExtractionMethod, &scoringMethod, &rec.TotalSentences, &jobID, &jobStatus,
		&rec.Partial, &extErr, &rec.CalculatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: insight %s/%s", ErrNotFound, personID, transcriptID)
	}
	if err != nil {
		return nil, fmt.Errorf("query insight: %w", err)
	}

	if len(extraction) > 0 {
		if err := json.Unmarshal(extraction, &rec.ExtractionResult); err != nil {
			return nil, fmt.Errorf("decode extraction: %w", err)
		}
	}
	if err := json.Unmarshal(sentences, &rec.ClassifiedSentences); err != nil {
		return nil, fmt.Errorf("decode sentences: %w", err)
	}
	if err := json.Unmarshal(score, &rec.TrackerScores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	rec.ScoringMethod = scoring.Method(scoringMethod)
	if jobID != nil {
		rec.JobID = *jobID
	}
	if jobStatus != nil {
		rec.JobStatus = classifier.Status(*jobStatus)
	}
	if extErr != nil {
		rec.ExtractionError = *extErr
	}
	return &rec, nil
}
