package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

// ErrNotFound is processor.ErrNotFound, so callers can match either.
var ErrNotFound = processor.ErrNotFound

// GetTranscript loads a transcript. Missing plain text or speaker utterances
// are returned as empty values; completeness is the caller's decision.
func (s *Store) GetTranscript(ctx context.Context, personID, transcriptID string) (*transcript.Transcript, error) {
	var (
		text       *string
		utterances []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT transcript, speaker_utterances
		FROM transcripts
		WHERE person_id = $1 AND id = $2`,
		personID, transcriptID,
	).Scan(&text, &utterances)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, personID, transcriptID)
	}
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}

	tr := &transcript.Transcript{ID: transcriptID, PersonID: personID}
	if text != nil {
		tr.Text = *text
	}
	if len(utterances) > 0 {
		if err := json.Unmarshal(utterances, &tr.Utterances); err != nil {
			return nil, fmt.Errorf("decode speaker utterances: %w", err)
		}
	}
	return tr, nil
}

// PutTranscript inserts or replaces a transcript.
func (s *Store) PutTranscript(ctx context.Context, tr *transcript.Transcript) error {
	utterances, err := json.Marshal(tr.Utterances)
	if err != nil {
		return fmt.Errorf("encode speaker utterances: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO transcripts (person_id, id, transcript, speaker_utterances)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (person_id, id) DO UPDATE SET
			transcript = EXCLUDED.transcript,
			speaker_utterances = EXCLUDED.speaker_utterances`,
		tr.PersonID, tr.ID, tr.Text, utterances,
	)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}
