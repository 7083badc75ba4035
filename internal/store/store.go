// Package store persists transcripts and insight records in Postgres.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	person_id          TEXT        NOT NULL,
	id                 TEXT        NOT NULL,
	transcript         TEXT,
	speaker_utterances JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (person_id, id)
);

CREATE TABLE IF NOT EXISTS insights (
	person_id            TEXT        NOT NULL,
	transcript_id        TEXT        NOT NULL,
	extraction_result    JSONB,
	classified_sentences JSONB       NOT NULL,
	tracker_scores       JSONB       NOT NULL,
	extraction_method    TEXT        NOT NULL,
	scoring_method       TEXT        NOT NULL,
	total_sentences      INTEGER     NOT NULL,
	job_id               TEXT,
	job_status           TEXT,
	partial              BOOLEAN     NOT NULL DEFAULT false,
	extraction_error     TEXT,
	calculated_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (person_id, transcript_id)
);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
