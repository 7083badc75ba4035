// Package processor orchestrates extraction, classification and scoring of a
// stored transcript into a single insight record.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/extractor"
	"github.com/MikeSquared-Agency/insights/internal/hermes"
	"github.com/MikeSquared-Agency/insights/internal/scoring"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

var (
	// ErrNotFound means the transcript is missing or lacks either its text or
	// its speaker segmentation.
	ErrNotFound = errors.New("transcript not found")
	// ErrTimeout is logged when polling gives up; the run continues with
	// partial results.
	ErrTimeout = errors.New("classification did not finish in time")
	// ErrNoSignal means neither extraction nor classification produced anything.
	ErrNoSignal = errors.New("extraction and classification both failed")
)

// TranscriptStore loads transcripts. Implementations return an error wrapping
// ErrNotFound when the transcript does not exist.
type TranscriptStore interface {
	GetTranscript(ctx context.Context, personID, transcriptID string) (*transcript.Transcript, error)
}

type InsightStore interface {
	UpsertInsight(ctx context.Context, rec *Record) error
}

type PhraseExtractor interface {
	Extract(ctx context.Context, text string, utterances []transcript.SpeakerUtterance) (extractor.Result, error)
}

type JobRunner interface {
	Submit(ctx context.Context, text, jobID string) (*classifier.Submission, error)
	Status(ctx context.Context, jobID string) (*classifier.Job, error)
}

type Scorer interface {
	Score(ctx context.Context, sentences []classifier.ClassifiedSentence) *scoring.Scorecard
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier is told about every stored record, e.g. to post a scorecard.
type Notifier interface {
	Notify(ctx context.Context, rec *Record) error
}

type Config struct {
	PollInterval time.Duration
	JobTimeout   time.Duration
}

type Processor struct {
	transcripts TranscriptStore
	insights    InsightStore
	extractor   PhraseExtractor
	jobs        JobRunner
	scorer      Scorer
	publisher   Publisher
	notifier    Notifier
	cfg         Config
	logger      *slog.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

func New(transcripts TranscriptStore, insights InsightStore, ext PhraseExtractor, jobs JobRunner, scorer Scorer, cfg Config, logger *slog.Logger) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	return &Processor{
		transcripts: transcripts,
		insights:    insights,
		extractor:   ext,
		jobs:        jobs,
		scorer:      scorer,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// SetPublisher enables insights.processed events.
func (p *Processor) SetPublisher(pub Publisher) {
	p.publisher = pub
}

func (p *Processor) SetNotifier(n Notifier) {
	p.notifier = n
}

// Extract runs phrase extraction alone for a stored transcript.
func (p *Processor) Extract(ctx context.Context, transcriptID, personID string) (extractor.Result, error) {
	tr, err := p.load(ctx, personID, transcriptID)
	if err != nil {
		return nil, err
	}
	return p.extractor.Extract(ctx, tr.Text, tr.Utterances)
}

// Process recomputes and overwrites the insight record for a transcript.
// Extraction failure, classification failure and polling timeout all degrade
// to a partial record; only a missing transcript, a run with no signal at all
// and a failed write are returned as errors.
func (p *Processor) Process(ctx context.Context, transcriptID, personID string) (*Record, error) {
	log := p.logger.With("transcript_id", transcriptID, "person_id", personID)

	tr, err := p.load(ctx, personID, transcriptID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		TranscriptID:     transcriptID,
		PersonID:         personID,
		ExtractionMethod: ExtractionClassificationOnly,
	}

	extraction, extErr := p.extractor.Extract(ctx, tr.Text, tr.Utterances)
	if extErr != nil {
		log.Warn("phrase extraction failed, continuing with classification", "error", extErr)
		rec.ExtractionError = extErr.Error()
	} else {
		rec.ExtractionResult = extraction
		rec.ExtractionMethod = ExtractionSinglePass
	}

	sentences, job, err := p.classify(ctx, log, tr.Text)
	if err != nil {
		// Caller went away; nothing has been written yet.
		return nil, err
	}
	if job != nil {
		rec.JobID = job.ID
		rec.JobStatus = job.Status
	}
	failed := classifier.CountFailed(sentences)
	rec.Partial = job == nil || job.Status != classifier.StatusCompleted || failed > 0

	// Placeholder rows carry no classification, so a transcript whose rows
	// are all placeholders has no signal unless extraction succeeded.
	if extErr != nil && failed == len(sentences) {
		return nil, fmt.Errorf("%w: %s", ErrNoSignal, transcriptID)
	}
	if failed > 0 {
		log.Warn("classification incomplete", "failed_sentences", failed, "sentences", len(sentences))
	}

	card := p.scorer.Score(ctx, sentences)

	rec.ClassifiedSentences = sentences
	rec.TrackerScores = card.Scores
	rec.ScoringMethod = card.Method
	rec.TotalSentences = len(sentences)
	rec.CalculatedAt = p.now().UTC()

	if err := p.insights.UpsertInsight(ctx, rec); err != nil {
		return nil, fmt.Errorf("store insight: %w", err)
	}

	log.Info("insight processed",
		"sentences", rec.TotalSentences,
		"scoring_method", rec.ScoringMethod,
		"extraction_method", rec.ExtractionMethod,
		"partial", rec.Partial,
	)

	if p.publisher != nil {
		if err := p.publisher.Publish(hermes.SubjectInsightProcessed, hermes.InsightProcessed{
			TranscriptID:   transcriptID,
			PersonID:       personID,
			TotalSentences: rec.TotalSentences,
			ScoringMethod:  string(rec.ScoringMethod),
			Partial:        rec.Partial,
			CalculatedAt:   rec.CalculatedAt,
		}); err != nil {
			log.Warn("failed to publish insight event", "error", err)
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, rec); err != nil {
			log.Warn("failed to send insight notification", "error", err)
		}
	}

	return rec, nil
}

func (p *Processor) load(ctx context.Context, personID, transcriptID string) (*transcript.Transcript, error) {
	tr, err := p.transcripts.GetTranscript(ctx, personID, transcriptID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if tr == nil || !tr.Complete() {
		return nil, fmt.Errorf("%w: %s is missing text or speaker segmentation", ErrNotFound, transcriptID)
	}
	return tr, nil
}

// classify submits a job and waits for it. The returned job is the last
// snapshot observed; nil means the job could not be submitted at all.
func (p *Processor) classify(ctx context.Context, log *slog.Logger, text string) ([]classifier.ClassifiedSentence, *classifier.Job, error) {
	sub, err := p.jobs.Submit(ctx, text, uuid.NewString())
	if err != nil {
		log.Error("classification job submission failed", "error", err)
		return nil, nil, nil
	}
	log = log.With("job_id", sub.JobID)
	log.Info("classification job submitted", "estimated_seconds", sub.EstimatedTime)

	job, err := p.wait(ctx, log, sub.JobID)
	if err != nil && !errors.Is(err, ErrTimeout) {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, nil
	}

	switch {
	case job.Status == classifier.StatusCompleted:
		return job.FinalResult, job, nil
	case errors.Is(err, ErrTimeout):
		log.Warn("classification timed out, using partial results",
			"error", err,
			"completed_batches", job.Progress.CompletedBatches,
			"total_batches", job.Progress.TotalBatches,
		)
	case job.Status == classifier.StatusFailed:
		log.Warn("classification job failed, using partial results", "error", deref(job.Error))
	}
	return job.PartialResults, job, nil
}

// wait polls the job until it is terminal or JobTimeout elapses. On timeout it
// returns the snapshot taken at the deadline together with ErrTimeout. The job
// itself keeps running.
func (p *Processor) wait(ctx context.Context, log *slog.Logger, jobID string) (*classifier.Job, error) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.cfg.JobTimeout)
	defer deadline.Stop()

	var last *classifier.Job
	// poll reports whether waiting is over. Transient status errors keep
	// the last good snapshot.
	poll := func() bool {
		job, err := p.jobs.Status(ctx, jobID)
		if err != nil {
			if errors.Is(err, classifier.ErrJobNotFound) {
				return true
			}
			log.Warn("job status poll failed", "error", err)
			return false
		}
		last = job
		return job.Status.Terminal()
	}

	for {
		if poll() {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			poll()
			if last != nil && last.Status.Terminal() {
				return last, nil
			}
			return last, fmt.Errorf("%w after %s", ErrTimeout, p.cfg.JobTimeout)
		case <-ticker.C:
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
