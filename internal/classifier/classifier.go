// Package classifier runs resumable, progress-reporting jobs that label every
// sentence of a transcript with a tracker.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/insights/internal/anthropic"
	"github.com/MikeSquared-Agency/insights/internal/hermes"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

const maxTokens = 4096

// Publisher receives job lifecycle events. *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

type Config struct {
	BatchSize   int
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
	// BatchEstimate is the expected latency of one batch before any has
	// been observed.
	BatchEstimate time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = transcript.DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.BatchEstimate <= 0 {
		c.BatchEstimate = 8 * time.Second
	}
	return c
}

// Submission is returned when a job is accepted.
type Submission struct {
	JobID string `json:"jobId"`
	// EstimatedTime is the expected run time in seconds.
	EstimatedTime int `json:"estimatedTime"`
}

type Classifier struct {
	store     JobStore
	llm       anthropic.Completer
	taxonomy  *taxonomy.Taxonomy
	cfg       Config
	logger    *slog.Logger
	publisher Publisher

	wg  sync.WaitGroup
	now func() time.Time
}

func New(store JobStore, llm anthropic.Completer, tax *taxonomy.Taxonomy, cfg Config, logger *slog.Logger) *Classifier {
	return &Classifier{
		store:    store,
		llm:      llm,
		taxonomy: tax,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetPublisher enables job lifecycle events.
func (c *Classifier) SetPublisher(p Publisher) {
	c.publisher = p
}

// Submit segments text, records a queued job and starts classifying it in the
// background. The job outlives ctx cancellation. An empty jobID is replaced
// with a generated one.
func (c *Classifier) Submit(ctx context.Context, text, jobID string) (*Submission, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTranscript
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	sentences := transcript.SplitSentences(text)
	batches := transcript.MakeBatches(sentences, c.cfg.BatchSize)

	rec := JobRecord{
		ID:             jobID,
		Text:           text,
		BatchSize:      c.cfg.BatchSize,
		TotalBatches:   len(batches),
		TotalSentences: len(sentences),
		Status:         StatusQueued,
		CreatedAt:      c.now(),
	}
	if err := c.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	log := c.logger.With("job_id", jobID)
	log.Info("classification job queued", "sentences", len(sentences), "batches", len(batches))

	if len(sentences) == 0 {
		c.fail(ctx, log, jobID, ErrUnsegmentable)
		return &Submission{JobID: jobID}, nil
	}

	c.start(ctx, rec, batches, nil)

	return &Submission{JobID: jobID, EstimatedTime: c.estimate(len(batches))}, nil
}

// Status returns a snapshot of the job with an estimate of the remaining time
// while it is running.
func (c *Classifier) Status(ctx context.Context, jobID string) (*Job, error) {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == StatusRunning || job.Status == StatusQueued {
		eta := c.remaining(job)
		job.EstimatedTimeRemaining = &eta
	}
	return job, nil
}

// ResumeIncomplete restarts every non-terminal job in the store, classifying
// only the batches that were never committed.
func (c *Classifier) ResumeIncomplete(ctx context.Context) (int, error) {
	pending, err := c.store.ListIncomplete(ctx)
	if err != nil {
		return 0, fmt.Errorf("list incomplete jobs: %w", err)
	}
	if len(pending) == 0 {
		c.logger.Info("no incomplete classification jobs to resume")
		return 0, nil
	}

	resumed := 0
	for _, p := range pending {
		rec := p.Record
		log := c.logger.With("job_id", rec.ID)

		batches := transcript.MakeBatches(transcript.SplitSentences(rec.Text), rec.BatchSize)
		if len(batches) != rec.TotalBatches {
			c.fail(ctx, log, rec.ID, fmt.Errorf("%w: segmentation changed since submission", ErrJobFailed))
			continue
		}

		log.Info("resuming classification job",
			"committed", len(p.Committed),
			"total", rec.TotalBatches,
		)
		c.start(ctx, rec, batches, p.Committed)
		resumed++
	}
	return resumed, nil
}

// Wait blocks until every background job started by this classifier returns.
func (c *Classifier) Wait() {
	c.wg.Wait()
}

func (c *Classifier) start(ctx context.Context, rec JobRecord, batches []transcript.Batch, committed map[int]bool) {
	runCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx, rec, batches, committed)
	}()
}

func (c *Classifier) run(ctx context.Context, rec JobRecord, batches []transcript.Batch, committed map[int]bool) {
	log := c.logger.With("job_id", rec.ID)

	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, log, rec.ID, fmt.Errorf("%w: panic: %v", ErrJobFailed, r))
		}
	}()

	if err := c.store.MarkRunning(ctx, rec.ID); err != nil {
		log.Error("failed to mark job running", "error", err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)

	for _, b := range batches {
		if committed[b.Index] {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("batch %d panicked: %v", b.Index, r)
				}
			}()
			sentences := c.classifyBatch(ctx, log, b)
			if err := c.commit(ctx, log, rec.ID, b.Index, sentences); err != nil {
				return fmt.Errorf("commit batch %d: %w", b.Index, err)
			}
			log.Debug("batch committed", "batch", b.Index, "sentences", len(sentences))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.fail(ctx, log, rec.ID, fmt.Errorf("%w: %w", ErrJobFailed, err))
		return
	}

	if err := c.store.Complete(ctx, rec.ID); err != nil {
		log.Error("failed to complete job", "error", err)
		return
	}
	log.Info("classification job completed", "sentences", rec.TotalSentences)
	c.publish(log, hermes.SubjectJobCompleted, hermes.JobFinished{
		JobID:          rec.ID,
		Status:         string(StatusCompleted),
		TotalSentences: rec.TotalSentences,
	})
}

// classifyBatch never fails: a batch that exhausts its attempts is recorded
// as placeholder rows so the rest of the job can proceed.
func (c *Classifier) classifyBatch(ctx context.Context, log *slog.Logger, b transcript.Batch) []ClassifiedSentence {
	var (
		result  []ClassifiedSentence
		attempt int
	)
	op := func() error {
		attempt++
		out, err := c.callBatch(ctx, b)
		if err != nil {
			log.Warn("batch classification attempt failed",
				"batch", b.Index,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		result = out
		return nil
	}

	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		log.Error("batch classification gave up, recording placeholders",
			"batch", b.Index,
			"attempts", attempt,
			"error", err,
		)
		return placeholders(b, attempt, err)
	}
	return result
}

// commit stores a classified batch, retrying transient store errors with the
// batch retry policy. A job that is gone or already finished is not retried.
func (c *Classifier) commit(ctx context.Context, log *slog.Logger, jobID string, batch int, sentences []ClassifiedSentence) error {
	attempt := 0
	op := func() error {
		attempt++
		err := c.store.AppendBatch(ctx, jobID, batch, sentences)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrJobTerminal) || errors.Is(err, ErrJobNotFound) {
			return backoff.Permanent(err)
		}
		log.Warn("batch commit attempt failed", "batch", batch, "attempt", attempt, "error", err)
		return err
	}
	return backoff.Retry(op, c.retryPolicy(ctx))
}

func (c *Classifier) retryPolicy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)
}

func (c *Classifier) callBatch(ctx context.Context, b transcript.Batch) ([]ClassifiedSentence, error) {
	raw, err := c.llm.Complete(ctx, systemPrompt, anthropic.UserMessage(buildBatchPrompt(c.taxonomy, b)), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}

	var resp llmBatchResponse
	if err := anthropic.DecodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	if len(resp.Classifications) == 0 {
		return nil, fmt.Errorf("%w: %w: no classifications", ErrBatchFailed, anthropic.ErrMalformedResponse)
	}

	byIndex := make(map[int]llmClassification, len(resp.Classifications))
	for _, cl := range resp.Classifications {
		if _, dup := byIndex[cl.Index]; !dup {
			byIndex[cl.Index] = cl
		}
	}
	// Sentences are numbered from 1; accept a zero-based reply too.
	offset := 1
	if _, ok := byIndex[0]; ok {
		if _, last := byIndex[len(b.Sentences)]; !last {
			offset = 0
		}
	}

	// A truncated reply is retried like any other failure.
	var missing []int
	for i := range b.Sentences {
		if _, ok := byIndex[i+offset]; !ok {
			missing = append(missing, i+1)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: reply covered %d of %d sentences, missing %v",
			ErrBatchFailed, len(b.Sentences)-len(missing), len(b.Sentences), missing)
	}

	out := make([]ClassifiedSentence, len(b.Sentences))
	for i, s := range b.Sentences {
		row := ClassifiedSentence{
			Text:      s.Text,
			Tracker:   taxonomy.None,
			Timestamp: transcript.EstimateTimestamp(s.WordOffset),
			Start:     s.Start,
			End:       s.End,
		}

		cl := byIndex[i+offset]

		if cat, ok := c.taxonomy.Normalize(cl.Tracker); ok {
			row.Tracker = cat
		}
		if cl.Confidence != nil && !math.IsNaN(*cl.Confidence) {
			row.Confidence = math.Min(1, math.Max(0, *cl.Confidence))
		}
		if _, err := transcript.ParseTimestamp(cl.Timestamp); err == nil {
			row.Timestamp = cl.Timestamp
		}
		row.Reasoning = cl.Reasoning
		out[i] = row
	}
	return out, nil
}

func placeholders(b transcript.Batch, attempts int, cause error) []ClassifiedSentence {
	out := make([]ClassifiedSentence, len(b.Sentences))
	for i, s := range b.Sentences {
		out[i] = ClassifiedSentence{
			Text:       s.Text,
			Tracker:    taxonomy.None,
			Confidence: 0,
			Timestamp:  transcript.EstimateTimestamp(s.WordOffset),
			Start:      s.Start,
			End:        s.End,
			Reasoning:  fmt.Sprintf("classification failed after %d attempts: %v", attempts, cause),
			Failed:     true,
		}
	}
	return out
}

func (c *Classifier) fail(ctx context.Context, log *slog.Logger, jobID string, cause error) {
	if err := c.store.Fail(ctx, jobID, cause.Error()); err != nil {
		if !errors.Is(err, ErrJobTerminal) {
			log.Error("failed to record job failure", "error", err, "cause", cause)
		}
		return
	}
	log.Error("classification job failed", "error", cause)
	c.publish(log, hermes.SubjectJobFailed, hermes.JobFinished{
		JobID:  jobID,
		Status: string(StatusFailed),
		Error:  cause.Error(),
	})
}

func (c *Classifier) publish(log *slog.Logger, subject string, evt any) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(subject, evt); err != nil {
		log.Warn("failed to publish job event", "subject", subject, "error", err)
	}
}

// estimate is the expected wall-clock seconds for n batches at the
// configured concurrency.
func (c *Classifier) estimate(n int) int {
	waves := (n + c.cfg.Concurrency - 1) / c.cfg.Concurrency
	return int(math.Ceil((time.Duration(waves) * c.cfg.BatchEstimate).Seconds()))
}

// remaining extrapolates from observed throughput once at least one batch has
// committed, and from the configured estimate before that.
func (c *Classifier) remaining(job *Job) int {
	left := job.Progress.TotalBatches - job.Progress.CompletedBatches
	if left <= 0 {
		return 0
	}
	if job.Progress.CompletedBatches == 0 || job.StartedAt == nil {
		return c.estimate(left)
	}
	perBatch := c.now().Sub(*job.StartedAt) / time.Duration(job.Progress.CompletedBatches)
	return int(math.Ceil((perBatch * time.Duration(left)).Seconds()))
}
