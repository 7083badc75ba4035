package classifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

var (
	// ErrBatchFailed is recovered inside the job with placeholder rows.
	ErrBatchFailed     = errors.New("classification batch failed")
	ErrJobFailed       = errors.New("classification job failed")
	ErrJobNotFound     = errors.New("classification job not found")
	ErrJobExists       = errors.New("classification job already exists")
	ErrJobTerminal     = errors.New("classification job already finished")
	ErrEmptyTranscript = errors.New("transcript text is empty")
	ErrUnsegmentable   = errors.New("transcript could not be segmented into sentences")
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ClassifiedSentence is one transcript sentence labelled with a tracker.
type ClassifiedSentence struct {
	Text       string            `json:"text"`
	Tracker    taxonomy.Category `json:"tracker"`
	Confidence float64           `json:"confidence"`
	Timestamp  string            `json:"timestamp"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Reasoning  string            `json:"reasoning"`
	// Failed marks a placeholder row for a batch that exhausted its retries.
	Failed bool `json:"failed,omitempty"`
}

// CountFailed reports how many rows are placeholders.
func CountFailed(rows []ClassifiedSentence) int {
	n := 0
	for _, r := range rows {
		if r.Failed {
			n++
		}
	}
	return n
}

type Progress struct {
	CompletedBatches int     `json:"completedBatches"`
	TotalBatches     int     `json:"totalBatches"`
	Percentage       float64 `json:"percentage"`
}

// Job is a point-in-time snapshot of a classification job. Snapshots are
// copies; mutating one has no effect on the store.
type Job struct {
	ID             string               `json:"id"`
	Status         Status               `json:"status"`
	Progress       Progress             `json:"progress"`
	TotalSentences int                  `json:"totalSentences"`
	PartialResults []ClassifiedSentence `json:"partialResults"`
	FinalResult    []ClassifiedSentence `json:"finalResult"`
	Error          *string              `json:"error"`
	CreatedAt      time.Time            `json:"createdAt"`
	StartedAt      *time.Time           `json:"startedAt,omitempty"`
	CompletedAt    *time.Time           `json:"completedAt,omitempty"`
	// EstimatedTimeRemaining is in seconds and only set while running.
	EstimatedTimeRemaining *int `json:"estimatedTimeRemaining,omitempty"`
}

// JobRecord is the persisted job metadata. Batch results are stored
// separately, keyed by batch index.
type JobRecord struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	BatchSize      int        `json:"batchSize"`
	TotalBatches   int        `json:"totalBatches"`
	TotalSentences int        `json:"totalSentences"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// PendingJob is a non-terminal job together with the batches it has already
// committed.
type PendingJob struct {
	Record    JobRecord
	Committed map[int]bool
}

// JobStore persists jobs. The classifier is the single writer for any given
// job; readers may call Get concurrently and must never observe a partially
// applied batch.
type JobStore interface {
	Create(ctx context.Context, rec JobRecord) error
	Get(ctx context.Context, id string) (*Job, error)
	MarkRunning(ctx context.Context, id string) error
	// AppendBatch commits one batch atomically. Re-committing an index is a no-op.
	AppendBatch(ctx context.Context, id string, batch int, sentences []ClassifiedSentence) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, reason string) error
	ListIncomplete(ctx context.Context) ([]PendingJob, error)
}

// transition applies a status change to rec, enforcing the state machine:
// queued -> running -> completed | failed, and queued -> failed.
// Re-marking a running job as running is allowed so interrupted jobs can resume.
func (rec *JobRecord) transition(to Status, now time.Time) error {
	if rec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, rec.ID, rec.Status)
	}
	switch to {
	case StatusRunning:
		if rec.StartedAt == nil {
			rec.StartedAt = &now
		}
	case StatusCompleted:
		if rec.Status != StatusRunning {
			return fmt.Errorf("cannot complete job %s from %s", rec.ID, rec.Status)
		}
		rec.CompletedAt = &now
	case StatusFailed:
		rec.CompletedAt = &now
	default:
		return fmt.Errorf("invalid target status %q", to)
	}
	rec.Status = to
	return nil
}

// snapshot assembles a Job from its record and committed batches, restoring
// sentence order by batch index regardless of commit order.
func snapshot(rec JobRecord, batches map[int][]ClassifiedSentence) *Job {
	indexes := make([]int, 0, len(batches))
	for i := range batches {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	partial := []ClassifiedSentence{}
	for _, i := range indexes {
		partial = append(partial, batches[i]...)
	}

	job := &Job{
		ID:             rec.ID,
		Status:         rec.Status,
		TotalSentences: rec.TotalSentences,
		PartialResults: partial,
		CreatedAt:      rec.CreatedAt,
		StartedAt:      copyTime(rec.StartedAt),
		CompletedAt:    copyTime(rec.CompletedAt),
		Progress: Progress{
			CompletedBatches: len(batches),
			TotalBatches:     rec.TotalBatches,
		},
	}
	if rec.TotalBatches > 0 {
		job.Progress.Percentage = float64(len(batches)) / float64(rec.TotalBatches) * 100
	}
	if rec.Status == StatusCompleted {
		job.FinalResult = slices.Clone(partial)
	}
	if rec.Error != "" {
		msg := rec.Error
		job.Error = &msg
	}
	return job
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
