package hermes

import "time"

const (
	// SubjectTranscriptStored is emitted upstream once a transcript and its
	// speaker segmentation are persisted.
	SubjectTranscriptStored = "transcripts.stored"

	SubjectInsightProcessed = "insights.processed"
	SubjectJobCompleted     = "insights.job.completed"
	SubjectJobFailed        = "insights.job.failed"

	QueueGroup = "insights"
)

// TranscriptStored is the payload of SubjectTranscriptStored.
type TranscriptStored struct {
	TranscriptID string `json:"transcript_id"`
	PersonID     string `json:"person_id"`
}

// InsightProcessed is published after an insight record is written.
type InsightProcessed struct {
	TranscriptID   string    `json:"transcript_id"`
	PersonID       string    `json:"person_id"`
	TotalSentences int       `json:"total_sentences"`
	ScoringMethod  string    `json:"scoring_method"`
	Partial        bool      `json:"partial"`
	CalculatedAt   time.Time `json:"calculated_at"`
}

// JobFinished is published when a classification job reaches a terminal state.
type JobFinished struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	TotalSentences int    `json:"total_sentences"`
	Error          string `json:"error,omitempty"`
}
