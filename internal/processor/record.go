package processor

import (
	"time"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/extractor"
	"github.com/MikeSquared-Agency/insights/internal/scoring"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

const (
	ExtractionSinglePass         = "single_pass_llm"
	ExtractionClassificationOnly = "classification_only"
)

// Record is the consolidated insight for one (person, transcript) pair. A new
// run replaces the previous record entirely.
type Record struct {
	TranscriptID        string                                     `json:"transcriptId"`
	PersonID            string                                     `json:"personId"`
	ExtractionResult    extractor.Result                           `json:"extractionResult,omitempty"`
	ClassifiedSentences []classifier.ClassifiedSentence            `json:"classifiedSentences"`
	TrackerScores       map[taxonomy.Category]scoring.TrackerScore `json:"trackerScores"`
	ExtractionMethod    string                                     `json:"extractionMethod"`
	ScoringMethod       scoring.Method                             `json:"scoringMethod"`
	TotalSentences      int                                        `json:"totalSentences"`
	JobID               string                                     `json:"jobId,omitempty"`
	JobStatus           classifier.Status                          `json:"jobStatus,omitempty"`
	// Partial is set when classification did not complete: the job failed,
	// timed out or could not be submitted.
	Partial         bool      `json:"partial"`
	ExtractionError string    `json:"extractionError,omitempty"`
	CalculatedAt    time.Time `json:"calculatedAt"`
}
