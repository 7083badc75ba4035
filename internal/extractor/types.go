package extractor

import "github.com/MikeSquared-Agency/insights/internal/taxonomy"

// DetectedPhrase is a single tracker phrase located in a transcript.
type DetectedPhrase struct {
	Phrase     string  `json:"phrase"`
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	// EntryIndex is the speaker utterance the phrase was attributed to, or -1.
	EntryIndex int `json:"entryIndex"`
}

// CategoryResult is the extraction outcome for one tracker.
type CategoryResult struct {
	DetectedPhrases []DetectedPhrase `json:"detectedPhrases"`
	Found           bool             `json:"found"`
	Confidence      int              `json:"confidence"` // 0-100
	Evidence        string           `json:"evidence"`
}

// Result maps every tracker in the taxonomy to its extraction outcome.
type Result map[taxonomy.Category]CategoryResult

// PhraseCount is the total number of phrases across all trackers.
func (r Result) PhraseCount() int {
	n := 0
	for _, c := range r {
		n += len(c.DetectedPhrases)
	}
	return n
}

// llmPhrase mirrors one model-emitted entry. Pointers distinguish absent
// fields from zero values.
type llmPhrase struct {
	Phrase     *string  `json:"phrase"`
	Speaker    string   `json:"speaker"`
	Confidence *float64 `json:"confidence"`
	Timestamp  string   `json:"timestamp"`
	EntryIndex *int     `json:"entryIndex"`
}

type llmResponse struct {
	Categories map[string][]llmPhrase `json:"categories"`
}
