package classifier

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

const systemPrompt = `You classify every sentence of a sales call transcript against a fixed set of behavioural trackers.

Rules:
- Classify EVERY numbered sentence exactly once.
- Use exactly one tracker id per sentence, or "none" if no tracker applies.
- confidence is a number between 0.0 and 1.0.
- timestamp is your best estimate of when the sentence was spoken, as MM:SS.
- reasoning is one short sentence.
- Respond with a single JSON object and nothing else.`

const batchUserPrompt = `## Trackers
%s- none: the sentence does not demonstrate any tracker

## Sentences
%s
## Response format
{
  "classifications": [
    {"index": <sentence number>, "tracker": "<tracker id or none>", "confidence": 0.0-1.0, "timestamp": "MM:SS", "reasoning": "why"}
  ]
}`

func buildBatchPrompt(tax *taxonomy.Taxonomy, batch transcript.Batch) string {
	var trackers strings.Builder
	for _, d := range tax.Definitions() {
		fmt.Fprintf(&trackers, "- %s: %s\n", d.ID, d.Description)
	}

	var sentences strings.Builder
	for i, s := range batch.Sentences {
		fmt.Fprintf(&sentences, "%d. [~%s] %s\n", i+1, transcript.EstimateTimestamp(s.WordOffset), s.Text)
	}

	return fmt.Sprintf(batchUserPrompt, trackers.String(), sentences.String())
}

type llmClassification struct {
	Index      int      `json:"index"`
	Tracker    string   `json:"tracker"`
	Confidence *float64 `json:"confidence"`
	Timestamp  string   `json:"timestamp"`
	Reasoning  string   `json:"reasoning"`
}

type llmBatchResponse struct {
	Classifications []llmClassification `json:"classifications"`
}
