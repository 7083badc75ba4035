package extractor

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

const systemPrompt = `You are a sales conversation analyst. You read call transcripts and pull out the exact phrases that show a rep executing specific behaviours.

Rules:
- Quote phrases verbatim from the transcript. Never paraphrase.
- A phrase must be a meaningful statement or question, between 10 and 300 characters.
- Skip filler ("um", "well", "so") and small fragments.
- Only include a phrase under a category when it clearly demonstrates that behaviour.
- A category with no evidence gets an empty list.
- Respond with a single JSON object and nothing else.`

const extractionUserPrompt = `Find phrases for every tracker below in ONE pass.

## Trackers
%s
## Transcript
%s
## Response format
{
  "categories": {
    "<tracker id>": [
      {
        "phrase": "verbatim quote",
        "speaker": "who said it",
        "confidence": 0.0-1.0,
        "timestamp": "MM:SS",
        "entryIndex": <number in square brackets of the utterance the phrase came from>
      }
    ]
  }
}

Include every tracker id as a key: %s`

func buildPrompt(tax *taxonomy.Taxonomy, text, utterances string) string {
	var trackers strings.Builder
	for _, d := range tax.Definitions() {
		fmt.Fprintf(&trackers, "- %s (%s): %s\n", d.ID, d.Name, d.Description)
	}

	body := utterances
	if body == "" {
		body = text
	}

	ids := make([]string, 0, len(tax.Categories()))
	for _, c := range tax.Categories() {
		ids = append(ids, string(c))
	}

	return fmt.Sprintf(extractionUserPrompt, trackers.String(), body, strings.Join(ids, ", "))
}
