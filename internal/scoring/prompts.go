package scoring

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

const systemPrompt = `You are a sales coach grading how well a rep executed each behaviour on a call.
Labels, from best to worst: "Great" or "Strong Execution", then "Needs Improvement", then "Missed".
Use "Missed" only when the behaviour never happened.
Respond with a single JSON object and nothing else.`

const scoringUserPrompt = `Grade every tracker below using the classified sentences from the call.

%s
## Response format
{
  "scores": {
    "<tracker id>": {"label": "Great|Strong Execution|Needs Improvement|Missed", "phraseCount": <int>, "reasoning": "one or two sentences"}
  }
}

Include every tracker id: %s`

func buildPrompt(tax *taxonomy.Taxonomy, s Summary) string {
	var sb strings.Builder
	ids := make([]string, 0, len(tax.Categories()))
	for _, d := range tax.Definitions() {
		ids = append(ids, string(d.ID))
		fmt.Fprintf(&sb, "### %s (%s)\n%s\nSentences classified: %d\n", d.ID, d.Name, d.Description, s.Counts[d.ID])
		for _, ex := range s.Examples[d.ID] {
			fmt.Fprintf(&sb, "- %q\n", ex)
		}
		sb.WriteString("\n")
	}
	return fmt.Sprintf(scoringUserPrompt, sb.String(), strings.Join(ids, ", "))
}

type llmScore struct {
	Label       string `json:"label"`
	PhraseCount int    `json:"phraseCount"`
	Reasoning   string `json:"reasoning"`
}

type llmResponse struct {
	Scores map[string]llmScore `json:"scores"`
}
