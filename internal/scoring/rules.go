package scoring

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

// RuleStrategy scores trackers from phrase counts alone using each tracker's
// good and great thresholds. It never fails.
type RuleStrategy struct {
	taxonomy *taxonomy.Taxonomy
}

func NewRuleStrategy(tax *taxonomy.Taxonomy) *RuleStrategy {
	return &RuleStrategy{taxonomy: tax}
}

func (r *RuleStrategy) Method() Method { return MethodRules }

func (r *RuleStrategy) Score(_ context.Context, s Summary) (map[taxonomy.Category]TrackerScore, error) {
	out := make(map[taxonomy.Category]TrackerScore, len(r.taxonomy.Categories()))
	for _, d := range r.taxonomy.Definitions() {
		out[d.ID] = ruleScore(d, s.Counts[d.ID])
	}
	return out, nil
}

// ruleScore maps a phrase count to a label:
//
//	0                     -> Missed
//	1 .. good-1           -> Needs Improvement
//	good .. great-1       -> top label (solid)
//	great and above       -> top label (excellent)
func ruleScore(d taxonomy.Definition, count int) TrackerScore {
	score := TrackerScore{Category: d.ID, PhraseCount: count}

	switch {
	case count <= 0:
		score.PhraseCount = 0
		score.Label = taxonomy.LabelMissed
		score.Reasoning = fmt.Sprintf("No %s phrases were detected in this conversation.", d.Name)
	case count < d.GoodThreshold:
		score.Label = taxonomy.LabelNeedsImprovement
		score.Reasoning = fmt.Sprintf("Only %s of %s detected; at least %d expected.", plural(count), d.Name, d.GoodThreshold)
	case count < d.GreatThreshold:
		score.Label = d.TopLabel
		score.Reasoning = fmt.Sprintf("Solid %s with %s detected.", d.Name, plural(count))
	default:
		score.Label = d.TopLabel
		score.Reasoning = fmt.Sprintf("Excellent %s with %s detected.", d.Name, plural(count))
	}
	return score
}

func plural(n int) string {
	if n == 1 {
		return "1 phrase"
	}
	return fmt.Sprintf("%d phrases", n)
}
