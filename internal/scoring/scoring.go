// Package scoring turns classified sentences into one qualitative score per
// tracker, falling back to deterministic thresholds when the model path fails.
package scoring

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

// ErrScoringFailed is recovered inside the aggregator and never returned.
var ErrScoringFailed = errors.New("scoring failed")

const maxExamples = 3

type Method string

const (
	MethodLLM   Method = "llm"
	MethodRules Method = "rules"
)

type TrackerScore struct {
	Category    taxonomy.Category `json:"category"`
	Label       taxonomy.Label    `json:"label"`
	PhraseCount int               `json:"phraseCount"`
	Reasoning   string            `json:"reasoning"`
}

// Scorecard holds exactly one score per tracker.
type Scorecard struct {
	Scores map[taxonomy.Category]TrackerScore `json:"scores"`
	Method Method                             `json:"method"`
}

// Summary is the compact per-tracker view both strategies score from.
type Summary struct {
	Counts   map[taxonomy.Category]int
	Examples map[taxonomy.Category][]string
}

// Summarize groups sentences by tracker, ignoring none, keeping up to three
// example quotes per tracker in transcript order.
func Summarize(sentences []classifier.ClassifiedSentence) Summary {
	s := Summary{
		Counts:   make(map[taxonomy.Category]int),
		Examples: make(map[taxonomy.Category][]string),
	}
	for _, row := range sentences {
		if row.Tracker == taxonomy.None || row.Tracker == "" {
			continue
		}
		s.Counts[row.Tracker]++
		if len(s.Examples[row.Tracker]) < maxExamples {
			s.Examples[row.Tracker] = append(s.Examples[row.Tracker], row.Text)
		}
	}
	return s
}

// Strategy produces scores for some or all trackers from a summary.
type Strategy interface {
	Score(ctx context.Context, s Summary) (map[taxonomy.Category]TrackerScore, error)
	Method() Method
}

type Aggregator struct {
	primary  Strategy
	rules    *RuleStrategy
	taxonomy *taxonomy.Taxonomy
	logger   *slog.Logger
}

// New returns an aggregator whose primary strategy is primary. A nil primary
// scores with rules only.
func New(primary Strategy, tax *taxonomy.Taxonomy, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		primary:  primary,
		rules:    NewRuleStrategy(tax),
		taxonomy: tax,
		logger:   logger,
	}
}

// Score always returns a complete scorecard.
func (a *Aggregator) Score(ctx context.Context, sentences []classifier.ClassifiedSentence) *Scorecard {
	summary := Summarize(sentences)
	fallback, _ := a.rules.Score(ctx, summary)

	if a.primary == nil || len(summary.Counts) == 0 {
		return &Scorecard{Scores: fallback, Method: MethodRules}
	}

	scores, err := a.primary.Score(ctx, summary)
	if err != nil {
		a.logger.Warn("primary scoring failed, using rule fallback", "error", err)
		return &Scorecard{Scores: fallback, Method: MethodRules}
	}

	out := make(map[taxonomy.Category]TrackerScore, len(fallback))
	for _, cat := range a.taxonomy.Categories() {
		count := summary.Counts[cat]
		sc, ok := scores[cat]
		switch {
		case !ok:
			a.logger.Debug("tracker missing from primary scores, using rule", "tracker", cat)
			sc = fallback[cat]
		case count == 0:
			sc = fallback[cat]
		default:
			sc.PhraseCount = count
		}
		sc.Category = cat
		out[cat] = sc
	}
	return &Scorecard{Scores: out, Method: a.primary.Method()}
}
