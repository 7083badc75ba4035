package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/insights/internal/anthropic"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

const maxTokens = 2048

// LLMStrategy asks the model for a holistic judgement per tracker. Any call,
// parse or label error fails the whole strategy.
type LLMStrategy struct {
	llm      anthropic.Completer
	taxonomy *taxonomy.Taxonomy
}

func NewLLMStrategy(llm anthropic.Completer, tax *taxonomy.Taxonomy) *LLMStrategy {
	return &LLMStrategy{llm: llm, taxonomy: tax}
}

func (l *LLMStrategy) Method() Method { return MethodLLM }

func (l *LLMStrategy) Score(ctx context.Context, s Summary) (map[taxonomy.Category]TrackerScore, error) {
	raw, err := l.llm.Complete(ctx, systemPrompt, anthropic.UserMessage(buildPrompt(l.taxonomy, s)), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: llm call: %v", ErrScoringFailed, err)
	}

	var resp llmResponse
	if err := anthropic.DecodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	if len(resp.Scores) == 0 {
		return nil, fmt.Errorf("%w: %w: no scores", ErrScoringFailed, anthropic.ErrMalformedResponse)
	}

	out := make(map[taxonomy.Category]TrackerScore, len(resp.Scores))
	for key, sc := range resp.Scores {
		cat, ok := l.taxonomy.Normalize(key)
		if !ok || cat == taxonomy.None {
			continue
		}
		label := taxonomy.Label(strings.TrimSpace(sc.Label))
		if !taxonomy.ValidLabel(label) {
			return nil, fmt.Errorf("%w: invalid label %q for %s", ErrScoringFailed, sc.Label, cat)
		}
		// Great and Strong Execution are the same tier; each tracker has one name for it.
		if label == taxonomy.LabelGreat || label == taxonomy.LabelStrongExecution {
			if d, ok := l.taxonomy.Lookup(cat); ok {
				label = d.TopLabel
			}
		}
		out[cat] = TrackerScore{
			Category:    cat,
			Label:       label,
			PhraseCount: sc.PhraseCount,
			Reasoning:   strings.TrimSpace(sc.Reasoning),
		}
	}
	return out, nil
}
