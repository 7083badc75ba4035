// Package extractor finds tracker phrases in a transcript with a single
// multi-category model call.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/insights/internal/anthropic"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

var (
	// ErrExtractionFailed covers any service or parse failure. No partial
	// result accompanies it.
	ErrExtractionFailed = errors.New("extraction failed")
	ErrEmptyTranscript  = errors.New("transcript text is empty")
)

const maxTokens = 8192

type Extractor struct {
	llm      anthropic.Completer
	taxonomy *taxonomy.Taxonomy
	logger   *slog.Logger
}

func New(llm anthropic.Completer, tax *taxonomy.Taxonomy, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, taxonomy: tax, logger: logger}
}

// Extract returns one CategoryResult per tracker for the transcript.
func (e *Extractor) Extract(ctx context.Context, text string, utterances []transcript.SpeakerUtterance) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTranscript
	}

	prompt := buildPrompt(e.taxonomy, text, transcript.FormatUtterances(utterances))

	e.logger.Info("extracting phrases",
		"transcript_len", len(text),
		"utterances", len(utterances),
	)

	raw, err := e.llm.Complete(ctx, systemPrompt, anthropic.UserMessage(prompt), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: llm call: %v", ErrExtractionFailed, err)
	}

	var resp llmResponse
	if err := anthropic.DecodeJSON(raw, &resp); err != nil {
		e.logger.Error("failed to parse extraction response", "error", err, "raw_len", len(raw))
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if resp.Categories == nil {
		return nil, fmt.Errorf("%w: %w: missing categories", ErrExtractionFailed, anthropic.ErrMalformedResponse)
	}

	result := e.normalize(resp, utterances)

	e.logger.Info("extraction complete", "phrases", result.PhraseCount())
	return result, nil
}

func (e *Extractor) normalize(resp llmResponse, utterances []transcript.SpeakerUtterance) Result {
	grouped := make(map[taxonomy.Category][]llmPhrase)
	for key, entries := range resp.Categories {
		cat, ok := e.taxonomy.Normalize(key)
		if !ok || cat == taxonomy.None {
			e.logger.Warn("dropping unknown extraction category", "category", key)
			continue
		}
		grouped[cat] = append(grouped[cat], entries...)
	}

	result := make(Result, len(e.taxonomy.Categories()))
	for _, cat := range e.taxonomy.Categories() {
		phrases := e.normalizeCategory(grouped[cat], utterances)
		result[cat] = CategoryResult{
			DetectedPhrases: phrases,
			Found:           len(phrases) > 0,
			Confidence:      categoryConfidence(phrases),
			Evidence:        evidence(phrases),
		}
	}
	return result
}

func (e *Extractor) normalizeCategory(entries []llmPhrase, utterances []transcript.SpeakerUtterance) []DetectedPhrase {
	phrases := []DetectedPhrase{}
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.Phrase == nil {
			continue
		}
		text := strings.TrimSpace(*entry.Phrase)
		if !acceptPhrase(text) {
			continue
		}
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true

		p := DetectedPhrase{
			Phrase:     text,
			Speaker:    entry.Speaker,
			Confidence: clampConfidence(entry.Confidence),
			Timestamp:  entry.Timestamp,
		}
		attribute(&p, entry.EntryIndex, utterances)
		phrases = append(phrases, p)
	}
	return phrases
}
