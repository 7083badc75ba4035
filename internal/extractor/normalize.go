package extractor

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

const (
	minPhraseLen = 10
	maxPhraseLen = 300

	minConfidence = 0.7
	maxConfidence = 0.95

	fuzzyPrefixLen = 30
)

var stopwordOnly = regexp.MustCompile(`(?i)^(um|uh|well|so|and)\s*$`)

var fillerWords = map[string]bool{
	"um": true, "uh": true, "umm": true, "uhh": true, "er": true, "erm": true, "hmm": true,
	"well": true, "so": true, "and": true, "like": true, "yeah": true, "ok": true, "okay": true,
	"right": true, "you": true, "know": true, "mean": true, "i": true, "just": true, "oh": true,
}

// acceptPhrase reports whether a trimmed phrase is worth keeping.
func acceptPhrase(p string) bool {
	n := utf8.RuneCountInString(p)
	if n < minPhraseLen || n > maxPhraseLen {
		return false
	}
	if stopwordOnly.MatchString(p) {
		return false
	}
	return !fillerOnly(p)
}

func fillerOnly(p string) bool {
	words := strings.FieldsFunc(strings.ToLower(p), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if !fillerWords[w] {
			return false
		}
	}
	return true
}

func clampConfidence(c *float64) float64 {
	if c == nil || math.IsNaN(*c) {
		return minConfidence
	}
	return math.Min(maxConfidence, math.Max(minConfidence, *c))
}

// attribute resolves speaker and timestamp for a phrase: first by the model's
// entry index, then by matching the phrase prefix against utterance text.
// The first matching utterance wins.
func attribute(p *DetectedPhrase, idx *int, utterances []transcript.SpeakerUtterance) {
	p.EntryIndex = -1
	if len(utterances) == 0 {
		return
	}

	if idx != nil && *idx >= 0 && *idx < len(utterances) {
		applyUtterance(p, *idx, utterances[*idx])
		return
	}

	prefix := strings.ToLower(p.Phrase)
	if utf8.RuneCountInString(prefix) > fuzzyPrefixLen {
		prefix = string([]rune(prefix)[:fuzzyPrefixLen])
	}
	for i, u := range utterances {
		if strings.Contains(strings.ToLower(u.Text), prefix) {
			applyUtterance(p, i, u)
			return
		}
	}
}

func applyUtterance(p *DetectedPhrase, i int, u transcript.SpeakerUtterance) {
	p.EntryIndex = i
	if u.Speaker != "" {
		p.Speaker = u.Speaker
	}
	if u.Timestamp != "" {
		p.Timestamp = u.Timestamp
	}
}

func evidence(phrases []DetectedPhrase) string {
	if len(phrases) == 0 {
		return "No supporting phrases detected."
	}
	quote := phrases[0].Phrase
	if utf8.RuneCountInString(quote) > 80 {
		quote = string([]rune(quote)[:77]) + "..."
	}
	noun := "phrases"
	if len(phrases) == 1 {
		noun = "phrase"
	}
	return fmt.Sprintf("%d supporting %s detected, e.g. %q", len(phrases), noun, quote)
}

func categoryConfidence(phrases []DetectedPhrase) int {
	if len(phrases) == 0 {
		return 0
	}
	var sum float64
	for _, p := range phrases {
		sum += p.Confidence
	}
	return int(math.Round(sum / float64(len(phrases)) * 100))
}
