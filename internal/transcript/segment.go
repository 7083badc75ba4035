package transcript

import (
	"strconv"
	"strings"
	"unicode"
)

// DefaultBatchSize bounds the number of sentences sent in one classification call.
const DefaultBatchSize = 25

// Sentence is one segmented sentence with its byte offsets into the source text.
type Sentence struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	// WordOffset is the number of words in the transcript before this sentence.
	WordOffset int `json:"-"`
}

// Batch is a bounded run of consecutive sentences.
type Batch struct {
	Index     int
	Sentences []Sentence
}

// SplitSentences segments text on terminal punctuation followed by whitespace
// and on line breaks. Offsets refer to the trimmed sentence within text.
func SplitSentences(text string) []Sentence {
	var out []Sentence
	words := 0

	flush := func(start, end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || !hasLetterOrDigit(trimmed) {
			return
		}
		lead := strings.Index(raw, trimmed)
		s := Sentence{
			Index:      len(out),
			Text:       trimmed,
			Start:      start + lead,
			End:        start + lead + len(trimmed),
			WordOffset: words,
		}
		words += len(strings.Fields(trimmed))
		out = append(out, s)
	}

	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\n' || c == '\r':
			flush(start, i)
			start = i + 1
		case c == '.' || c == '!' || c == '?':
			// Consume the whole punctuation run ("?!", "...").
			j := i + 1
			for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			if j == len(text) || text[j] == ' ' || text[j] == '\t' || text[j] == '\n' || text[j] == '\r' {
				flush(start, j)
				start = j
			}
			i = j - 1
		}
	}
	if start < len(text) {
		flush(start, len(text))
	}
	return out
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// MakeBatches groups sentences into batches of at most size, preserving order.
func MakeBatches(sentences []Sentence, size int) []Batch {
	if len(sentences) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultBatchSize
	}

	var batches []Batch
	for start := 0; start < len(sentences); start += size {
		end := min(start+size, len(sentences))
		batches = append(batches, buildBatch(sentences[start:end], len(batches)))
	}
	return batches
}

func buildBatch(sentences []Sentence, idx int) Batch {
	b := Batch{
		Index:     idx,
		Sentences: make([]Sentence, len(sentences)),
	}
	copy(b.Sentences, sentences)
	return b
}

// FormatUtterances renders utterances as numbered "[i] (MM:SS) Speaker: text"
// lines for inclusion in a prompt.
func FormatUtterances(utterances []SpeakerUtterance) string {
	var sb strings.Builder
	for i, u := range utterances {
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("] ")
		if u.Timestamp != "" {
			sb.WriteString("(" + u.Timestamp + ") ")
		}
		speaker := u.Speaker
		if speaker == "" {
			speaker = "Unknown"
		}
		sb.WriteString(speaker)
		sb.WriteString(": ")
		sb.WriteString(u.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
