// Package transcript holds the immutable transcript input and the helpers that
// cut it into sentences and bounded batches for classification.
package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// SpeakerUtterance is a single speaker-attributed turn.
type SpeakerUtterance struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"` // MM:SS
}

// Transcript is the plain text of a recording plus its speaker segmentation.
type Transcript struct {
	ID         string             `json:"id,omitempty"`
	PersonID   string             `json:"personId,omitempty"`
	Text       string             `json:"transcript"`
	Utterances []SpeakerUtterance `json:"speakerUtterances"`
}

// Complete reports whether both the plain text and the speaker segmentation
// are present.
func (t Transcript) Complete() bool {
	return strings.TrimSpace(t.Text) != "" && len(t.Utterances) > 0
}

// WordsPerMinute is the speaking rate used when a timestamp has to be
// estimated from a word offset.
const WordsPerMinute = 150

// FormatTimestamp renders seconds as MM:SS. Minutes are not wrapped at 60.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ParseTimestamp parses MM:SS (or HH:MM:SS) into seconds.
func ParseTimestamp(ts string) (int, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total = total*60 + n
	}
	return total, nil
}

// EstimateTimestamp converts a word offset into MM:SS at WordsPerMinute.
func EstimateTimestamp(wordOffset int) string {
	return FormatTimestamp(wordOffset * 60 / WordsPerMinute)
}
