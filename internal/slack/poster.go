// Package slack posts insight scorecards to a Slack channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	tax     *taxonomy.Taxonomy
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, tax *taxonomy.Taxonomy, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		tax:     tax,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Notify satisfies processor.Notifier.
func (p *Poster) Notify(ctx context.Context, rec *processor.Record) error {
	_, err := p.PostScorecard(ctx, rec)
	return err
}

// PostScorecard posts the tracker labels of an insight record and returns the
// message timestamp.
func (p *Poster) PostScorecard(ctx context.Context, rec *processor.Record) (string, error) {
	text := formatScorecard(p.tax, rec)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted scorecard to slack", "ts", slackResp.TS, "transcript_id", rec.TranscriptID)
	return slackResp.TS, nil
}

func formatScorecard(tax *taxonomy.Taxonomy, rec *processor.Record) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Transcript:* %s (person %s)\n", rec.TranscriptID, rec.PersonID)
	fmt.Fprintf(&sb, "*Sentences:* %d | *Scoring:* %s", rec.TotalSentences, rec.ScoringMethod)
	if rec.Partial {
		sb.WriteString(" | _partial: classification did not complete_")
	}
	sb.WriteString("\n\n")

	if len(rec.TrackerScores) == 0 {
		sb.WriteString("_No tracker scores were produced for this transcript._")
		return sb.String()
	}

	for _, def := range tax.Definitions() {
		score, ok := rec.TrackerScores[def.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%s *%s:* %s (%d phrase%s)\n", labelEmoji(score.Label), def.Name, score.Label, score.PhraseCount, plural(score.PhraseCount))
	}

	return sb.String()
}

func labelEmoji(l taxonomy.Label) string {
	switch l {
	case taxonomy.LabelGreat:
		return ":star:"
	case taxonomy.LabelStrongExecution:
		return ":white_check_mark:"
	case taxonomy.LabelNeedsImprovement:
		return ":warning:"
	default:
		return ":x:"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
