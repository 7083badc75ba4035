package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MikeSquared-Agency/insights/internal/hermes"
)

// HandleTranscriptStored is the NATS handler for transcripts.stored. Each
// event is processed on its own goroutine so a long classification does not
// hold up the subscription.
func (p *Processor) HandleTranscriptStored(subject string, data []byte) {
	var evt hermes.TranscriptStored
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse transcript event", "subject", subject, "error", err)
		return
	}
	if evt.TranscriptID == "" || evt.PersonID == "" {
		p.logger.Warn("transcript event missing ids", "subject", subject)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("panic while processing transcript", "transcript_id", evt.TranscriptID, "panic", r)
			}
		}()

		_, err := p.Process(context.Background(), evt.TranscriptID, evt.PersonID)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			p.logger.Warn("transcript from event not found", "transcript_id", evt.TranscriptID, "person_id", evt.PersonID)
		default:
			p.logger.Error("transcript processing failed", "transcript_id", evt.TranscriptID, "person_id", evt.PersonID, "error", err)
		}
	}()
}

// Wait blocks until every event-triggered run has finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}
