package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/extractor"
	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

type fakePipeline struct {
	extractErr error
	processErr error
	gotID      string
	gotPerson  string
}

func (f *fakePipeline) Extract(_ context.Context, transcriptID, personID string) (extractor.Result, error) {
	f.gotID, f.gotPerson = transcriptID, personID
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return extractor.Result{
		taxonomy.RapportBuilding: {
			Found:           true,
			Confidence:      80,
			Evidence:        "1 supporting phrase detected, e.g. \"great to see you again\"",
			DetectedPhrases: []extractor.DetectedPhrase{{Phrase: "great to see you again", Speaker: "Rep", Confidence: 0.8, Timestamp: "00:04"}},
		},
	}, nil
}

func (f *fakePipeline) Process(_ context.Context, transcriptID, personID string) (*processor.Record, error) {
	f.gotID, f.gotPerson = transcriptID, personID
	if f.processErr != nil {
		return nil, f.processErr
	}
	return &processor.Record{TranscriptID: transcriptID, PersonID: personID, TotalSentences: 2}, nil
}

type fakeJobs struct {
	submitErr error
	gotText   string
	gotJobID  string
	jobs      map[string]*classifier.Job
}

func (f *fakeJobs) Submit(_ context.Context, text, jobID string) (*classifier.Submission, error) {
	f.gotText, f.gotJobID = text, jobID
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if jobID == "" {
		jobID = "generated"
	}
	return &classifier.Submission{JobID: jobID, EstimatedTime: 8}, nil
}

func (f *fakeJobs) Status(_ context.Context, jobID string) (*classifier.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", classifier.ErrJobNotFound, jobID)
	}
	return job, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(p *fakePipeline, j *fakeJobs) *Server {
	return NewServer(8760, p, j, discardLogger())
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakePipeline{}, &fakeJobs{})

	w := do(t, srv, "GET", "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv := newTestServer(&fakePipeline{}, &fakeJobs{})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(&fakePipeline{}, &fakeJobs{})

	w := do(t, srv, "GET", "/nonexistent", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtract(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, &fakeJobs{})

	w := do(t, srv, "POST", "/api/v1/extractions", `{"transcriptId":"t-1","personId":"p-1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", p.gotID)
	assert.Equal(t, "p-1", p.gotPerson)
	body := decode(t, w)
	rapport, ok := body["rapport-building"].(map[string]any)
	require.True(t, ok, "expected rapport-building category in %v", body)
	assert.EqualValues(t, 80, rapport["confidence"])
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"transcriptId":`, nil, http.StatusBadRequest},
		{"missing person", `{"transcriptId":"t-1"}`, nil, http.StatusBadRequest},
		{"not found", `{"transcriptId":"t-1","personId":"p-1"}`, fmt.Errorf("%w: t-1", processor.ErrNotFound), http.StatusNotFound},
		{"extraction failed", `{"transcriptId":"t-1","personId":"p-1"}`, fmt.Errorf("%w: llm call: boom", extractor.ErrExtractionFailed), http.StatusBadGateway},
		{"unexpected", `{"transcriptId":"t-1","personId":"p-1"}`, fmt.Errorf("load transcript: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakePipeline{extractErr: tt.err}, &fakeJobs{})

			w := do(t, srv, "POST", "/api/v1/extractions", tt.body)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestProcessInsights(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, &fakeJobs{})

	w := do(t, srv, "POST", "/api/v1/insights", `{"transcriptId":"t-9","personId":"p-9"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "t-9", body["transcriptId"])
	assert.Equal(t, "p-9", body["personId"])
	assert.EqualValues(t, 2, body["totalSentences"])
}

func TestProcessInsights_NoSignal(t *testing.T) {
	srv := newTestServer(&fakePipeline{processErr: fmt.Errorf("%w: t-1", processor.ErrNoSignal)}, &fakeJobs{})

	w := do(t, srv, "POST", "/api/v1/insights", `{"transcriptId":"t-1","personId":"p-1"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSubmitJob(t *testing.T) {
	j := &fakeJobs{}
	srv := newTestServer(&fakePipeline{}, j)

	w := do(t, srv, "POST", "/api/v1/classification-jobs", `{"transcript":"Hello there. How are you?","jobId":"job-7"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "Hello there. How are you?", j.gotText)
	body := decode(t, w)
	assert.Equal(t, "job-7", body["jobId"])
	assert.EqualValues(t, 8, body["estimatedTime"])
}

func TestSubmitJob_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty transcript", classifier.ErrEmptyTranscript, http.StatusBadRequest},
		{"duplicate id", fmt.Errorf("%w: job-7", classifier.ErrJobExists), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakePipeline{}, &fakeJobs{submitErr: tt.err})

			w := do(t, srv, "POST", "/api/v1/classification-jobs", `{"transcript":"x","jobId":"job-7"}`)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestJobStatus(t *testing.T) {
	msg := "boom"
	j := &fakeJobs{jobs: map[string]*classifier.Job{
		"job-1": {ID: "job-1", Status: classifier.StatusRunning, TotalSentences: 30, Progress: classifier.Progress{CompletedBatches: 1, TotalBatches: 2, Percentage: 50}},
		"job-2": {ID: "job-2", Status: classifier.StatusFailed, Error: &msg},
	}}
	srv := newTestServer(&fakePipeline{}, j)

	w := do(t, srv, "GET", "/api/v1/classification-jobs/job-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "running", body["status"])
	progress := body["progress"].(map[string]any)
	assert.EqualValues(t, 50, progress["percentage"])

	w = do(t, srv, "GET", "/api/v1/classification-jobs/job-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "boom", decode(t, w)["error"])

	w = do(t, srv, "GET", "/api/v1/classification-jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
