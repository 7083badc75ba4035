// Package api exposes the insight pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/extractor"
	"github.com/MikeSquared-Agency/insights/internal/processor"
)

const maxBodyBytes = 10 << 20

// Pipeline is the orchestrator surface the server calls.
type Pipeline interface {
	Extract(ctx context.Context, transcriptID, personID string) (extractor.Result, error)
	Process(ctx context.Context, transcriptID, personID string) (*processor.Record, error)
}

// Jobs is the classification job surface.
type Jobs interface {
	Submit(ctx context.Context, text, jobID string) (*classifier.Submission, error)
	Status(ctx context.Context, jobID string) (*classifier.Job, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	pipeline Pipeline
	jobs     Jobs
	logger   *slog.Logger
	http     *http.Server
}

func NewServer(port int, pipeline Pipeline, jobs Jobs, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		pipeline: pipeline,
		jobs:     jobs,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/extractions", s.extract)
		r.Post("/insights", s.processInsights)
		r.Post("/classification-jobs", s.submitJob)
		r.Get("/classification-jobs/{jobID}", s.jobStatus)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type transcriptRequest struct {
	TranscriptID string `json:"transcriptId"`
	PersonID     string `json:"personId"`
}

type jobRequest struct {
	Transcript string `json:"transcript"`
	JobID      string `json:"jobId"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !s.decodeTranscriptRequest(w, r, &req) {
		return
	}

	result, err := s.pipeline.Extract(r.Context(), req.TranscriptID, req.PersonID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) processInsights(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !s.decodeTranscriptRequest(w, r, &req) {
		return
	}

	rec, err := s.pipeline.Process(r.Context(), req.TranscriptID, req.PersonID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	sub, err := s.jobs.Submit(r.Context(), req.Transcript, req.JobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) decodeTranscriptRequest(w http.ResponseWriter, r *http.Request, req *transcriptRequest) bool {
	if err := decodeBody(w, r, req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	if req.TranscriptID == "" || req.PersonID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("transcriptId and personId are required"))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, processor.ErrNotFound), errors.Is(err, classifier.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, classifier.ErrEmptyTranscript), errors.Is(err, extractor.ErrEmptyTranscript):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrJobExists):
		return http.StatusConflict
	case errors.Is(err, extractor.ErrExtractionFailed), errors.Is(err, processor.ErrNoSignal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestID keeps an inbound X-Request-Id or assigns a fresh one, and exposes
// it to middleware.Logger through the chi request id key.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
