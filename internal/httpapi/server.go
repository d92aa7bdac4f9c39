// Package httpapi exposes the pipeline over HTTP: capture ingestion, job
// submission and resume triggers on the front side, and the claim/progress/
// complete/fail surface the external processor reports back through.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/you/courseq/internal/domain"
)

// JobStore is the storage surface the API mutates and reads.
type JobStore interface {
	InsertJob(ctx context.Context, j *domain.Job) error
	ClaimNext(ctx context.Context) (*domain.Job, error)
	UpdateProgress(ctx context.Context, jobID string, p domain.ProgressUpdate) error
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, reason string) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, status *domain.Status, limit int) ([]*domain.Job, error)
}

// CaptureService merges inbound capture events.
type CaptureService interface {
	Merge(ctx context.Context, ev domain.CaptureEvent) (*domain.CaptureRecord, error)
}

// ResumeService queues continuation jobs for approved previews.
type ResumeService interface {
	Resume(ctx context.Context, artifactID, checkpointRef string) (string, error)
}

// Signals mirrors enqueues into the advisory ready list. Nil disables it.
type Signals interface {
	Signal(ctx context.Context, jobID string) error
	Depth(ctx context.Context) (int64, error)
}

type Server struct {
	store    JobStore
	captures CaptureService
	resumes  ResumeService
	signals  Signals
	log      *zap.SugaredLogger
	router   chi.Router
}

func NewServer(store JobStore, captures CaptureService, resumes ResumeService, signals Signals, log *zap.SugaredLogger) *Server {
	s := &Server{
		store:    store,
		captures: captures,
		resumes:  resumes,
		signals:  signals,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/captures", s.handleCapture)
		r.Post("/generations", s.handleSubmitGeneration)
		r.Post("/generations/{artifactID}/resume", s.handleResume)

		r.Post("/jobs/claim", s.handleClaim)
		r.Post("/jobs/{id}/progress", s.handleProgress)
		r.Post("/jobs/{id}/complete", s.handleComplete)
		r.Post("/jobs/{id}/fail", s.handleFail)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)

		r.Get("/stats", s.handleStats)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
