// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the ragbox REST API.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/ragbox/internal/api/middleware"
	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/health"
	"github.com/ManuGH/ragbox/internal/ingest"
	"github.com/ManuGH/ragbox/internal/jobs"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/store"
)

// Store is the read side of persistence used by the handlers.
type Store interface {
	GetDocument(ctx context.Context, id string) (document.Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]document.Document, error)
	CountDocuments(ctx context.Context) (int, error)
	DeleteDocument(ctx context.Context, id string) error
	ListChunks(ctx context.Context, docID string, types ...document.ChunkType) (document.Chunks, error)
	ListSummaries(ctx context.Context, docID string) ([]store.Summary, error)
	GetJob(ctx context.Context, id string) (jobs.Job, error)
	ListJobs(ctx context.Context, f store.JobFilter) ([]jobs.Job, error)
}

// Ingester accepts ingest and summarize jobs.
type Ingester interface {
	Submit(ctx context.Context, src ingest.Source, opts ingest.Options) (jobs.Job, error)
	SubmitSummarize(ctx context.Context, docID string) (jobs.Job, error)
}

// Config controls the HTTP surface.
type Config struct {
	// AuthToken protects /api/v1 when set.
	AuthToken string
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int
	// MaxUploadBytes bounds uploaded files; zero disables the limit.
	MaxUploadBytes int64
	// TracingService names the server span; empty disables tracing.
	TracingService string
}

// Server holds the handler dependencies.
type Server struct {
	cfg    Config
	store  Store
	ingest Ingester
	health *health.Manager
	logger zerolog.Logger
	router chi.Router
}

// New creates the server and its routes.
func New(cfg Config, st Store, ing Ingester, hm *health.Manager) *Server {
	if hm == nil {
		hm = health.NewManager("")
	}
	s := &Server{
		cfg:    cfg,
		store:  st,
		ingest: ing,
		health: hm,
		logger: xglog.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
		RateLimit:      s.cfg.RateLimit,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(s.cfg.AuthToken))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Get("/", s.handleListDocuments)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Get("/chunks", s.handleListChunks)
				r.Get("/summaries", s.handleListSummaries)
				r.Post("/summarize", s.handleSummarize)
				r.Get("/markdown", s.handleMarkdown)
			})
		})
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Detail: "no route for " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method_not_allowed", Detail: r.Method + " " + r.URL.Path})
	})
	return r
}
