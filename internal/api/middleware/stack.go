// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware provides the HTTP middleware stack of the API server.
package middleware

import (
	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/ragbox/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 4. Tracing
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	// 5. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(xglog.Middleware())
	}
	// 6. Rate limit
	if cfg.RateLimit > 0 {
		r.Use(APIRateLimit(cfg.RateLimit))
	}
}
