// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health provides liveness and readiness checks for the daemon.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ManuGH/ragbox/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// checkTimeout bounds each individual checker.
const checkTimeout = 3 * time.Second

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version   string
	startTime time.Time
	checkers  []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:   version,
		startTime: time.Now(),
		checkers:  make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health performs a liveness check. Component checks run only when verbose.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.startTime).Seconds()),
		Timestamp: time.Now(),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready reports whether every checker is at least degraded.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.runChecks(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	overall := StatusHealthy
	for _, checker := range m.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		result := checker.Check(cctx)
		cancel()
		checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return checks, overall
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // Always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str(log.FieldEvent, "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}
