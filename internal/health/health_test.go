// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/ragbox/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded is ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		status   Status
		wantCode int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusOK},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			m := NewManager("test")
			m.RegisterChecker(&mockChecker{name: "test", status: tt.status})

			rec := httptest.NewRecorder()
			m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.status, resp.Checks["test"].Status)
		})
	}
}

func TestManager_ServeHealthAlwaysOK(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(&mockChecker{name: "db", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "db")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestDatabaseChecker(t *testing.T) {
	ok := NewDatabaseChecker(pingFunc(func(context.Context) error { return nil }))
	assert.Equal(t, "sqlite", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	bad := NewDatabaseChecker(pingFunc(func(context.Context) error { return errors.New("database is locked") }))
	res := bad.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "database is locked", res.Error)
}

type fakeModels struct {
	has bool
	err error
}

func (f fakeModels) HasModel(context.Context, string) (bool, error) { return f.has, f.err }
func (f fakeModels) Model() string                                 { return "llava" }

func TestOllamaChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewOllamaChecker(fakeModels{has: true}).Check(context.Background()).Status)

	missing := NewOllamaChecker(fakeModels{}).Check(context.Background())
	assert.Equal(t, StatusDegraded, missing.Status)
	assert.Contains(t, missing.Message, "llava")

	down := NewOllamaChecker(fakeModels{err: errors.New("connection refused")}).Check(context.Background())
	assert.Equal(t, StatusDegraded, down.Status)
	assert.Equal(t, "connection refused", down.Error)
}

func TestCacheChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewCacheChecker("memory", nil).Check(context.Background()).Status)

	res := NewCacheChecker("redis", func(context.Context) error { return errors.New("dial tcp") }).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "redis", res.Message)
}

func TestQueueChecker(t *testing.T) {
	depth := 3
	c := NewQueueChecker(func() int { return depth }, 4)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	depth = 4
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "4/4 queued", res.Message)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Database.Path = filepath.Join(dir, "ragbox.db")
	cfg.Prompts.Dir = filepath.Join(dir, "prompts")

	require.NoError(t, PerformStartupChecks(cfg))

	cfg.DataDir = filepath.Join(dir, "missing")
	require.Error(t, PerformStartupChecks(cfg))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	cfg.DataDir = file
	require.Error(t, PerformStartupChecks(cfg))
}
