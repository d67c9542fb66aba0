// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/ragbox/internal/config"
	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/persistence/sqlite"
	"github.com/ManuGH/ragbox/internal/store"
)

const sampleDoc = `# Results

Our model beats every baseline.

| model | score |
| --- | --- |
| ours | 0.91 |
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ragbox dev")
}

func TestInitPrompts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")

	out, err := execute(t, "init-prompts", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "wrote "))

	out, err = execute(t, "init-prompts", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "already present")

	out, err = execute(t, "init-prompts", "--force", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "wrote "))
}

func TestParseCommand(t *testing.T) {
	src := writeSample(t)
	outDir := t.TempDir()

	out, err := execute(t, "parse", src, "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "results.md")
	assert.Contains(t, out, "3 chunk(s)")
	assert.Contains(t, out, "1 table(s), 0 picture(s)")

	md, err := os.ReadFile(filepath.Join(outDir, "results.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Results")
	assert.FileExists(t, filepath.Join(outDir, "results-table-1.md"))
}

func TestParseCommandJSON(t *testing.T) {
	out, err := execute(t, "parse", "--json", writeSample(t))
	require.NoError(t, err)

	var got struct {
		Document document.Document `json:"document"`
		Chunks   document.Chunks   `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "results.md", got.Document.Name)
	assert.Equal(t, 1, got.Chunks.Counts()[document.ChunkTable])
}

func TestParseCommandTooLarge(t *testing.T) {
	_, err := execute(t, "parse", "--max-bytes", "8", writeSample(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestSummarizeCommand(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llava","response":"a concise summary","done":true}`))
	}))
	defer ollama.Close()

	t.Setenv("RAGBOX_DATA_DIR", t.TempDir())
	t.Setenv("RAGBOX_OLLAMA_URL", ollama.URL)
	t.Setenv("RAGBOX_CACHE_BACKEND", "none")
	t.Setenv("RAGBOX_SUMMARIZE_TYPES", "table")

	out, err := execute(t, "summarize", "--json", writeSample(t))
	require.NoError(t, err)

	var views []summaryView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, document.ChunkTable, views[0].ChunkType)
	assert.Equal(t, "a concise summary", views[0].Summary)
	assert.Empty(t, views[0].Error)
}

func TestDBVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragbox.db")
	st, err := store.Open(context.Background(), path, sqlite.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "db", "verify", "--path", path, "--mode", "full")
	require.NoError(t, err)
	assert.Contains(t, out, "Integrity Verified: ok")

	_, err = execute(t, "db", "verify", "--path", path, "--mode", "deep")
	require.Error(t, err)

	_, err = execute(t, "db", "verify", "--path", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readyz" && r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	out, err := execute(t, "healthcheck", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Healthcheck successful (ready)")

	status.Store(http.StatusServiceUnavailable)
	_, err = execute(t, "healthcheck", "--addr", srv.URL, "--mode", "live")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = execute(t, "healthcheck", "--mode", "sideways")
	require.Error(t, err)
}

func TestLLMOptionsZeroMeansOff(t *testing.T) {
	cfg := config.Default().Ollama
	cfg.MaxRetries = 0
	cfg.RateLimit = 0

	opts := llmOptions(cfg)
	assert.Equal(t, -1, opts.MaxRetries)
	assert.True(t, opts.RateLimit > 1e300)

	cfg.MaxRetries = 3
	cfg.RateLimit = 2
	opts = llmOptions(cfg)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.InDelta(t, 2.0, float64(opts.RateLimit), 0.001)
}
