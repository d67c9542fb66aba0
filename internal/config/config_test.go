// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/ragbox/internal/document"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ragbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("RAGBOX_DATA_DIR", dataDir)

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, filepath.Join(dataDir, "ragbox.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(dataDir, "prompts"), cfg.Prompts.Dir)
	assert.Equal(t, filepath.Join(dataDir, "cache"), cfg.Cache.BadgerDir)
	assert.Equal(t, filepath.Join(dataDir, "uploads"), cfg.UploadDir())
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Empty(t, cfg.ChunkTypes())
	assert.Nil(t, cfg.Ollama.Temperature)
}

func TestLoadFileThenEnv(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, t.TempDir(), `
data_dir: `+dataDir+`
log:
  level: debug
server:
  listen_addr: "127.0.0.1:9000"
  rate_limit: 0
ollama:
  model: llama3.2-vision
  temperature: 0.2
  timeout: 45s
summarize:
  types: [text, table]
prompts:
  files:
    image: picture.txt
ingest:
  workers: 4
`)
	t.Setenv("RAGBOX_INGEST_WORKERS", "8")
	t.Setenv("RAGBOX_OLLAMA_URL", "http://ollama:11434")

	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Zero(t, cfg.Server.RateLimit)
	assert.Equal(t, "llama3.2-vision", cfg.Ollama.Model)
	assert.Equal(t, 45*time.Second, cfg.Ollama.Timeout)
	require.NotNil(t, cfg.Ollama.Temperature)
	assert.InDelta(t, 0.2, *cfg.Ollama.Temperature, 1e-9)
	assert.Equal(t, "http://ollama:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, 8, cfg.Ingest.Workers, "env wins over file")
	assert.Equal(t, 64, cfg.Ingest.QueueSize, "default kept")
	assert.Equal(t, []document.ChunkType{document.ChunkText, document.ChunkTable}, cfg.ChunkTypes())
	assert.Equal(t, map[document.ChunkType]string{document.ChunkImage: "picture.txt"}, cfg.PromptFiles())
	assert.Contains(t, loader.ConsumedEnvKeys, "RAGBOX_INGEST_WORKERS")
}

func TestLoadEnvList(t *testing.T) {
	t.Setenv("RAGBOX_DATA_DIR", t.TempDir())
	t.Setenv("RAGBOX_SUMMARIZE_TYPES", " image, ,table ")
	t.Setenv("RAGBOX_OLLAMA_TEMPERATURE", "0.7")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"image", "table"}, cfg.Summarize.Types)
	require.NotNil(t, cfg.Ollama.Temperature)
	assert.InDelta(t, 0.7, *cfg.Ollama.Temperature, 1e-9)
}

func TestLoadImagePixelLimit(t *testing.T) {
	t.Setenv("RAGBOX_DATA_DIR", t.TempDir())

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, int64(50_000_000), cfg.Ingest.MaxImagePixels)

	t.Setenv("RAGBOX_MAX_IMAGE_PIXELS", "1000000")
	cfg, err = NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), cfg.Ingest.MaxImagePixels)
}

func TestLoadInvalidEnvKeepsDefault(t *testing.T) {
	t.Setenv("RAGBOX_DATA_DIR", t.TempDir())
	t.Setenv("RAGBOX_INGEST_QUEUE_SIZE", "many")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Ingest.QueueSize)
}

func TestLoadStrictFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAGBOX_DATA_DIR", t.TempDir())

	tests := []struct {
		name    string
		file    string
		body    string
		unknown bool
	}{
		{name: "unknown root key", file: "ragbox.yaml", body: "bogus: 1\n", unknown: true},
		{name: "unknown nested key", file: "ragbox.yaml", body: "ollama:\n  modle: llava\n", unknown: true},
		{name: "type mismatch", file: "ragbox.yaml", body: "ingest:\n  workers: many\n"},
		{name: "multiple documents", file: "ragbox.yaml", body: "log:\n  level: info\n---\nlog:\n  level: debug\n"},
		{name: "not yaml", file: "ragbox.toml", body: "a = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := NewLoader(path, "test").Load()
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownConfigField), err.Error())
		})
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	t.Setenv("RAGBOX_DATA_DIR", t.TempDir())
	path := writeConfig(t, t.TempDir(), "")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) Config {
		cfg := Default()
		cfg.DataDir = t.TempDir()
		cfg.resolvePaths()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, field: "Log.Level"},
		{name: "listen addr", mutate: func(c *Config) { c.Server.ListenAddr = "8080" }, field: "Server.ListenAddr"},
		{name: "ollama url", mutate: func(c *Config) { c.Ollama.BaseURL = "ftp://ollama" }, field: "Ollama.BaseURL"},
		{name: "summarize type", mutate: func(c *Config) { c.Summarize.Types = []string{"audio"} }, field: "Summarize.Types"},
		{name: "prompt file type", mutate: func(c *Config) { c.Prompts.Files = map[string]string{"video": "v.txt"} }, field: "Prompts.Files"},
		{name: "cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, field: "Cache.Backend"},
		{name: "redis addr", mutate: func(c *Config) { c.Cache.Backend = "redis"; c.Cache.Redis.Addr = "" }, field: "Cache.Redis.Addr"},
		{name: "workers", mutate: func(c *Config) { c.Ingest.Workers = 0 }, field: "Ingest.Workers"},
		{name: "image pixels", mutate: func(c *Config) { c.Ingest.MaxImagePixels = -1 }, field: "Ingest.MaxImagePixels"},
		{name: "temperature", mutate: func(c *Config) { v := 3.5; c.Ollama.Temperature = &v }, field: "Ollama.Temperature"},
		{name: "telemetry exporter", mutate: func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, field: "Telemetry.Exporter"},
	}

	require.NoError(t, Validate(valid(t)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateCreatesDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested", "data")
	cfg.resolvePaths()

	require.NoError(t, Validate(cfg))
	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
