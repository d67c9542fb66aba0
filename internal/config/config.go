// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the ragbox configuration from defaults, an optional
// YAML file and RAGBOX_* environment variables, and reloads it on change.
package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/ManuGH/ragbox/internal/document"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
var ErrUnknownConfigField = errors.New("unknown config field")

// Config is the complete runtime configuration.
type Config struct {
	// Version is the binary version; never read from file or env.
	Version string `yaml:"-"`

	DataDir   string          `yaml:"data_dir"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// ServerConfig configures the HTTP daemon.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AuthToken enables bearer authentication on /api/v1 when set.
	AuthToken string `yaml:"auth_token"`
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int `yaml:"rate_limit"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

// OllamaConfig configures the model client.
type OllamaConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature *float64      `yaml:"temperature"`
	KeepAlive   string        `yaml:"keep_alive"`
	MaxRetries  int           `yaml:"max_retries"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit        float64       `yaml:"rate_limit"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// PromptsConfig locates the prompt templates.
type PromptsConfig struct {
	Dir   string            `yaml:"dir"`
	Files map[string]string `yaml:"files"`
	Watch bool              `yaml:"watch"`
}

// SummarizeConfig controls summary generation.
type SummarizeConfig struct {
	// Types restricts summarization to these chunk types; empty means all.
	Types       []string      `yaml:"types"`
	Concurrency int           `yaml:"concurrency"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// CacheConfig selects the summary cache backend.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Redis           RedisConfig   `yaml:"redis"`
	BadgerDir       string        `yaml:"badger_dir"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// IngestConfig sizes the job pipeline.
type IngestConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	MaxFileBytes int64         `yaml:"max_file_bytes"`
	// MaxImagePixels bounds width*height of decoded images; zero disables it.
	MaxImagePixels int64 `yaml:"max_image_pixels"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Default returns the built-in configuration. Paths below DataDir are left
// empty and derived by the Loader once DataDir is final.
func Default() Config {
	return Config{
		DataDir: "data",
		Log:     LogConfig{Level: "info", Service: "ragbox"},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       120,
		},
		Database: DatabaseConfig{BusyTimeout: 5 * time.Second, MaxOpenConns: 8},
		Ollama: OllamaConfig{
			BaseURL:          "http://localhost:11434",
			Model:            "llava",
			Timeout:          120 * time.Second,
			KeepAlive:        "5m",
			MaxRetries:       2,
			RateLimit:        4,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Prompts:   PromptsConfig{Watch: true},
		Summarize: SummarizeConfig{Concurrency: 2, CacheTTL: 7 * 24 * time.Hour},
		Cache: CacheConfig{
			Backend:         "memory",
			CleanupInterval: time.Minute,
			Redis:           RedisConfig{Addr: "localhost:6379", Prefix: "ragbox:summary:"},
		},
		Ingest: IngestConfig{
			Workers:      2,
			QueueSize:    64,
			JobTimeout:   30 * time.Minute,
			MaxFileBytes:   100 << 20,
			MaxImagePixels: 50_000_000,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			ServiceName:  "ragbox",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}

// UploadDir is where HTTP uploads are spooled before parsing.
func (c Config) UploadDir() string { return filepath.Join(c.DataDir, "uploads") }

// ChunkTypes returns the summarize type filter. Invalid entries are rejected
// by Validate, so they are skipped here.
func (c Config) ChunkTypes() []document.ChunkType {
	out := make([]document.ChunkType, 0, len(c.Summarize.Types))
	for _, s := range c.Summarize.Types {
		if t, err := document.ParseChunkType(s); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// PromptFiles returns the per-type template file overrides.
func (c Config) PromptFiles() map[document.ChunkType]string {
	out := make(map[document.ChunkType]string, len(c.Prompts.Files))
	for k, v := range c.Prompts.Files {
		if t, err := document.ParseChunkType(k); err == nil {
			out[t] = v
		}
	}
	return out
}

// resolvePaths fills the paths derived from DataDir.
func (c *Config) resolvePaths() {
	if abs, err := filepath.Abs(c.DataDir); err == nil {
		c.DataDir = abs
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "ragbox.db")
	}
	if c.Prompts.Dir == "" {
		c.Prompts.Dir = filepath.Join(c.DataDir, "prompts")
	}
	if c.Cache.BadgerDir == "" {
		c.Cache.BadgerDir = filepath.Join(c.DataDir, "cache")
	}
}
