// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/validate"
)

var cacheBackends = []string{"memory", "redis", "badger", "none"}

// Validate validates a Config using the centralized validation package.
// DataDir is created when missing.
func Validate(cfg Config) error {
	v := validate.New()

	v.Directory("DataDir", cfg.DataDir, false)
	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("Log.Level", fmt.Sprintf("must be one of %v", validate.LogLevels), cfg.Log.Level)
	}

	v.ListenAddr("Server.ListenAddr", cfg.Server.ListenAddr)
	v.NonNegative("Server.RateLimit", cfg.Server.RateLimit)
	if cfg.Server.ShutdownTimeout <= 0 {
		v.AddError("Server.ShutdownTimeout", "must be positive", cfg.Server.ShutdownTimeout)
	}

	v.NotEmpty("Database.Path", cfg.Database.Path)
	v.Positive("Database.MaxOpenConns", cfg.Database.MaxOpenConns)

	v.URL("Ollama.BaseURL", cfg.Ollama.BaseURL, []string{"http", "https"})
	v.NotEmpty("Ollama.Model", cfg.Ollama.Model)
	v.Range("Ollama.MaxRetries", cfg.Ollama.MaxRetries, 0, 10)
	v.NonNegative("Ollama.BreakerThreshold", cfg.Ollama.BreakerThreshold)
	if cfg.Ollama.RateLimit < 0 {
		v.AddError("Ollama.RateLimit", "cannot be negative", cfg.Ollama.RateLimit)
	}
	if cfg.Ollama.Temperature != nil {
		v.FloatRange("Ollama.Temperature", *cfg.Ollama.Temperature, 0, 2)
	}

	for k := range cfg.Prompts.Files {
		if _, err := document.ParseChunkType(k); err != nil {
			v.AddError("Prompts.Files", err.Error(), k)
		}
	}
	for _, t := range cfg.Summarize.Types {
		if _, err := document.ParseChunkType(t); err != nil {
			v.AddError("Summarize.Types", err.Error(), t)
		}
	}
	v.Range("Summarize.Concurrency", cfg.Summarize.Concurrency, 1, 64)

	v.OneOf("Cache.Backend", strings.ToLower(cfg.Cache.Backend), cacheBackends)
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		v.NotEmpty("Cache.Redis.Addr", cfg.Cache.Redis.Addr)
	}

	v.Range("Ingest.Workers", cfg.Ingest.Workers, 1, 64)
	v.Positive("Ingest.QueueSize", cfg.Ingest.QueueSize)
	if cfg.Ingest.MaxFileBytes < 0 {
		v.AddError("Ingest.MaxFileBytes", "cannot be negative", cfg.Ingest.MaxFileBytes)
	}
	if cfg.Ingest.MaxImagePixels < 0 {
		v.AddError("Ingest.MaxImagePixels", "cannot be negative", cfg.Ingest.MaxImagePixels)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
