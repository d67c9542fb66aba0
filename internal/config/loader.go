// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath skips
// the file layer.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, possibly empty.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt64(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseList(EnvPrefix+key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// The file is parsed strictly, env overrides are applied, derived paths are
// resolved and the result is validated.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.resolvePaths()
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields are rejected to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv applies RAGBOX_* overrides on top of cfg.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)

	// LOG_LEVEL without prefix is honoured as a fallback
	cfg.Log.Level = ParseString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Server.ListenAddr = l.envString("LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.ReadTimeout = l.envDuration("READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = l.envDuration("WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = l.envDuration("IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.AuthToken = l.envString("API_TOKEN", cfg.Server.AuthToken)
	cfg.Server.RateLimit = l.envInt("RATE_LIMIT", cfg.Server.RateLimit)

	cfg.Database.Path = l.envString("DB_PATH", cfg.Database.Path)
	cfg.Database.BusyTimeout = l.envDuration("DB_BUSY_TIMEOUT", cfg.Database.BusyTimeout)
	cfg.Database.MaxOpenConns = l.envInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.Ollama.BaseURL = l.envString("OLLAMA_URL", cfg.Ollama.BaseURL)
	cfg.Ollama.Model = l.envString("OLLAMA_MODEL", cfg.Ollama.Model)
	cfg.Ollama.Timeout = l.envDuration("OLLAMA_TIMEOUT", cfg.Ollama.Timeout)
	cfg.Ollama.KeepAlive = l.envString("OLLAMA_KEEP_ALIVE", cfg.Ollama.KeepAlive)
	cfg.Ollama.MaxRetries = l.envInt("OLLAMA_MAX_RETRIES", cfg.Ollama.MaxRetries)
	cfg.Ollama.RateLimit = l.envFloat("OLLAMA_RATE_LIMIT", cfg.Ollama.RateLimit)
	cfg.Ollama.BreakerThreshold = l.envInt("OLLAMA_BREAKER_THRESHOLD", cfg.Ollama.BreakerThreshold)
	cfg.Ollama.BreakerReset = l.envDuration("OLLAMA_BREAKER_RESET", cfg.Ollama.BreakerReset)
	if _, ok := lookup(EnvPrefix + "OLLAMA_TEMPERATURE"); ok {
		var cur float64
		if cfg.Ollama.Temperature != nil {
			cur = *cfg.Ollama.Temperature
		}
		t := l.envFloat("OLLAMA_TEMPERATURE", cur)
		cfg.Ollama.Temperature = &t
	}

	cfg.Prompts.Dir = l.envString("PROMPTS_DIR", cfg.Prompts.Dir)
	cfg.Prompts.Watch = l.envBool("PROMPTS_WATCH", cfg.Prompts.Watch)

	cfg.Summarize.Types = l.envList("SUMMARIZE_TYPES", cfg.Summarize.Types)
	cfg.Summarize.Concurrency = l.envInt("SUMMARIZE_CONCURRENCY", cfg.Summarize.Concurrency)
	cfg.Summarize.CacheTTL = l.envDuration("SUMMARIZE_CACHE_TTL", cfg.Summarize.CacheTTL)

	cfg.Cache.Backend = l.envString("CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.CleanupInterval = l.envDuration("CACHE_CLEANUP_INTERVAL", cfg.Cache.CleanupInterval)
	cfg.Cache.Redis.Addr = l.envString("REDIS_ADDR", cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = l.envString("REDIS_PASSWORD", cfg.Cache.Redis.Password)
	cfg.Cache.Redis.DB = l.envInt("REDIS_DB", cfg.Cache.Redis.DB)
	cfg.Cache.Redis.Prefix = l.envString("REDIS_PREFIX", cfg.Cache.Redis.Prefix)
	cfg.Cache.BadgerDir = l.envString("BADGER_DIR", cfg.Cache.BadgerDir)

	cfg.Ingest.Workers = l.envInt("INGEST_WORKERS", cfg.Ingest.Workers)
	cfg.Ingest.QueueSize = l.envInt("INGEST_QUEUE_SIZE", cfg.Ingest.QueueSize)
	cfg.Ingest.JobTimeout = l.envDuration("INGEST_JOB_TIMEOUT", cfg.Ingest.JobTimeout)
	cfg.Ingest.MaxFileBytes = l.envInt64("MAX_FILE_BYTES", cfg.Ingest.MaxFileBytes)
	cfg.Ingest.MaxImagePixels = l.envInt64("MAX_IMAGE_PIXELS", cfg.Ingest.MaxImagePixels)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.ServiceName = l.envString("TELEMETRY_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
