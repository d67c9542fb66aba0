// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stdout)
	Service string    // optional service name attached to every log entry
	Version string    // optional build version attached to every log entry
}

var (
	mu         sync.RWMutex
	configured bool
	base       zerolog.Logger
)

// Configure initialises the global zerolog logger. The first call wins unless
// Reconfigure is used; later calls only adjust the level.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if configured {
		setLevel(cfg.Level)
		return
	}
	configured = true
	build(cfg)
}

// Reconfigure replaces the global logger, e.g. after the config file was loaded.
func Reconfigure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	configured = true
	build(cfg)
}

// SetLevel changes the global level at runtime (config hot reload).
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	setLevel(level)
}

func build(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = os.Getenv("LOG_SERVICE")
		if service == "" {
			service = "ragbox"
		}
	}
	version := cfg.Version
	if version == "" {
		version = os.Getenv("VERSION")
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

func setLevel(level string) {
	if level == "" {
		return
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(parsed)
	}
}

func logger() zerolog.Logger {
	mu.RLock()
	if configured {
		l := base
		mu.RUnlock()
		return l
	}
	mu.RUnlock()
	Configure(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}

// Derive attaches arbitrary fields to a child logger using the provided builder function.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}
