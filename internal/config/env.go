// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/ragbox/internal/log"
)

// EnvPrefix prefixes every environment key read by the Loader.
const EnvPrefix = "RAGBOX_"

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(xglog.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	if isSensitive(key) {
		logger.Debug().
			Str("key", key).
			Str("source", "environment").
			Bool("sensitive", true).
			Msg("using environment variable")
		return value
	}
	logger.Debug().
		Str("key", key).
		Str("value", value).
		Str("source", "environment").
		Msg("using environment variable")
	return value
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "token") || strings.Contains(lower, "password")
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		warnInvalid(key, v, "integer")
		return defaultValue
	}
	logValue(key).Int("value", i).Msg("using environment variable")
	return i
}

// ParseInt64 reads a 64-bit integer from environment variable or returns default value.
func ParseInt64(key string, defaultValue int64) int64 {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		warnInvalid(key, v, "integer")
		return defaultValue
	}
	logValue(key).Int64("value", i).Msg("using environment variable")
	return i
}

// ParseDuration reads a duration from environment variable in Go duration format (e.g. "5s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnInvalid(key, v, "duration")
		return defaultValue
	}
	logValue(key).Dur("value", d).Msg("using environment variable")
	return d
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		logValue(key).Bool("value", true).Msg("using environment variable")
		return true
	case "false", "0", "no":
		logValue(key).Bool("value", false).Msg("using environment variable")
		return false
	default:
		warnInvalid(key, v, "boolean")
		return defaultValue
	}
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnInvalid(key, v, "float")
		return defaultValue
	}
	logValue(key).Float64("value", f).Msg("using environment variable")
	return f
}

// ParseList reads a comma separated list. Empty items are dropped.
func ParseList(key string, defaultValue []string) []string {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	logValue(key).Strs("value", out).Msg("using environment variable")
	return out
}

// lookup treats an empty variable like an unset one.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func logValue(key string) *zerolog.Event {
	logger := xglog.WithComponent("config")
	return logger.Debug().Str("key", key).Str("source", "environment")
}

func warnInvalid(key, value, kind string) {
	logger := xglog.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", value).
		Msgf("invalid %s in environment variable, using default", kind)
}
