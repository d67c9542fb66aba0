// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import "strings"

// LogLevel represents valid log levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogLevels lists the accepted levels in increasing severity.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (l LogLevel) String() string {
	return string(l)
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", ErrInvalidLogLevel
	}
	return level, nil
}

// ErrInvalidLogLevel is returned by ParseLogLevel.
var ErrInvalidLogLevel = &Error{
	Field:   "logLevel",
	Message: "invalid log level (must be: trace, debug, info, warn, error)",
}
