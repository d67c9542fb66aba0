// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sqlite opens SQLite databases with the pragmas every store relies on.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// Config holds connection pool parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the pool settings used by ragbox.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
	}
}

// DSN builds the connection string. The pragmas are part of the DSN so they
// apply to every pooled connection, not just the first one.
func DSN(path string, cfg Config) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds())
}

// Open creates the parent directory if needed and returns a verified pool.
func Open(ctx context.Context, path string, cfg Config) (*sql.DB, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", DSN(path, cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}
