// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists documents, chunks, summaries and jobs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/persistence/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

var migrations = []string{
	// 1: documents, chunks, summaries
	`
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sha256 TEXT NOT NULL UNIQUE,
		media_type TEXT NOT NULL,
		pages INTEGER NOT NULL DEFAULT 0,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at_ms);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		source_page INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		UNIQUE(document_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_type ON chunks(document_id, type);

	CREATE TABLE IF NOT EXISTS summaries (
		chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		model TEXT NOT NULL,
		summary TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	);
	`,
	// 2: jobs
	`
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		summarize INTEGER NOT NULL DEFAULT 0,
		force INTEGER NOT NULL DEFAULT 0,
		deduplicated INTEGER NOT NULL DEFAULT 0,
		chunks_total INTEGER NOT NULL DEFAULT 0,
		chunks_summarized INTEGER NOT NULL DEFAULT 0,
		chunks_failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		finished_at_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
	`,
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = len(migrations)

// Store is the SQLite backed repository.
type Store struct {
	DB     *sql.DB
	path   string
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// Open opens (creating if needed) and migrates the database at path.
func Open(ctx context.Context, path string, cfg sqlite.Config) (*Store, error) {
	db, err := sqlite.Open(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{
		DB:     db,
		path:   path,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: xglog.WithComponent("store"),
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for v := current; v < SchemaVersion; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "store.migrated").
		Int("from", current).
		Int("to", SchemaVersion).
		Msg("database schema migrated")
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMsToTime(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := msToTime(ms.Int64)
	return &t
}

func timeToNullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
