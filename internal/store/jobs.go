// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ManuGH/ragbox/internal/jobs"
	xglog "github.com/ManuGH/ragbox/internal/log"
)

const jobColumns = `id, kind, state, document_id, source_name, summarize, force, deduplicated,
	chunks_total, chunks_summarized, chunks_failed, error, created_at_ms, updated_at_ms, finished_at_ms`

// PutJob inserts a new job. An empty ID is assigned; the stored job is returned.
func (s *Store) PutJob(ctx context.Context, j jobs.Job) (jobs.Job, error) {
	if j.ID == "" {
		j.ID = s.newID()
	}
	now := s.now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Kind), string(j.State), j.DocumentID, j.SourceName, j.Summarize, j.Force, j.Deduplicated,
		j.ChunksTotal, j.ChunksSummarized, j.ChunksFailed, j.Error,
		j.CreatedAt.UnixMilli(), j.UpdatedAt.UnixMilli(), timeToNullMs(j.FinishedAt),
	)
	if isUniqueViolation(err) {
		return jobs.Job{}, fmt.Errorf("%w: job %s", ErrConflict, j.ID)
	}
	if err != nil {
		return jobs.Job{}, fmt.Errorf("put job: %w", err)
	}
	return normalizeJobTimes(j), nil
}

// UpdateJob overwrites the mutable fields of an existing job.
func (s *Store) UpdateJob(ctx context.Context, j jobs.Job) error {
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = s.now()
	}
	res, err := s.DB.ExecContext(ctx, `
	UPDATE jobs SET
		state = ?,
		document_id = ?,
		deduplicated = ?,
		chunks_total = ?,
		chunks_summarized = ?,
		chunks_failed = ?,
		error = ?,
		updated_at_ms = ?,
		finished_at_ms = ?
	WHERE id = ?`,
		string(j.State), j.DocumentID, j.Deduplicated,
		j.ChunksTotal, j.ChunksSummarized, j.ChunksFailed, j.Error,
		j.UpdatedAt.UnixMilli(), timeToNullMs(j.FinishedAt), j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob returns one job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (jobs.Job, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	State      jobs.State
	DocumentID string
	Limit      int
	Offset     int
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if f.State != "" {
		query += ` AND state = ?`
		args = append(args, string(f.State))
	}
	if f.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, f.DocumentID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at_ms DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []jobs.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkInterruptedJobs fails every job left in a non-terminal state, which
// happens when the process stops while jobs are queued or running.
func (s *Store) MarkInterruptedJobs(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	res, err := s.DB.ExecContext(ctx, `
	UPDATE jobs SET state = ?, error = ?, updated_at_ms = ?, finished_at_ms = ?
	WHERE state NOT IN (?, ?)`,
		string(jobs.StateFailed), jobs.ReasonInterrupted, now, now,
		string(jobs.StateCompleted), string(jobs.StateFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	if n > 0 {
		s.logger.Warn().
			Str(xglog.FieldEvent, "store.jobs_interrupted").
			Int64("count", n).
			Msg("marked unfinished jobs as failed")
	}
	return int(n), nil
}

func scanJob(row scanner) (jobs.Job, error) {
	var j jobs.Job
	var kind, state string
	var createdMs, updatedMs int64
	var finishedMs sql.NullInt64
	err := row.Scan(&j.ID, &kind, &state, &j.DocumentID, &j.SourceName, &j.Summarize, &j.Force, &j.Deduplicated,
		&j.ChunksTotal, &j.ChunksSummarized, &j.ChunksFailed, &j.Error, &createdMs, &updatedMs, &finishedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Job{}, ErrNotFound
	}
	if err != nil {
		return jobs.Job{}, fmt.Errorf("scan job: %w", err)
	}
	j.Kind = jobs.Kind(kind)
	j.State = jobs.State(state)
	j.CreatedAt = msToTime(createdMs)
	j.UpdatedAt = msToTime(updatedMs)
	j.FinishedAt = nullMsToTime(finishedMs)
	return j, nil
}

func normalizeJobTimes(j jobs.Job) jobs.Job {
	j.CreatedAt = msToTime(j.CreatedAt.UnixMilli())
	j.UpdatedAt = msToTime(j.UpdatedAt.UnixMilli())
	if j.FinishedAt != nil {
		t := msToTime(j.FinishedAt.UnixMilli())
		j.FinishedAt = &t
	}
	return j
}
