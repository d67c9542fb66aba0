// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/ragbox/internal/document"
)

const chunkColumns = `id, document_id, seq, type, content, source_page, metadata_json`

// PutChunks replaces every chunk of docID with chunks. Chunks are renumbered
// in the given order and missing IDs are assigned; the stored chunks are
// returned. Summaries of replaced chunks are dropped.
func (s *Store) PutChunks(ctx context.Context, docID string, chunks document.Chunks) (document.Chunks, error) {
	out := make(document.Chunks, len(chunks))
	copy(out, chunks)
	out.Renumber(docID)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = s.newID()
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put chunks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, docID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("put chunks: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return nil, fmt.Errorf("put chunks: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("put chunks: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range out {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("put chunks: metadata: %w", err)
		}
		if c.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, c.ID, docID, c.Seq, string(c.Type), c.Content, c.SourcePage, string(meta)); err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: chunk %s", ErrConflict, c.ID)
			}
			return nil, fmt.Errorf("put chunks: insert seq %d: %w", c.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put chunks: commit: %w", err)
	}
	return out, nil
}

// ListChunks returns the chunks of docID in document order, restricted to
// types when any are given.
func (s *Store) ListChunks(ctx context.Context, docID string, types ...document.ChunkType) (document.Chunks, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE document_id = ?`
	args := []any{docID}
	if len(types) > 0 {
		query += ` AND type IN (?` + strings.Repeat(`, ?`, len(types)-1) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	chunks := document.Chunks{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk returns one chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id string) (document.Chunk, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

func scanChunk(row scanner) (document.Chunk, error) {
	var c document.Chunk
	var typ, meta string
	err := row.Scan(&c.ID, &c.DocumentID, &c.Seq, &typ, &c.Content, &c.SourcePage, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Chunk{}, ErrNotFound
	}
	if err != nil {
		return document.Chunk{}, fmt.Errorf("scan chunk: %w", err)
	}
	c.Type = document.ChunkType(typ)
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return document.Chunk{}, fmt.Errorf("decode chunk %s metadata: %w", c.ID, err)
		}
	}
	return c, nil
}
