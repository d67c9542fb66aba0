// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/ragbox/internal/document"
)

// Summary is the model-written summary of one chunk.
type Summary struct {
	ChunkID    string             `json:"chunk_id"`
	DocumentID string             `json:"document_id"`
	Seq        int                `json:"seq"`
	ChunkType  document.ChunkType `json:"chunk_type"`
	SourcePage int                `json:"source_page"`
	Model      string             `json:"model"`
	Text       string             `json:"summary"`
	CreatedAt  time.Time          `json:"created_at"`
}

// PutSummary stores the summary of chunkID, replacing an earlier one.
func (s *Store) PutSummary(ctx context.Context, chunkID, model, text string) error {
	query := `
	INSERT INTO summaries (chunk_id, model, summary, created_at_ms)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(chunk_id) DO UPDATE SET
		model = excluded.model,
		summary = excluded.summary,
		created_at_ms = excluded.created_at_ms
	`
	_, err := s.DB.ExecContext(ctx, query, chunkID, model, text, s.now().UnixMilli())
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("put summary for chunk %s: %w", chunkID, ErrNotFound)
		}
		return fmt.Errorf("put summary: %w", err)
	}
	return nil
}

// ListSummaries returns the summaries of docID in chunk order.
func (s *Store) ListSummaries(ctx context.Context, docID string) ([]Summary, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT s.chunk_id, c.document_id, c.seq, c.type, c.source_page, s.model, s.summary, s.created_at_ms
	FROM summaries s
	JOIN chunks c ON c.id = s.chunk_id
	WHERE c.document_id = ?
	ORDER BY c.seq`, docID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		var typ string
		var createdMs int64
		if err := rows.Scan(&sum.ChunkID, &sum.DocumentID, &sum.Seq, &typ, &sum.SourcePage, &sum.Model, &sum.Text, &createdMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.ChunkType = document.ChunkType(typ)
		sum.CreatedAt = msToTime(createdMs)
		out = append(out, sum)
	}
	return out, rows.Err()
}

