// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/ragbox/internal/document"
)

const documentColumns = `id, name, sha256, media_type, pages, size_bytes, created_at_ms`

// PutDocument inserts or updates doc by ID. An empty ID is assigned and a zero
// CreatedAt is set to now; the stored document is returned. Two documents
// with the same SHA-256 are rejected with ErrConflict.
func (s *Store) PutDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	if doc.ID == "" {
		doc.ID = s.newID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	doc.CreatedAt = doc.CreatedAt.UTC().Truncate(time.Millisecond)

	query := `
	INSERT INTO documents (` + documentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		sha256 = excluded.sha256,
		media_type = excluded.media_type,
		pages = excluded.pages,
		size_bytes = excluded.size_bytes
	`
	_, err := s.DB.ExecContext(ctx, query,
		doc.ID, doc.Name, doc.SHA256, doc.MediaType, doc.Pages, doc.SizeBytes, doc.CreatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return document.Document{}, fmt.Errorf("%w: document with sha256 %s already stored", ErrConflict, doc.SHA256)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("put document: %w", err)
	}
	return doc, nil
}

// GetDocument returns the document with the given ID.
func (s *Store) GetDocument(ctx context.Context, id string) (document.Document, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentBySHA returns the document whose content hashes to sha256.
func (s *Store) GetDocumentBySHA(ctx context.Context, sha256 string) (document.Document, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE sha256 = ?`, sha256)
	return scanDocument(row)
}

// ListDocuments returns documents newest first. A limit <= 0 returns all.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]document.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at_ms DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []document.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// DeleteDocument removes a document together with its chunks and summaries.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (document.Document, error) {
	var doc document.Document
	var createdMs int64
	err := row.Scan(&doc.ID, &doc.Name, &doc.SHA256, &doc.MediaType, &doc.Pages, &doc.SizeBytes, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, ErrNotFound
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.CreatedAt = msToTime(createdMs)
	return doc, nil
}
