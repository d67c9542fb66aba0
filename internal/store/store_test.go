// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/jobs"
	"github.com/ManuGH/ragbox/internal/persistence/sqlite"
)

var ctx = context.Background()

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "ragbox.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	var n int
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	return s
}

func putDoc(t *testing.T, s *Store, name, sha string) document.Document {
	t.Helper()
	doc, err := s.PutDocument(ctx, document.Document{Name: name, SHA256: sha, MediaType: "application/pdf", Pages: 3, SizeBytes: 1024})
	require.NoError(t, err)
	return doc
}

func sampleChunks() document.Chunks {
	return document.Chunks{
		{Type: document.ChunkText, Content: "Introduction", SourcePage: 1, Metadata: map[string]string{document.MetaKind: document.KindTitle, document.MetaLevel: "1"}},
		{Type: document.ChunkText, Content: "Body text.", SourcePage: 1},
		{Type: document.ChunkTable, Content: "| a |\n| --- |\n| 1 |", SourcePage: 2, Metadata: map[string]string{document.MetaFormat: document.FormatMarkdown, document.MetaCaption: "Numbers"}},
		{Type: document.ChunkImage, Content: "aW1n", SourcePage: 3, Metadata: map[string]string{document.MetaCaption: "Figure 1"}},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragbox.db")
	s, err := Open(ctx, path, sqlite.Config{})
	require.NoError(t, err)

	var version int
	require.NoError(t, s.DB.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, sqlite.Config{})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))
	assert.Equal(t, path, s.Path())
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragbox.db")
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(ctx, path, sqlite.DefaultConfig())
	assert.ErrorContains(t, err, "newer than supported")
}

func TestDocuments(t *testing.T) {
	s := openTestStore(t)

	doc := putDoc(t, s, "attention.pdf", "sha-a")
	assert.Equal(t, "id-001", doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("GetDocument mismatch (-want +got):\n%s", diff)
	}

	bySHA, err := s.GetDocumentBySHA(ctx, "sha-a")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, bySHA.ID)

	_, err = s.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetDocumentBySHA(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.PutDocument(ctx, document.Document{Name: "copy.pdf", SHA256: "sha-a", MediaType: "application/pdf"})
	assert.ErrorIs(t, err, ErrConflict)

	doc.Pages = 7
	updated, err := s.PutDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, doc.CreatedAt, updated.CreatedAt)
	got, err = s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Pages)
}

func TestListDocumentsPaging(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		putDoc(t, s, fmt.Sprintf("doc-%d.pdf", i), fmt.Sprintf("sha-%d", i))
	}

	all, err := s.ListDocuments(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "doc-4.pdf", all[0].Name, "newest first")

	page, err := s.ListDocuments(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "doc-2.pdf", page[0].Name)
	assert.Equal(t, "doc-1.pdf", page[1].Name)

	n, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	empty := openTestStore(t)
	docs, err := empty.ListDocuments(ctx, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestChunks(t *testing.T) {
	s := openTestStore(t)
	doc := putDoc(t, s, "attention.pdf", "sha-a")

	stored, err := s.PutChunks(ctx, doc.ID, sampleChunks())
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for i, c := range stored {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.NotEmpty(t, c.ID)
	}

	got, err := s.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(stored, got); diff != "" {
		t.Errorf("ListChunks mismatch (-want +got):\n%s", diff)
	}

	tables, err := s.ListChunks(ctx, doc.ID, document.ChunkTable)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "Numbers", tables[0].Caption())

	visual, err := s.ListChunks(ctx, doc.ID, document.ChunkTable, document.ChunkImage)
	require.NoError(t, err)
	assert.Len(t, visual, 2)

	one, err := s.GetChunk(ctx, stored[3].ID)
	require.NoError(t, err)
	assert.Equal(t, "Figure 1", one.Caption())
	_, err = s.GetChunk(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.PutChunks(ctx, "missing", sampleChunks())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutChunksReplacesAndDropsSummaries(t *testing.T) {
	s := openTestStore(t)
	doc := putDoc(t, s, "attention.pdf", "sha-a")

	stored, err := s.PutChunks(ctx, doc.ID, sampleChunks())
	require.NoError(t, err)
	require.NoError(t, s.PutSummary(ctx, stored[0].ID, "llava", "intro"))

	replaced, err := s.PutChunks(ctx, doc.ID, sampleChunks()[:1])
	require.NoError(t, err)
	require.Len(t, replaced, 1)

	got, err := s.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	sums, err := s.ListSummaries(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestSummaries(t *testing.T) {
	s := openTestStore(t)
	doc := putDoc(t, s, "attention.pdf", "sha-a")
	stored, err := s.PutChunks(ctx, doc.ID, sampleChunks())
	require.NoError(t, err)

	require.NoError(t, s.PutSummary(ctx, stored[3].ID, "llava", "a diagram"))
	require.NoError(t, s.PutSummary(ctx, stored[0].ID, "llava", "first draft"))
	require.NoError(t, s.PutSummary(ctx, stored[0].ID, "llama3", "the introduction"))

	sums, err := s.ListSummaries(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, stored[0].ID, sums[0].ChunkID)
	assert.Equal(t, "the introduction", sums[0].Text)
	assert.Equal(t, "llama3", sums[0].Model)
	assert.Equal(t, document.ChunkText, sums[0].ChunkType)
	assert.Equal(t, 3, sums[1].Seq)
	assert.Equal(t, document.ChunkImage, sums[1].ChunkType)
	assert.Equal(t, 3, sums[1].SourcePage)

	err = s.PutSummary(ctx, "missing", "llava", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := openTestStore(t)
	doc := putDoc(t, s, "attention.pdf", "sha-a")
	stored, err := s.PutChunks(ctx, doc.ID, sampleChunks())
	require.NoError(t, err)
	require.NoError(t, s.PutSummary(ctx, stored[1].ID, "llava", "body"))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrNotFound)

	var chunks, summaries int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&chunks))
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM summaries`).Scan(&summaries))
	assert.Zero(t, chunks)
	assert.Zero(t, summaries)

	// the hash is free again
	putDoc(t, s, "attention.pdf", "sha-a")
}

func TestJobs(t *testing.T) {
	s := openTestStore(t)

	j, err := s.PutJob(ctx, jobs.Job{Kind: jobs.KindIngest, State: jobs.StateQueued, SourceName: "attention.pdf", Summarize: true})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(j, got); diff != "" {
		t.Errorf("GetJob mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, got.Transition(jobs.StateParsing, s.now()))
	got.DocumentID = "doc-1"
	got.ChunksTotal = 4
	require.NoError(t, s.UpdateJob(ctx, got))
	require.NoError(t, got.Transition(jobs.StateCompleted, s.now()))
	got.ChunksSummarized = 4
	require.NoError(t, s.UpdateJob(ctx, got))

	final, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCompleted, final.State)
	assert.Equal(t, "doc-1", final.DocumentID)
	assert.Equal(t, 4, final.ChunksSummarized)
	assert.True(t, final.Summarize)
	require.NotNil(t, final.FinishedAt)
	assert.True(t, final.FinishedAt.After(final.CreatedAt))

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateJob(ctx, jobs.Job{ID: "missing"}), ErrNotFound)
	_, err = s.PutJob(ctx, jobs.Job{ID: j.ID, Kind: jobs.KindIngest, State: jobs.StateQueued})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListJobsFilter(t *testing.T) {
	s := openTestStore(t)
	for _, st := range []jobs.State{jobs.StateQueued, jobs.StateCompleted, jobs.StateFailed, jobs.StateCompleted} {
		_, err := s.PutJob(ctx, jobs.Job{Kind: jobs.KindIngest, State: st, DocumentID: "doc-" + string(st)})
		require.NoError(t, err)
	}

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, jobs.StateCompleted, all[0].State, "newest first")

	completed, err := s.ListJobs(ctx, JobFilter{State: jobs.StateCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	byDoc, err := s.ListJobs(ctx, JobFilter{DocumentID: "doc-failed"})
	require.NoError(t, err)
	require.Len(t, byDoc, 1)

	limited, err := s.ListJobs(ctx, JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, jobs.StateFailed, limited[0].State)
}

func TestMarkInterruptedJobs(t *testing.T) {
	s := openTestStore(t)
	states := []jobs.State{jobs.StateQueued, jobs.StateParsing, jobs.StateSummarizing, jobs.StateCompleted, jobs.StateFailed}
	ids := make(map[jobs.State]string)
	for _, st := range states {
		j, err := s.PutJob(ctx, jobs.Job{Kind: jobs.KindIngest, State: st})
		require.NoError(t, err)
		ids[st] = j.ID
	}

	n, err := s.MarkInterruptedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, st := range []jobs.State{jobs.StateQueued, jobs.StateParsing, jobs.StateSummarizing} {
		j, err := s.GetJob(ctx, ids[st])
		require.NoError(t, err)
		assert.Equal(t, jobs.StateFailed, j.State)
		assert.Equal(t, jobs.ReasonInterrupted, j.Error)
		assert.NotNil(t, j.FinishedAt)
	}
	done, err := s.GetJob(ctx, ids[jobs.StateCompleted])
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCompleted, done.State)

	n, err = s.MarkInterruptedJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
