// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/ingest"
	"github.com/ManuGH/ragbox/internal/jobs"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/parser"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	// multipart headers and form fields on top of the file itself
	multipartOverhead = 1 << 20
	formMemory        = 8 << 20
)

// DocumentView is a stored document with its chunk counts.
type DocumentView struct {
	document.Document
	ChunkCounts map[document.ChunkType]int `json:"chunk_counts"`
}

// DocumentList is one page of documents.
type DocumentList struct {
	Documents []document.Document `json:"documents"`
	Total     int                  `json:"total"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

// handleUpload accepts a multipart "file" part and queues an ingest job.
// POST /api/v1/documents
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			writeError(w, r, fmt.Errorf("%w: %v", parser.ErrTooLarge, err))
			return
		}
		writeError(w, r, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	opts, err := uploadOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: multipart field \"file\" is required", errBadRequest))
		return
	}
	defer file.Close()

	job, err := s.ingest.Submit(r.Context(), ingest.Source{Name: header.Filename, Reader: file}, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "api.upload").
		Str(xglog.FieldJobID, job.ID).
		Str("name", header.Filename).
		Int64("size", header.Size).
		Bool("deduplicated", job.Deduplicated).
		Msg("document upload accepted")

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, jobStatus(job), job)
}

func uploadOptions(r *http.Request) (ingest.Options, error) {
	var opts ingest.Options
	var err error
	if opts.Summarize, err = formBool(r, "summarize"); err != nil {
		return opts, err
	}
	if opts.Force, err = formBool(r, "force"); err != nil {
		return opts, err
	}
	return opts, nil
}

func formBool(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", errBadRequest, key, v)
	}
	return b, nil
}

// jobStatus is 200 for jobs that finished during submission (duplicates)
// and 202 otherwise.
func jobStatus(j jobs.Job) int {
	if j.State.Terminal() {
		return http.StatusOK
	}
	return http.StatusAccepted
}

// GET /api/v1/documents
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := s.store.ListDocuments(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := s.store.CountDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentList{Documents: docs, Total: total, Limit: limit, Offset: offset})
}

// GET /api/v1/documents/{id}
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	chunks, err := s.store.ListChunks(r.Context(), doc.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentView{Document: doc, ChunkCounts: chunks.Counts()})
}

// DELETE /api/v1/documents/{id}
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "api.document_deleted").
		Str(xglog.FieldDocumentID, id).
		Msg("document deleted")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/documents/{id}/chunks?type=text,table
func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	types, err := chunkTypes(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	chunks, err := s.store.ListChunks(r.Context(), doc.ID, types...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func chunkTypes(r *http.Request) ([]document.ChunkType, error) {
	var out []document.ChunkType
	for _, raw := range r.URL.Query()["type"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, err := document.ParseChunkType(part)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// GET /api/v1/documents/{id}/summaries
func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	summaries, err := s.store.ListSummaries(r.Context(), doc.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

// POST /api/v1/documents/{id}/summarize
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	job, err := s.ingest.SubmitSummarize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// GET /api/v1/documents/{id}/markdown
func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	chunks, err := s.store.ListChunks(r.Context(), doc.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	md := parser.ReconstructMarkdown(&parser.Result{Document: doc, Chunks: chunks})

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", markdownName(doc.Name)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

func markdownName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if name == "" {
		name = "document"
	}
	return name + ".md"
}

func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("%w: limit must be a positive integer", errBadRequest)
		}
		limit = min(limit, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be a non-negative integer", errBadRequest)
		}
	}
	return limit, offset, nil
}
