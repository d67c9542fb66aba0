// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/ragbox/internal/jobs"
	"github.com/ManuGH/ragbox/internal/store"
)

var jobStates = map[jobs.State]bool{
	jobs.StateQueued:      true,
	jobs.StateParsing:     true,
	jobs.StateSummarizing: true,
	jobs.StateCompleted:   true,
	jobs.StateFailed:      true,
}

// GET /api/v1/jobs?state=&document_id=&limit=&offset=
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := store.JobFilter{
		DocumentID: strings.TrimSpace(r.URL.Query().Get("document_id")),
		Limit:      limit,
		Offset:     offset,
	}
	if v := strings.TrimSpace(r.URL.Query().Get("state")); v != "" {
		st := jobs.State(strings.ToLower(v))
		if !jobStates[st] {
			writeError(w, r, fmt.Errorf("%w: unknown job state %q", errBadRequest, v))
			return
		}
		filter.State = st
	}

	list, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list, "limit": limit, "offset": offset})
}

// GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
