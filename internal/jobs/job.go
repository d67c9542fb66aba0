// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs defines ingestion jobs and their lifecycle.
package jobs

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle position of a job.
type State string

const (
	StateQueued      State = "queued"
	StateParsing     State = "parsing"
	StateSummarizing State = "summarizing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Kind distinguishes what a job does.
type Kind string

const (
	// KindIngest parses a new source and optionally summarizes it.
	KindIngest Kind = "ingest"
	// KindSummarize (re)summarizes an already stored document.
	KindSummarize Kind = "summarize"
)

// ReasonInterrupted is recorded on jobs that were running when the process stopped.
const ReasonInterrupted = "interrupted"

// ErrInvalidTransition is returned by Transition for edges outside the lifecycle.
var ErrInvalidTransition = errors.New("invalid job state transition")

var transitions = map[State][]State{
	StateQueued:      {StateParsing, StateSummarizing, StateCompleted, StateFailed},
	StateParsing:     {StateSummarizing, StateCompleted, StateFailed},
	StateSummarizing: {StateCompleted, StateFailed},
}

// Job is a unit of background work against one source document.
type Job struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	State        State  `json:"state"`
	DocumentID   string `json:"document_id,omitempty"`
	SourceName   string `json:"source_name,omitempty"`
	Summarize    bool   `json:"summarize"`
	Force        bool   `json:"force"`
	Deduplicated bool   `json:"deduplicated"`

	ChunksTotal      int `json:"chunks_total"`
	ChunksSummarized int `json:"chunks_summarized"`
	ChunksFailed     int `json:"chunks_failed"`

	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Transition moves the job to state to at time now.
func (j *Job) Transition(to State, now time.Time) error {
	allowed := false
	for _, s := range transitions[j.State] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	j.UpdatedAt = now
	if to.Terminal() {
		t := now
		j.FinishedAt = &t
	}
	return nil
}

// Fail moves the job to StateFailed recording reason.
func (j *Job) Fail(reason string, now time.Time) error {
	if err := j.Transition(StateFailed, now); err != nil {
		return err
	}
	j.Error = reason
	return nil
}

// Duration is the time from creation until the job finished, or until now.
func (j *Job) Duration(now time.Time) time.Duration {
	if j.FinishedAt != nil {
		return j.FinishedAt.Sub(j.CreatedAt)
	}
	return now.Sub(j.CreatedAt)
}
