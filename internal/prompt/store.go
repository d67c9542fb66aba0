// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package prompt loads the per chunk type prompt templates used for
// summarization and renders them for individual chunks.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/ragbox/internal/document"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
)

const (
	// FallbackMissing is used when no template file exists for a chunk type.
	FallbackMissing = "Summarize the following content as best as possible:"
	// FallbackReadError is used when a template file exists but cannot be read.
	FallbackReadError = "Summarize the following content:"

	// Placeholder is replaced by the chunk text in text templates.
	Placeholder = "{text_content}"
	// placeholderBraced is the doubled-brace spelling some templates use.
	placeholderBraced = "{{text_content}}"
)

// DefaultFiles maps each chunk type to its template file name.
func DefaultFiles() map[document.ChunkType]string {
	return map[document.ChunkType]string{
		document.ChunkText:  "text.txt",
		document.ChunkTable: "table.txt",
		document.ChunkImage: "image.txt",
	}
}

// Store resolves and caches prompt templates from a directory.
type Store struct {
	dir    string
	files  map[document.ChunkType]string
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[document.ChunkType]string
}

// Option configures a Store.
type Option func(*Store)

// WithFile overrides the template file for one chunk type. Relative names are
// resolved against the store directory.
func WithFile(t document.ChunkType, name string) Option {
	return func(s *Store) {
		if name != "" {
			s.files[t] = name
		}
	}
}

// NewStore returns a store reading templates from dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		files:  DefaultFiles(),
		logger: xglog.WithComponent("prompt"),
		cache:  make(map[document.ChunkType]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the template directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the template file used for t, or "" when none is configured.
func (s *Store) Path(t document.ChunkType) string {
	name, ok := s.files[t]
	if !ok {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Load returns the template for t. Successfully read templates are cached;
// fallbacks are not, so a template created later is picked up.
func (s *Store) Load(t document.ChunkType) string {
	s.mu.RLock()
	tpl, ok := s.cache[t]
	s.mu.RUnlock()
	if ok {
		return tpl
	}

	path := s.Path(t)
	if path == "" {
		s.logger.Error().Str(xglog.FieldChunkType, string(t)).Msg("no prompt template configured for chunk type")
		metrics.IncPromptFallback(string(t))
		return FallbackMissing
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Error().
			Str(xglog.FieldChunkType, string(t)).
			Str(xglog.FieldPath, path).
			Msg("prompt template not found")
		metrics.IncPromptFallback(string(t))
		return FallbackMissing
	case err != nil:
		s.logger.Error().
			Err(err).
			Str(xglog.FieldChunkType, string(t)).
			Str(xglog.FieldPath, path).
			Msg("failed to read prompt template")
		metrics.IncPromptFallback(string(t))
		return FallbackReadError
	}

	tpl = string(data)
	s.mu.Lock()
	s.cache[t] = tpl
	s.mu.Unlock()
	s.logger.Debug().Str(xglog.FieldChunkType, string(t)).Str(xglog.FieldPath, path).Msg("prompt template loaded")
	return tpl
}

// Invalidate drops all cached templates.
func (s *Store) Invalidate() {
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
}

// Render builds the prompt for a chunk.
//
// Text chunks and Markdown tables have their content substituted for the
// placeholder, or appended after a blank line when the template has none.
// Image chunks and PNG tables use the template verbatim, followed by the
// caption when there is one; the image itself travels separately.
func (s *Store) Render(c document.Chunk) string {
	return Render(s.Load(c.Type), c)
}

// Render applies a template to a chunk. See Store.Render.
func Render(tpl string, c document.Chunk) string {
	if c.IsVisual() {
		if caption := c.Caption(); caption != "" {
			return tpl + fmt.Sprintf("\nAdditional caption context: '%s'", caption)
		}
		return tpl
	}

	if strings.Contains(tpl, Placeholder) {
		return strings.NewReplacer(placeholderBraced, c.Content, Placeholder, c.Content).Replace(tpl)
	}
	return strings.TrimRight(tpl, "\n") + "\n\n" + c.Content
}
