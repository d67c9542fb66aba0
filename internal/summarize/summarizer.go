// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package summarize produces one model-written summary per chunk.
package summarize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/ragbox/internal/cache"
	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/llm"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
	"github.com/ManuGH/ragbox/internal/telemetry"
)

// ErrSkipped is returned for chunks whose type is filtered out.
var ErrSkipped = errors.New("chunk type not selected for summarization")

// Generator is the model backend.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
	Model() string
}

// Renderer turns a chunk into a prompt.
type Renderer interface {
	Render(c document.Chunk) string
}

// Options configures a Summarizer.
type Options struct {
	// CacheTTL bounds how long summaries stay cached; zero keeps them.
	CacheTTL time.Duration
	// Types restricts summarization to these chunk types; empty means all.
	Types []document.ChunkType
}

// Summarizer renders prompts, consults the cache and calls the model.
type Summarizer struct {
	gen     Generator
	prompts Renderer
	cache   cache.Cache
	ttl     time.Duration
	logger  zerolog.Logger

	mu    sync.RWMutex
	types map[document.ChunkType]bool
}

// New creates a Summarizer. A nil cache disables caching.
func New(gen Generator, prompts Renderer, c cache.Cache, opts Options) *Summarizer {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	s := &Summarizer{
		gen:     gen,
		prompts: prompts,
		cache:   c,
		ttl:     opts.CacheTTL,
		logger:  xglog.WithComponent("summarize"),
	}
	s.SetTypes(opts.Types)
	return s
}

// SetTypes replaces the chunk type filter. Empty selects every type.
func (s *Summarizer) SetTypes(types []document.ChunkType) {
	var m map[document.ChunkType]bool
	if len(types) > 0 {
		m = make(map[document.ChunkType]bool, len(types))
		for _, t := range types {
			m[t] = true
		}
	}
	s.mu.Lock()
	s.types = m
	s.mu.Unlock()
}

// Accepts reports whether chunks of type t are summarized.
func (s *Summarizer) Accepts(t document.ChunkType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types == nil || s.types[t]
}

// Model returns the model summaries are generated with.
func (s *Summarizer) Model() string { return s.gen.Model() }

// CacheKey identifies a summary by everything that influences it.
func CacheKey(model string, t document.ChunkType, prompt, content string) string {
	h := sha256.New()
	for _, part := range []string{model, string(t), prompt, content} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SummarizeChunk returns the summary of one chunk. Image chunks and PNG
// tables are sent to the model as images alongside the prompt.
func (s *Summarizer) SummarizeChunk(ctx context.Context, c document.Chunk) (string, error) {
	summary, _, err := s.summarize(ctx, c)
	return summary, err
}

func (s *Summarizer) summarize(ctx context.Context, c document.Chunk) (summary string, cached bool, err error) {
	if !s.Accepts(c.Type) {
		return "", false, ErrSkipped
	}
	logger := xglog.FromContext(ctx).With().
		Str(xglog.FieldComponent, "summarize").
		Str(xglog.FieldChunkType, string(c.Type)).
		Int(xglog.FieldSourcePage, c.SourcePage).
		Logger()
	logger.Debug().Msg("generating summary for chunk")

	ctx, finish := telemetry.StartSpan(ctx, "ragbox.summarize", "summarize.chunk",
		telemetry.ChunkAttributes(c.ID, string(c.Type), c.SourcePage)...)
	defer func() { finish(err) }()

	prompt := s.prompts.Render(c)
	model := s.gen.Model()
	key := CacheKey(model, c.Type, prompt, c.Content)
	if hit, ok := s.cache.Get(ctx, key); ok {
		metrics.IncSummary(string(c.Type), "cached")
		logger.Debug().Msg("summary served from cache")
		return hit, true, nil
	}

	req := llm.GenerateRequest{Prompt: prompt}
	if c.IsVisual() {
		req.Images = []string{c.Content}
	}
	summary, err = s.gen.Generate(ctx, req)
	if err != nil {
		metrics.IncSummary(string(c.Type), "failure")
		return "", false, fmt.Errorf("summarize %s chunk (page %d): %w", c.Type, c.SourcePage, err)
	}

	s.cache.Set(ctx, key, summary, s.ttl)
	metrics.IncSummary(string(c.Type), "generated")
	logger.Info().Str("preview", preview(summary, 100)).Msg("summary generated")
	return summary, false, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Result is the outcome for one chunk of a batch.
type Result struct {
	Chunk   document.Chunk
	Summary string
	Cached  bool
	Err     error
}

// BatchOptions controls SummarizeAll.
type BatchOptions struct {
	// Concurrency bounds parallel model calls; values below 1 mean 1.
	Concurrency int
	// FailFast stops at the first error and returns it.
	FailFast bool
	// Progress is called after each chunk with the number finished so far.
	Progress func(done, total int)
	// OnResult receives each chunk outcome as soon as it is known. It is
	// called from concurrent goroutines.
	OnResult func(Result)
}

// SummarizeAll summarizes every selected chunk. Results keep the input order
// and skip chunks whose type is filtered out. Without FailFast, per-chunk
// failures are reported in Result.Err and the returned error is nil unless
// ctx is cancelled.
func (s *Summarizer) SummarizeAll(ctx context.Context, chunks document.Chunks, opts BatchOptions) ([]Result, error) {
	selected := make([]document.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if s.Accepts(c.Type) {
			selected = append(selected, c)
		}
	}
	results := make([]Result, len(selected))
	if len(selected) == 0 {
		return results, nil
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var done atomic.Int64
	total := len(selected)
	for i, c := range selected {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Chunk: c, Err: err}
				return nil
			}
			summary, cached, err := s.summarize(gctx, c)
			results[i] = Result{Chunk: c, Summary: summary, Cached: cached, Err: err}
			if opts.OnResult != nil {
				opts.OnResult(results[i])
			}
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), total)
			}
			if err != nil && opts.FailFast {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info().
		Int("chunks", total).
		Int("failed", failed).
		Msg("batch summarization finished")
	return results, nil
}
