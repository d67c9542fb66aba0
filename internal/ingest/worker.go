// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/jobs"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
	"github.com/ManuGH/ragbox/internal/store"
	"github.com/ManuGH/ragbox/internal/summarize"
	"github.com/ManuGH/ragbox/internal/telemetry"
)

func (s *Service) worker() {
	defer s.wg.Done()
	for t := range s.queue {
		metrics.SetQueueDepth(len(s.queue))
		s.handle(t)
	}
}

// run carries the mutable job of one task and persists every change.
type run struct {
	s      *Service
	mu     sync.Mutex
	job    jobs.Job
	logger zerolog.Logger
}

func (s *Service) handle(t task) {
	defer s.finish(t.job.ID)
	defer t.cleanup()

	metrics.JobStarted()
	defer metrics.JobFinished()

	ctx := s.ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}
	ctx = xglog.ContextWithJobID(ctx, t.job.ID)
	if t.job.DocumentID != "" {
		ctx = xglog.ContextWithDocumentID(ctx, t.job.DocumentID)
	}

	var err error
	attrs := append(telemetry.JobAttributes(t.job.ID, string(t.job.State)),
		telemetry.DocumentAttributes(t.job.DocumentID, t.job.SourceName, "")...)
	ctx, finishSpan := telemetry.StartSpan(ctx, "ragbox.ingest", "ingest."+string(t.job.Kind), attrs...)
	defer func() { finishSpan(err) }()

	r := &run{s: s, job: t.job, logger: xglog.WithComponentFromContext(ctx, "ingest")}
	r.logger.Info().Str(xglog.FieldEvent, "ingest.job.start").Str("kind", string(t.job.Kind)).Msg("job started")

	switch t.job.Kind {
	case jobs.KindSummarize:
		err = r.summarizeStored(ctx)
	default:
		err = r.ingest(ctx, t.path)
	}

	if err != nil {
		reason := err.Error()
		if s.ctx.Err() != nil {
			reason = jobs.ReasonInterrupted + ": " + reason
		}
		r.fail(reason)
		return
	}
	r.complete()
}

func (r *run) ingest(ctx context.Context, path string) error {
	if err := r.transition(jobs.StateParsing); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	res, err := r.s.parser.ParseReader(ctx, r.job.SourceName, f)
	f.Close()
	if err != nil {
		return err
	}

	doc := res.Document
	existing, err := r.s.repo.GetDocumentBySHA(ctx, doc.SHA256)
	switch {
	case err == nil && !r.job.Force:
		// another job stored the same content after this one was queued
		r.deduplicate(existing)
		return nil
	case err == nil:
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("lookup document: %w", err)
	}

	stored, err := r.s.repo.PutDocument(ctx, doc)
	if errors.Is(err, store.ErrConflict) && !r.job.Force {
		// a concurrent job stored the same content between lookup and insert
		if existing, lookupErr := r.s.repo.GetDocumentBySHA(ctx, doc.SHA256); lookupErr == nil {
			r.deduplicate(existing)
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	doc = stored
	chunks, err := r.s.repo.PutChunks(ctx, doc.ID, res.Chunks)
	if err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	r.mu.Lock()
	r.job.DocumentID = doc.ID
	r.job.ChunksTotal = len(chunks)
	r.mu.Unlock()
	r.logger = r.logger.With().Str(xglog.FieldDocumentID, doc.ID).Logger()
	r.logger.Info().
		Str(xglog.FieldEvent, "ingest.stored").
		Int("chunks", len(chunks)).
		Msg("document stored")

	if !r.job.Summarize {
		return nil
	}
	return r.summarize(ctx, chunks)
}

func (r *run) deduplicate(existing document.Document) {
	r.mu.Lock()
	r.job.DocumentID = existing.ID
	r.job.Deduplicated = true
	r.mu.Unlock()
	r.logger.Info().
		Str(xglog.FieldEvent, "ingest.deduplicated").
		Str(xglog.FieldDocumentID, existing.ID).
		Msg("content already stored")
	metrics.IncJob("deduplicated")
}

func (r *run) summarizeStored(ctx context.Context) error {
	chunks, err := r.s.repo.ListChunks(ctx, r.job.DocumentID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	r.mu.Lock()
	r.job.ChunksTotal = len(chunks)
	r.mu.Unlock()
	return r.summarize(ctx, chunks)
}

func (r *run) summarize(ctx context.Context, chunks document.Chunks) error {
	if r.s.summarizer == nil {
		return ErrNoSummarizer
	}
	if err := r.transition(jobs.StateSummarizing); err != nil {
		return err
	}

	model := r.s.summarizer.Model()
	var firstErr, persistErr error
	_, err := r.s.summarizer.SummarizeAll(ctx, chunks, summarize.BatchOptions{
		Concurrency: r.s.cfg.SummarizeConcurrency,
		OnResult: func(res summarize.Result) {
			var storeErr error
			if res.Err == nil {
				storeErr = r.s.repo.PutSummary(ctx, res.Chunk.ID, model, res.Summary)
			}

			r.mu.Lock()
			switch {
			case res.Err != nil:
				r.job.ChunksFailed++
				if firstErr == nil {
					firstErr = res.Err
				}
			case storeErr != nil:
				r.job.ChunksFailed++
				if persistErr == nil {
					persistErr = storeErr
				}
			default:
				r.job.ChunksSummarized++
			}
			r.job.UpdatedAt = r.s.now()
			// persisted under the lock so progress never goes backwards
			if err := r.persist(r.job); err != nil {
				r.logger.Warn().Err(err).Msg("failed to record job progress")
			}
			r.mu.Unlock()
		},
	})
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	r.mu.Lock()
	summarized, failed := r.job.ChunksSummarized, r.job.ChunksFailed
	r.mu.Unlock()

	if persistErr != nil {
		return fmt.Errorf("store summary: %w", persistErr)
	}
	if failed > 0 && summarized == 0 {
		return fmt.Errorf("all %d summaries failed: %w", failed, firstErr)
	}
	if failed > 0 {
		r.logger.Warn().
			Err(firstErr).
			Int("failed", failed).
			Int("summarized", summarized).
			Msg("some chunks could not be summarized")
	}
	return nil
}

func (r *run) transition(to jobs.State) error {
	r.mu.Lock()
	if err := r.job.Transition(to, r.s.now()); err != nil {
		r.mu.Unlock()
		return err
	}
	job := r.job
	r.mu.Unlock()

	r.logger.Debug().Str(xglog.FieldStage, string(to)).Msg("job state changed")
	return r.persist(job)
}

func (r *run) complete() {
	r.mu.Lock()
	if err := r.job.Transition(jobs.StateCompleted, r.s.now()); err != nil {
		r.mu.Unlock()
		r.fail(err.Error())
		return
	}
	job := r.job
	r.mu.Unlock()

	if err := r.persist(job); err != nil {
		r.logger.Error().Err(err).Msg("failed to record job completion")
	}
	if !job.Deduplicated {
		metrics.IncJob("completed")
	}
	r.logger.Info().
		Str(xglog.FieldEvent, "ingest.job.completed").
		Str(xglog.FieldDocumentID, job.DocumentID).
		Bool("deduplicated", job.Deduplicated).
		Int("chunks", job.ChunksTotal).
		Int("summarized", job.ChunksSummarized).
		Int("summary_failures", job.ChunksFailed).
		Dur("duration", job.Duration(r.s.now())).
		Msg("job completed")
}

func (r *run) fail(reason string) {
	r.mu.Lock()
	if err := r.job.Fail(reason, r.s.now()); err != nil {
		r.mu.Unlock()
		r.logger.Error().Err(err).Msg("cannot fail job")
		return
	}
	job := r.job
	r.mu.Unlock()

	if err := r.persist(job); err != nil {
		r.logger.Error().Err(err).Msg("failed to record job failure")
	}
	metrics.IncJob("failed")
	r.logger.Error().
		Str(xglog.FieldEvent, "ingest.job.failed").
		Str("reason", reason).
		Msg("job failed")
}

// persist writes job even when the job context is already cancelled.
func (r *run) persist(job jobs.Job) error {
	return r.s.repo.UpdateJob(context.WithoutCancel(r.s.ctx), job)
}
