// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest runs documents through parsing, storage and summarization
// as background jobs on a bounded worker pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/jobs"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
	"github.com/ManuGH/ragbox/internal/parser"
	"github.com/ManuGH/ragbox/internal/store"
	"github.com/ManuGH/ragbox/internal/summarize"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("ingest queue is full")
	// ErrClosed is returned after Shutdown or before Start.
	ErrClosed = errors.New("ingest service is not running")
	// ErrNoSource is returned when a Source names neither a path nor a reader.
	ErrNoSource = errors.New("source has neither path nor reader")
	// ErrNoSummarizer is returned when summaries are requested but no
	// summarizer is configured.
	ErrNoSummarizer = errors.New("summarization is not configured")
)

// Repository is the persistence the service needs.
type Repository interface {
	PutDocument(ctx context.Context, doc document.Document) (document.Document, error)
	GetDocument(ctx context.Context, id string) (document.Document, error)
	GetDocumentBySHA(ctx context.Context, sha256 string) (document.Document, error)
	PutChunks(ctx context.Context, docID string, chunks document.Chunks) (document.Chunks, error)
	ListChunks(ctx context.Context, docID string, types ...document.ChunkType) (document.Chunks, error)
	PutSummary(ctx context.Context, chunkID, model, text string) error
	PutJob(ctx context.Context, j jobs.Job) (jobs.Job, error)
	UpdateJob(ctx context.Context, j jobs.Job) error
	GetJob(ctx context.Context, id string) (jobs.Job, error)
	MarkInterruptedJobs(ctx context.Context) (int, error)
}

// Parser extracts chunks from a document stream.
type Parser interface {
	ParseReader(ctx context.Context, name string, rd io.Reader) (*parser.Result, error)
}

// Summarizer summarizes chunk batches.
type Summarizer interface {
	SummarizeAll(ctx context.Context, chunks document.Chunks, opts summarize.BatchOptions) ([]summarize.Result, error)
	Model() string
}

// Config controls the worker pool.
type Config struct {
	Workers   int
	QueueSize int
	// UploadDir receives spooled reader sources.
	UploadDir string
	// MaxUploadBytes bounds spooled uploads; zero disables the limit.
	MaxUploadBytes int64
	// SummarizeConcurrency bounds parallel model calls per job.
	SummarizeConcurrency int
	// JobTimeout bounds one job; zero means no limit.
	JobTimeout time.Duration
}

// Source is a document to ingest. Either Path names a local file or Reader
// streams the content under Name.
type Source struct {
	Path   string
	Name   string
	Reader io.Reader
}

// Options modify how a source is ingested.
type Options struct {
	// Summarize generates chunk summaries after parsing.
	Summarize bool
	// Force re-ingests a document whose content is already stored.
	Force bool
}

type task struct {
	job  jobs.Job
	path string
	// spooled files are removed once the job ends
	spooled bool
}

// Service owns the job queue and workers.
type Service struct {
	cfg        Config
	repo       Repository
	parser     Parser
	summarizer Summarizer
	logger     zerolog.Logger
	now        func() time.Time

	queue  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	done    map[string]chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a stopped Service. summarizer may be nil when summaries are
// never requested.
func New(cfg Config, repo Repository, p Parser, summarizer Summarizer) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SummarizeConcurrency <= 0 {
		cfg.SummarizeConcurrency = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:        cfg,
		repo:       repo,
		parser:     p,
		summarizer: summarizer,
		logger:     xglog.WithComponent("ingest"),
		now:        time.Now,
		queue:      make(chan task, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(map[string]chan struct{}),
	}
}

// Start fails jobs left unfinished by a previous process and launches the
// workers.
func (s *Service) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		if s.cfg.UploadDir != "" {
			if err = os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
				err = fmt.Errorf("create upload dir: %w", err)
				return
			}
		}
		var n int
		if n, err = s.repo.MarkInterruptedJobs(ctx); err != nil {
			return
		}
		for i := 0; i < s.cfg.Workers; i++ {
			s.wg.Add(1)
			go s.worker()
		}
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		s.logger.Info().
			Str(xglog.FieldEvent, "ingest.started").
			Int("workers", s.cfg.Workers).
			Int("queue_size", s.cfg.QueueSize).
			Int("interrupted", n).
			Msg("ingest workers started")
	})
	return err
}

// Shutdown stops accepting jobs and waits for queued and running jobs to
// finish. When ctx expires first, running jobs are cancelled and recorded
// as interrupted.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasRunning := s.running
		s.running = false
		s.mu.Unlock()
		if !wasRunning {
			s.cancel()
			return
		}
		close(s.queue)

		drained := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			s.cancel()
			<-drained
			err = ctx.Err()
		}
		s.cancel()
		s.logger.Info().Str(xglog.FieldEvent, "ingest.stopped").Msg("ingest workers stopped")
	})
	return err
}

// Submit registers a job for src. Duplicate content completes immediately
// with Deduplicated set unless opts.Force is given.
func (s *Service) Submit(ctx context.Context, src Source, opts Options) (jobs.Job, error) {
	if !s.isRunning() {
		return jobs.Job{}, ErrClosed
	}
	if opts.Summarize && s.summarizer == nil {
		return jobs.Job{}, ErrNoSummarizer
	}

	t, sha, err := s.prepare(src)
	if err != nil {
		return jobs.Job{}, err
	}
	job := jobs.Job{
		ID:         uuid.NewString(),
		Kind:       jobs.KindIngest,
		State:      jobs.StateQueued,
		SourceName: sourceName(src),
		Summarize:  opts.Summarize,
		Force:      opts.Force,
		CreatedAt:  s.now(),
	}

	if !opts.Force {
		existing, err := s.repo.GetDocumentBySHA(ctx, sha)
		switch {
		case err == nil:
			t.cleanup()
			return s.completeDuplicate(ctx, job, existing)
		case !errors.Is(err, store.ErrNotFound):
			t.cleanup()
			return jobs.Job{}, fmt.Errorf("lookup document: %w", err)
		}
	}

	t.job = job
	return s.enqueue(ctx, t)
}

// SubmitSummarize registers a job that (re)summarizes a stored document.
func (s *Service) SubmitSummarize(ctx context.Context, docID string) (jobs.Job, error) {
	if !s.isRunning() {
		return jobs.Job{}, ErrClosed
	}
	if s.summarizer == nil {
		return jobs.Job{}, ErrNoSummarizer
	}
	doc, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return jobs.Job{}, err
	}
	return s.enqueue(ctx, task{job: jobs.Job{
		ID:         uuid.NewString(),
		Kind:       jobs.KindSummarize,
		State:      jobs.StateQueued,
		DocumentID: doc.ID,
		SourceName: doc.Name,
		Summarize:  true,
		CreatedAt:  s.now(),
	}})
}

// Wait blocks until the job reaches a terminal state or ctx is done and
// returns its latest stored version.
func (s *Service) Wait(ctx context.Context, id string) (jobs.Job, error) {
	s.mu.Lock()
	ch, ok := s.done[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return jobs.Job{}, ctx.Err()
		}
	}
	return s.repo.GetJob(context.WithoutCancel(ctx), id)
}

// QueueDepth returns the number of jobs waiting for a worker.
func (s *Service) QueueDepth() int { return len(s.queue) }

func (s *Service) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) completeDuplicate(ctx context.Context, job jobs.Job, existing document.Document) (jobs.Job, error) {
	job.DocumentID = existing.ID
	job.Deduplicated = true
	if err := job.Transition(jobs.StateCompleted, s.now()); err != nil {
		return jobs.Job{}, err
	}
	stored, err := s.repo.PutJob(ctx, job)
	if err != nil {
		return jobs.Job{}, err
	}
	metrics.IncJob("deduplicated")
	s.logger.Info().
		Str(xglog.FieldEvent, "ingest.deduplicated").
		Str(xglog.FieldJobID, job.ID).
		Str(xglog.FieldDocumentID, existing.ID).
		Str("name", job.SourceName).
		Msg("document already ingested")
	return stored, nil
}

func (s *Service) enqueue(ctx context.Context, t task) (jobs.Job, error) {
	stored, err := s.repo.PutJob(ctx, t.job)
	if err != nil {
		t.cleanup()
		return jobs.Job{}, err
	}
	t.job = stored

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.reject(t, ErrClosed)
		return jobs.Job{}, ErrClosed
	}
	select {
	case s.queue <- t:
		s.done[t.job.ID] = make(chan struct{})
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		metrics.IncJobRejected()
		s.reject(t, ErrQueueFull)
		return jobs.Job{}, ErrQueueFull
	}
	metrics.SetQueueDepth(len(s.queue))

	s.logger.Info().
		Str(xglog.FieldEvent, "ingest.queued").
		Str(xglog.FieldJobID, t.job.ID).
		Str("kind", string(t.job.Kind)).
		Str("name", t.job.SourceName).
		Msg("job queued")
	return t.job, nil
}

func (s *Service) reject(t task, reason error) {
	t.cleanup()
	job := t.job
	if err := job.Fail(reason.Error(), s.now()); err == nil {
		if err := s.repo.UpdateJob(context.Background(), job); err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldJobID, job.ID).Msg("failed to record rejected job")
		}
	}
}

func (s *Service) finish(id string) {
	s.mu.Lock()
	if ch, ok := s.done[id]; ok {
		close(ch)
		delete(s.done, id)
	}
	s.mu.Unlock()
}

func sourceName(src Source) string {
	if name := strings.TrimSpace(src.Name); name != "" {
		return baseName(strings.ReplaceAll(name, "\\", "/"))
	}
	if src.Path != "" {
		return baseName(src.Path)
	}
	return "upload"
}
