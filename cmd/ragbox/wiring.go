// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ManuGH/ragbox/internal/cache"
	"github.com/ManuGH/ragbox/internal/config"
	"github.com/ManuGH/ragbox/internal/health"
	"github.com/ManuGH/ragbox/internal/llm"
	"github.com/ManuGH/ragbox/internal/parser"
	"github.com/ManuGH/ragbox/internal/prompt"
	"github.com/ManuGH/ragbox/internal/summarize"
)

// pipeline is the parse and summarize stack shared by serve and the
// one-shot commands.
type pipeline struct {
	parser     *parser.Registry
	cache      cache.Cache
	llm        *llm.Client
	prompts    *prompt.Store
	summarizer *summarize.Summarizer
}

func newPipeline(cfg config.Config) (*pipeline, error) {
	c, err := cache.New(cache.Config{
		Backend:         cfg.Cache.Backend,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		},
		BadgerDir: cfg.Cache.BadgerDir,
	})
	if err != nil {
		return nil, fmt.Errorf("summary cache: %w", err)
	}

	client := llm.New(llmOptions(cfg.Ollama))

	var promptOpts []prompt.Option
	for t, name := range cfg.PromptFiles() {
		promptOpts = append(promptOpts, prompt.WithFile(t, name))
	}
	prompts := prompt.NewStore(cfg.Prompts.Dir, promptOpts...)

	return &pipeline{
		parser: parser.NewRegistry(
			parser.WithMaxBytes(cfg.Ingest.MaxFileBytes),
			parser.WithMaxPixels(cfg.Ingest.MaxImagePixels),
		),
		cache:   c,
		llm:     client,
		prompts: prompts,
		summarizer: summarize.New(client, prompts, c, summarize.Options{
			CacheTTL: cfg.Summarize.CacheTTL,
			Types:    cfg.ChunkTypes(),
		}),
	}, nil
}

// llmOptions maps the config onto client options. Zero in the config means
// "off" for retries and rate limiting while the client treats zero as
// "default".
func llmOptions(cfg config.OllamaConfig) llm.Options {
	opts := llm.Options{
		BaseURL:          cfg.BaseURL,
		Model:            cfg.Model,
		Timeout:          cfg.Timeout,
		Temperature:      cfg.Temperature,
		KeepAlive:        cfg.KeepAlive,
		MaxRetries:       cfg.MaxRetries,
		RateLimit:        rate.Limit(cfg.RateLimit),
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerReset,
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = -1
	}
	if cfg.RateLimit == 0 {
		opts.RateLimit = rate.Inf
	}
	return opts
}

// cacheCheck returns a liveness probe for backends that can fail at runtime.
func cacheCheck(c cache.Cache) func(context.Context) error {
	if hc, ok := c.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck
	}
	return nil
}

func (p *pipeline) registerCheckers(hm *health.Manager) {
	hm.RegisterChecker(health.NewOllamaChecker(p.llm))
	hm.RegisterChecker(health.NewCacheChecker(p.cache.Name(), cacheCheck(p.cache)))
}

func (p *pipeline) Close() error {
	return p.cache.Close()
}
