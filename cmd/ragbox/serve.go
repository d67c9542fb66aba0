// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ragbox/internal/api"
	"github.com/ManuGH/ragbox/internal/config"
	"github.com/ManuGH/ragbox/internal/daemon"
	"github.com/ManuGH/ragbox/internal/health"
	"github.com/ManuGH/ragbox/internal/ingest"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/persistence/sqlite"
	"github.com/ManuGH/ragbox/internal/store"
	"github.com/ManuGH/ragbox/internal/telemetry"
	"github.com/ManuGH/ragbox/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ingest workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, loader, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, loader)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, loader *config.Loader) error {
	logger := xglog.WithComponent("daemon")

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
		return err
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	st, err := store.Open(ctx, cfg.Database.Path, sqlite.Config{
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	p, err := newPipeline(cfg)
	if err != nil {
		_ = st.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	if cfg.Prompts.Watch {
		if err := p.prompts.Watch(ctx); err != nil {
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "prompt.watch_failed").
				Str(xglog.FieldPath, cfg.Prompts.Dir).
				Msg("prompt hot reload disabled")
		}
	}

	svc := ingest.New(ingest.Config{
		Workers:              cfg.Ingest.Workers,
		QueueSize:            cfg.Ingest.QueueSize,
		UploadDir:            cfg.UploadDir(),
		MaxUploadBytes:       cfg.Ingest.MaxFileBytes,
		SummarizeConcurrency: cfg.Summarize.Concurrency,
		JobTimeout:           cfg.Ingest.JobTimeout,
	}, st, p.parser, p.summarizer)
	if err := svc.Start(ctx); err != nil {
		_ = p.Close()
		_ = st.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("start ingest: %w", err)
	}

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewDatabaseChecker(st))
	p.registerCheckers(hm)
	hm.RegisterChecker(health.NewQueueChecker(svc.QueueDepth, cfg.Ingest.QueueSize))

	apiCfg := api.Config{
		AuthToken:      cfg.Server.AuthToken,
		RateLimit:      cfg.Server.RateLimit,
		MaxUploadBytes: cfg.Ingest.MaxFileBytes,
	}
	if cfg.Telemetry.Enabled {
		apiCfg.TracingService = cfg.Telemetry.ServiceName
	}
	server := api.New(apiCfg, st, svc, hm)

	holder := config.NewHolder(cfg, loader)
	updates := make(chan config.Config, 1)
	holder.RegisterListener(updates)
	go applyReloads(ctx, updates, p)

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:     logger,
		APIHandler: server.Handler(),
		Watchers:   []daemon.Watcher{holder},
	})
	if err != nil {
		return err
	}
	// LIFO: workers drain before the cache and the database close.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("store", func(context.Context) error { return st.Close() })
	mgr.RegisterShutdownHook("cache", func(context.Context) error { return p.Close() })
	mgr.RegisterShutdownHook("ingest", svc.Shutdown)

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Server.ListenAddr).
		Msg("starting ragbox")
	logger.Info().Msgf("→ Model: %s at %s", p.llm.Model(), p.llm.BaseURL())
	logger.Info().Msgf("→ Database: %s", cfg.Database.Path)
	logger.Info().Msgf("→ Prompts: %s", cfg.Prompts.Dir)
	logger.Info().Msgf("→ Cache: %s", p.cache.Name())
	if cfg.Server.AuthToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "weak").
			Msg("→ API token: NOT configured (Auth Disabled). Set RAGBOX_API_TOKEN for security.")
	}

	if err := mgr.Start(ctx); err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "manager.failed").
			Msg("daemon failed")
		return err
	}
	logger.Info().Msg("server exiting")
	return nil
}

// applyReloads pushes hot-reloaded settings into running components.
func applyReloads(ctx context.Context, updates <-chan config.Config, p *pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			p.summarizer.SetTypes(cfg.ChunkTypes())
		}
	}
}
