// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the HTTP server and owns graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/ragbox/internal/config"
	xglog "github.com/ManuGH/ragbox/internal/log"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting servers, handling shutdown.
type Manager interface {
	// Start starts the API server and blocks until shutdown
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down the server and runs the hooks
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown
	RegisterShutdownHook(name string, hook ShutdownHook)

	// Addr returns the bound listen address once started.
	Addr() string
}

type manager struct {
	serverCfg config.ServerConfig
	deps      Deps

	apiServer *http.Server
	addr      string

	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager with the given configuration and dependencies.
func NewManager(serverCfg config.ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = 30 * time.Second
	}
	return &manager{
		serverCfg:     serverCfg,
		deps:          deps,
		logger:        deps.Logger.With().Str(xglog.FieldComponent, "manager").Logger(),
		shutdownHooks: make([]namedHook, 0),
	}, nil
}

// Start binds the listener, serves the API and blocks until ctx is cancelled
// or the server fails.
func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.serverCfg.ListenAddr).
		Dur("read_timeout", m.serverCfg.ReadTimeout).
		Dur("write_timeout", m.serverCfg.WriteTimeout).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("Starting daemon manager")

	ln, err := net.Listen("tcp", m.serverCfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.serverCfg.ListenAddr, err)
	}

	errChan := make(chan error, 1)
	m.startAPIServer(ln, errChan)

	for _, w := range m.deps.Watchers {
		if err := w.StartWatcher(ctx); err != nil {
			m.logger.Warn().Err(err).Str(xglog.FieldEvent, "watcher.start_failed").Msg("file watcher disabled")
			continue
		}
		m.RegisterShutdownHook("watcher", func(context.Context) error {
			w.Stop()
			return nil
		})
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("Server error, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

func (m *manager) startAPIServer(ln net.Listener, errChan chan<- error) {
	m.mu.Lock()
	m.addr = ln.Addr().String()
	m.apiServer = &http.Server{
		Handler:           m.deps.APIHandler,
		ReadTimeout:       m.serverCfg.ReadTimeout,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		WriteTimeout:      m.serverCfg.WriteTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
	}
	srv := m.apiServer
	m.mu.Unlock()

	go func() {
		m.logger.Info().
			Str("addr", ln.Addr().String()).
			Msg("API server listening (HTTP)")

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "api.server.failed").
				Msg("API server (HTTP) failed")
			errChan <- fmt.Errorf("API server (HTTP): %w", err)
		}
	}()
}

func (m *manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	srv := m.apiServer
	m.mu.Unlock()

	m.logger.Info().Msg("Shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	if srv != nil {
		m.logger.Debug().Msg("Shutting down API server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
			// in-flight handlers are abandoned once the deadline passes
			_ = srv.Close()
		}
	}

	m.logger.Debug().Int("hooks", len(hooks)).Msg("Executing shutdown hooks")
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
		} else {
			m.logger.Debug().
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("Shutdown hook completed")
		}
	}

	if len(errs) > 0 {
		m.logger.Error().
			Int("error_count", len(errs)).
			Msg("Shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().Msg("Daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHooks = append(m.shutdownHooks, namedHook{
		name: name,
		hook: hook,
	})
	m.logger.Debug().Str("hook", name).Msg("Registered shutdown hook")
}
