// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
)

const reloadDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading capability.
// Only the log level and the summarize type filter change at runtime; other
// edits are logged and take effect after a restart.
type Holder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- Config
}

// NewHolder creates a holder with the initially loaded config.
func NewHolder(initial Config, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the file again. On failure the current config
// is kept and the error returned.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	loaded, err := h.loader.Load()
	if err != nil {
		metrics.IncConfigReload("failure")
		h.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	next := old
	next.Log.Level = loaded.Log.Level
	next.Summarize.Types = loaded.Summarize.Types
	h.current = next
	h.mu.Unlock()

	if old.Log.Level != next.Log.Level {
		xglog.SetLevel(next.Log.Level)
	}
	h.logChanges(old, next)
	if restartRequired(next, loaded) {
		h.logger.Warn().
			Str(xglog.FieldEvent, "config.restart_required").
			Msg("configuration changes beyond log level and summarize types need a restart")
	}

	h.notifyListeners(next)
	metrics.IncConfigReload("success")
	h.logger.Info().
		Str(xglog.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher watches the config file for changes until ctx is done.
// If no file is configured, this is a no-op.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str(xglog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (no config file)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// the directory is watched so editors that replace the file are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str(xglog.FieldEvent, "config.watcher_started").
		Str(xglog.FieldPath, path).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher, filepath.Clean(path))
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(xglog.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().
						Err(err).
						Str(xglog.FieldEvent, "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the config watcher (if running).
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive the config after every
// successful reload. Sends never block; the caller owns the channel.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *Holder) notifyListeners(cfg Config) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str(xglog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(old, next Config) {
	if old.Log.Level != next.Log.Level {
		h.logger.Info().
			Str("old", old.Log.Level).
			Str("new", next.Log.Level).
			Msg("config changed: log.level")
	}
	if !slices.Equal(old.Summarize.Types, next.Summarize.Types) {
		h.logger.Info().
			Strs("old", old.Summarize.Types).
			Strs("new", next.Summarize.Types).
			Msg("config changed: summarize.types")
	}
}

// restartRequired reports whether loaded differs from applied in any field
// that is not reloadable.
func restartRequired(applied, loaded Config) bool {
	loaded.Log.Level = applied.Log.Level
	loaded.Summarize.Types = applied.Summarize.Types
	loaded.Version = applied.Version
	return !reflect.DeepEqual(applied, loaded)
}
