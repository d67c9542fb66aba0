// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package prompt

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch invalidates the template cache whenever a file in the template
// directory changes. It returns once the watcher is running; the watcher
// stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch prompt dir: %w", err)
	}

	s.logger.Info().
		Str("event", "prompt.watcher_started").
		Str("path", s.dir).
		Msg("watching prompt templates for changes")

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() { _ = watcher.Close() }()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			s.logger.Info().Str("event", "prompt.watcher_stopped").Msg("prompt watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.Debug().
				Str("event", "prompt.file_changed").
				Str("op", event.Op.String()).
				Str("path", event.Name).
				Msg("prompt template changed")

			// Editors and atomic writers emit bursts of events.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				s.Invalidate()
				s.logger.Info().Str("event", "prompt.cache_invalidated").Msg("prompt templates will be reloaded")
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Str("event", "prompt.watcher_error").Msg("prompt watcher error")
		}
	}
}
