// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Watcher is a background file watcher owned by the daemon, such as the
// config hot reload watcher.
type Watcher interface {
	StartWatcher(ctx context.Context) error
	Stop()
}

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler is the HTTP handler for the API server
	APIHandler http.Handler

	// Watchers are started with the servers and stopped on shutdown.
	Watchers []Watcher
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
