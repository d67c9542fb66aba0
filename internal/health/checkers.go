// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
)

// Pinger is satisfied by the SQLite store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker reports the store unhealthy when a ping fails.
type DatabaseChecker struct {
	db Pinger
}

// NewDatabaseChecker creates a checker for the SQLite store.
func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string { return "sqlite" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	if err := c.db.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "database reachable"}
}

// ModelLister is satisfied by the Ollama client.
type ModelLister interface {
	HasModel(ctx context.Context, name string) (bool, error)
	Model() string
}

// OllamaChecker reports whether the model server answers and has the
// configured model. Documents are still parsed without it, so failures only
// degrade the service.
type OllamaChecker struct {
	client ModelLister
}

// NewOllamaChecker creates a checker for the model server.
func NewOllamaChecker(client ModelLister) *OllamaChecker {
	return &OllamaChecker{client: client}
}

func (c *OllamaChecker) Name() string { return "ollama" }

func (c *OllamaChecker) Check(ctx context.Context) CheckResult {
	model := c.client.Model()
	ok, err := c.client.HasModel(ctx, model)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "ollama unreachable"}
	}
	if !ok {
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("model %q is not pulled", model)}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("model %q available", model)}
}

// CacheChecker pings cache backends that support it. A failing cache only
// costs repeated model calls.
type CacheChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewCacheChecker creates a checker for the named backend. A nil check
// always reports healthy.
func NewCacheChecker(backend string, check func(ctx context.Context) error) *CacheChecker {
	return &CacheChecker{name: backend, check: check}
}

func (c *CacheChecker) Name() string { return "cache" }

func (c *CacheChecker) Check(ctx context.Context) CheckResult {
	if c.check == nil {
		return CheckResult{Status: StatusHealthy, Message: c.name}
	}
	if err := c.check(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: c.name}
	}
	return CheckResult{Status: StatusHealthy, Message: c.name}
}

// QueueChecker reports degraded while the ingest queue is full.
type QueueChecker struct {
	depth    func() int
	capacity int
}

// NewQueueChecker creates a checker for a queue of the given capacity.
func NewQueueChecker(depth func() int, capacity int) *QueueChecker {
	return &QueueChecker{depth: depth, capacity: capacity}
}

func (c *QueueChecker) Name() string { return "ingest_queue" }

func (c *QueueChecker) Check(_ context.Context) CheckResult {
	n := c.depth()
	msg := fmt.Sprintf("%d/%d queued", n, c.capacity)
	if c.capacity > 0 && n >= c.capacity {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}
