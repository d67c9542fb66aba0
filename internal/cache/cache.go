// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache stores generated chunk summaries so that unchanged content
// is not sent to the model twice.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
)

// Cache provides thread-safe caching with expiration support.
type Cache interface {
	// Get retrieves a value. The boolean is false if the key is missing or expired.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores a value. A ttl <= 0 keeps the value until it is deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string)
	// Clear removes all values from the cache.
	Clear(ctx context.Context)
	// Stats returns cache statistics.
	Stats(ctx context.Context) CacheStats
	// Name identifies the backend in logs and metrics.
	Name() string
	// Close releases the backend.
	Close() error
}

// CacheStats holds cache performance metrics.
type CacheStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	CurrentSize int   `json:"current_size"`
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend         string
	CleanupInterval time.Duration
	Redis           RedisConfig
	BadgerDir       string
}

// New builds the configured backend.
func New(cfg Config) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		interval := cfg.CleanupInterval
		if interval <= 0 {
			interval = time.Minute
		}
		return NewMemoryCache(interval), nil
	case BackendRedis:
		c, err := NewRedisCache(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendBadger:
		c, err := NewBadgerCache(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone:
		return NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (supported: memory, redis, badger, none)", cfg.Backend)
	}
}

// entry represents a cached value with expiration time.
type entry struct {
	value      string
	expiration time.Time
}

func (e *entry) isExpired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

func (c *counters) lookup(backend string, hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	metrics.RecordCacheLookup(backend, hit)
}

func (c *counters) snapshot(size int) CacheStats {
	return CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

// memoryCache is an in-memory implementation of Cache.
type memoryCache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	stats    counters
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMemoryCache creates a new in-memory cache. When cleanupInterval is
// positive a janitor goroutine removes expired entries until Close.
func NewMemoryCache(cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
		now:     time.Now,
		logger:  xglog.WithComponent("cache"),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Name() string { return BackendMemory }

func (c *memoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || e.isExpired(c.now()) {
		c.stats.lookup(BackendMemory, false)
		return "", false
	}
	c.stats.lookup(BackendMemory, true)
	return e.value, true
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	e := &entry{value: value}
	if ttl > 0 {
		e.expiration = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	c.stats.sets.Add(1)
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats(_ context.Context) CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.snapshot(len(c.entries))
}

// deleteExpired removes all expired entries and returns how many were removed.
func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.evictions.Add(int64(count))
	return count
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.deleteExpired(); n > 0 {
				c.logger.Debug().Int("evicted", n).Msg("removed expired summaries")
			}
		case <-c.stop:
			return
		}
	}
}

// Close stops the janitor.
func (c *memoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// noOpCache is a cache that does nothing (used to disable caching).
type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache anything.
func NewNoOpCache() Cache {
	return &noOpCache{}
}

func (c *noOpCache) Get(context.Context, string) (string, bool)         { return "", false }
func (c *noOpCache) Set(context.Context, string, string, time.Duration) {}
func (c *noOpCache) Delete(context.Context, string)                     {}
func (c *noOpCache) Clear(context.Context)                              {}
func (c *noOpCache) Stats(context.Context) CacheStats                   { return CacheStats{} }
func (c *noOpCache) Name() string                                       { return BackendNone }
func (c *noOpCache) Close() error                                       { return nil }
