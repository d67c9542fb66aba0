// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/ragbox/internal/log"
)

const (
	badgerPrefix     = "sum:"
	badgerGCInterval = 10 * time.Minute
)

// BadgerCache persists summaries in an embedded Badger database so they
// survive restarts without an external service.
type BadgerCache struct {
	db       *badger.DB
	logger   zerolog.Logger
	stats    counters
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBadgerCache opens (or creates) the database in dir. An empty dir opens
// an in-memory database.
func NewBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	c := &BadgerCache{
		db:     db,
		logger: xglog.WithComponent("cache").With().Str("backend", BackendBadger).Logger(),
		stop:   make(chan struct{}),
	}
	if dir != "" {
		c.wg.Add(1)
		go c.gcLoop()
	}
	c.logger.Info().Str("path", dir).Bool("in_memory", dir == "").Msg("opened badger cache")
	return c, nil
}

func (c *BadgerCache) Name() string { return BackendBadger }

func (c *BadgerCache) Get(_ context.Context, key string) (string, bool) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("badger get failed")
		}
		c.stats.lookup(BackendBadger, false)
		return "", false
	}
	c.stats.lookup(BackendBadger, true)
	return string(val), true
}

func (c *BadgerCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	e := badger.NewEntry([]byte(badgerPrefix+key), []byte(value))
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) }); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("badger set failed")
		return
	}
	c.stats.sets.Add(1)
}

func (c *BadgerCache) Delete(_ context.Context, key string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerPrefix + key))
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("badger delete failed")
	}
}

func (c *BadgerCache) Clear(_ context.Context) {
	if err := c.db.DropPrefix([]byte(badgerPrefix)); err != nil {
		c.logger.Warn().Err(err).Msg("badger clear failed")
	}
}

func (c *BadgerCache) Stats(_ context.Context) CacheStats {
	size := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			size++
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("badger stats failed")
	}
	return c.stats.snapshot(size)
}

func (c *BadgerCache) gcLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing to collect.
			for c.db.RunValueLogGC(0.5) == nil {
			}
		case <-c.stop:
			return
		}
	}
}

// Close stops background GC and closes the database.
func (c *BadgerCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
	return c.db.Close()
}
