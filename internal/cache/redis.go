// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/ragbox/internal/log"
)

const defaultRedisPrefix = "ragbox:summary:"

// RedisCache is a Redis-backed implementation of Cache. All keys live under
// a prefix so Clear and Stats only touch this cache's entries.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
	stats  counters
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Prefix   string // Key prefix, defaults to "ragbox:summary:"
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	c := newRedisCache(client, config.Prefix)
	c.logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis cache")
	return c, nil
}

func newRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: xglog.WithComponent("cache").With().Str("backend", BackendRedis).Logger(),
	}
}

func (c *RedisCache) Name() string { return BackendRedis }

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		c.stats.lookup(BackendRedis, false)
		return "", false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		c.stats.lookup(BackendRedis, false)
		return "", false
	}
	c.stats.lookup(BackendRedis, true)
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return
	}
	c.stats.sets.Add(1)
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
	}
}

// Clear deletes every key under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("redis clear failed")
		}
		batch = batch[:0]
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			flush()
		}
	}
	flush()
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis scan failed")
	}
}

func (c *RedisCache) Stats(ctx context.Context) CacheStats {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	size := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis scan failed")
	}
	return c.stats.snapshot(size)
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// HealthCheck checks if Redis is available.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
