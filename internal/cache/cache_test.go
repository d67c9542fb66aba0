// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

// fakeClock drives expiry in memory cache tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestMemoryCache(t *testing.T) (*memoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	c := NewMemoryCache(0).(*memoryCache)
	c.now = clock.Now
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestMemoryCache_GetSet(t *testing.T) {
	cache, _ := newTestMemoryCache(t)

	cache.Set(ctx, "key1", "value1", 5*time.Minute)

	val, ok := cache.Get(ctx, "key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, "value1", val)

	_, ok = cache.Get(ctx, "nonexistent")
	assert.False(t, ok, "expected not to find nonexistent key")
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache, clock := newTestMemoryCache(t)

	cache.Set(ctx, "shortlived", "value", time.Minute)
	cache.Set(ctx, "forever", "value", 0)

	_, ok := cache.Get(ctx, "shortlived")
	require.True(t, ok)

	clock.Advance(2 * time.Minute)

	_, ok = cache.Get(ctx, "shortlived")
	assert.False(t, ok, "expected key to be expired")
	_, ok = cache.Get(ctx, "forever")
	assert.True(t, ok, "zero ttl never expires")

	assert.Equal(t, 1, cache.deleteExpired())
	assert.Equal(t, int64(1), cache.Stats(ctx).Evictions)
	assert.Equal(t, 1, cache.Stats(ctx).CurrentSize)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache, _ := newTestMemoryCache(t)

	cache.Set(ctx, "key1", "value1", time.Minute)
	cache.Set(ctx, "key2", "value2", time.Minute)

	cache.Delete(ctx, "key1")
	_, ok := cache.Get(ctx, "key1")
	assert.False(t, ok)

	cache.Clear(ctx)
	assert.Equal(t, 0, cache.Stats(ctx).CurrentSize)
}

func TestMemoryCache_Stats(t *testing.T) {
	cache, _ := newTestMemoryCache(t)

	cache.Set(ctx, "key1", "value1", time.Minute)
	cache.Get(ctx, "key1")
	cache.Get(ctx, "key1")
	cache.Get(ctx, "missing")

	stats := cache.Stats(ctx)
	assert.Equal(t, CacheStats{Hits: 2, Misses: 1, Sets: 1, CurrentSize: 1}, stats)
}

func TestMemoryCache_JanitorStopsOnClose(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	c.Set(ctx, "gone", "v", time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Stats(ctx).CurrentSize == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}

// lockedBuffer is a log sink shared with the janitor goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMemoryCache_JanitorLogsEvictions(t *testing.T) {
	var out lockedBuffer
	c := NewMemoryCache(0).(*memoryCache)
	c.logger = zerolog.New(&out).Level(zerolog.DebugLevel)
	c.Set(ctx, "stale", "v", time.Millisecond)
	go c.janitor(5 * time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })

	assert.Eventually(t, func() bool {
		return c.Stats(ctx).CurrentSize == 0
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"evicted":1`)
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache, _ := newTestMemoryCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j%10)
				cache.Set(ctx, key, "v", time.Minute)
				cache.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, cache.Stats(ctx).CurrentSize)
}

func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()

	cache.Set(ctx, "key1", "value1", time.Minute)
	_, ok := cache.Get(ctx, "key1")
	assert.False(t, ok)
	assert.Equal(t, CacheStats{}, cache.Stats(ctx))
	assert.Equal(t, BackendNone, cache.Name())
	assert.NoError(t, cache.Close())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "default is memory", cfg: Config{}, want: BackendMemory},
		{name: "memory", cfg: Config{Backend: "Memory"}, want: BackendMemory},
		{name: "none", cfg: Config{Backend: "none"}, want: BackendNone},
		{name: "badger in memory", cfg: Config{Backend: "badger"}, want: BackendBadger},
		{name: "unknown", cfg: Config{Backend: "memcached"}, wantErr: true},
		{name: "redis unreachable", cfg: Config{Backend: "redis", Redis: RedisConfig{Addr: "127.0.0.1:1"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = c.Close() })
			assert.Equal(t, tt.want, c.Name())
		})
	}
}
