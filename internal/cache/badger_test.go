// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerCache_Persists(t *testing.T) {
	dir := t.TempDir()

	c, err := NewBadgerCache(dir)
	require.NoError(t, err)
	c.Set(ctx, "k1", "summary one", 0)
	c.Set(ctx, "k2", "summary two", time.Hour)
	require.NoError(t, c.Close())

	c, err = NewBadgerCache(dir)
	require.NoError(t, err)
	defer c.Close()

	val, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "summary one", val)
	assert.Equal(t, 2, c.Stats(ctx).CurrentSize)
}

func TestBadgerCache_Operations(t *testing.T) {
	c, err := NewBadgerCache("")
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "a", "1", time.Minute)
	c.Set(ctx, "b", "2", time.Minute)
	c.Delete(ctx, "a")
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)

	val, ok := c.Get(ctx, "b")
	require.True(t, ok)
	assert.Equal(t, "2", val)

	c.Clear(ctx)
	stats := c.Stats(ctx)
	assert.Equal(t, 0, stats.CurrentSize)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}
