package render

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constBuild(data string, calls *atomic.Int32) func() ([]byte, error) {
	return func() ([]byte, error) {
		calls.Add(1)
		return []byte(data), nil
	}
}

func TestCache_HitAfterMiss(t *testing.T) {
	c := NewCache(10)
	var calls atomic.Int32

	data, hit, err := c.Get("Virginia", "MeanCommute", constBuild("fig", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fig", string(data))

	data, hit, err = c.Get("Virginia", "MeanCommute", constBuild("other", &calls))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "fig", string(data))
	assert.Equal(t, int32(1), calls.Load())

	s := c.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
}

func TestCache_ErrorsNotCached(t *testing.T) {
	c := NewCache(10)
	boom := errors.New("boom")

	_, _, err := c.Get("Virginia", "Income", func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	var calls atomic.Int32
	data, hit, err := c.Get("Virginia", "Income", constBuild("ok", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", string(data))
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(2)
	var calls atomic.Int32

	_, _, _ = c.Get("a", "v", constBuild("1", &calls))
	_, _, _ = c.Get("b", "v", constBuild("2", &calls))
	// Touch a so b becomes the oldest.
	_, hit, _ := c.Get("a", "v", constBuild("x", &calls))
	assert.True(t, hit)
	_, _, _ = c.Get("c", "v", constBuild("3", &calls))

	_, hit, _ = c.Get("a", "v", constBuild("x", &calls))
	assert.True(t, hit)
	_, hit, _ = c.Get("b", "v", constBuild("2", &calls))
	assert.False(t, hit)
	assert.LessOrEqual(t, c.Stats().Entries, 2)
}

func TestCache_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultCacheEntries, NewCache(0).Stats().MaxEntries)
}

func TestCache_ConcurrentGet(t *testing.T) {
	c := NewCache(10)
	var calls atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _, err := c.Get("Virginia", "Poverty", constBuild("fig", &calls))
			assert.NoError(t, err)
			assert.Equal(t, "fig", string(data))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 1, c.Stats().Entries)
}
