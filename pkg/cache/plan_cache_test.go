package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlan struct {
	text string
}

func compiler(calls *atomic.Int32, size int64) CompileFunc[*testPlan] {
	return func(text string) (*testPlan, int64, error) {
		calls.Add(1)
		return &testPlan{text: text}, size, nil
	}
}

func TestPlanCacheHitAndMiss(t *testing.T) {
	c := NewPlanCache[*testPlan](DefaultConfig())
	var calls atomic.Int32

	first, err := c.GetOrCompile("MATCH (n) RETURN n", compiler(&calls, 100))
	require.NoError(t, err)
	second, err := c.GetOrCompile("MATCH (n) RETURN n", compiler(&calls, 100))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second submission must not recompile")

	stats := c.Stats()
	assert.Equal(t, 1, stats.CachedPlans)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, int64(100), stats.CurrentMemoryBytes)
}

func TestPlanCacheClear(t *testing.T) {
	c := NewPlanCache[*testPlan](DefaultConfig())
	var calls atomic.Int32

	held, err := c.GetOrCompile("RETURN 1", compiler(&calls, 50))
	require.NoError(t, err)

	c.Clear()
	stats := c.Stats()
	assert.Equal(t, 0, stats.CachedPlans)
	assert.Equal(t, int64(0), stats.CurrentMemoryBytes)
	assert.Equal(t, uint64(1), stats.Misses, "statistics survive a clear")

	again, err := c.GetOrCompile("RETURN 1", compiler(&calls, 50))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, uint64(2), c.Stats().Misses)

	// The plan handed out before the clear is still intact.
	assert.Equal(t, "RETURN 1", held.text)
	assert.NotSame(t, held, again)
}

func TestPlanCacheEvictsByEntries(t *testing.T) {
	c := NewPlanCache[*testPlan](Config{MaxEntries: 2, MaxMemoryBytes: 1 << 20, Enabled: true})
	var calls atomic.Int32

	for _, q := range []string{"a", "b"} {
		_, err := c.GetOrCompile(q, compiler(&calls, 10))
		require.NoError(t, err)
	}
	// Touch "a" so "b" is least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	_, err := c.GetOrCompile("c", compiler(&calls, 10))
	require.NoError(t, err)

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, 2, stats.CachedPlans)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, int64(20), stats.CurrentMemoryBytes)
}

func TestPlanCacheEvictsByMemory(t *testing.T) {
	c := NewPlanCache[*testPlan](Config{MaxEntries: 100, MaxMemoryBytes: 250, Enabled: true})
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		_, err := c.GetOrCompile(fmt.Sprintf("q%d", i), compiler(&calls, 100))
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.CachedPlans)
	assert.LessOrEqual(t, stats.CurrentMemoryBytes, int64(250))
	assert.Equal(t, uint64(3), stats.Evictions)

	// A plan bigger than the whole budget is served but not cached.
	p, err := c.GetOrCompile("huge", compiler(&calls, 1000))
	require.NoError(t, err)
	assert.Equal(t, "huge", p.text)
	assert.Equal(t, 2, c.Len())
}

func TestPlanCacheSingleflight(t *testing.T) {
	c := NewPlanCache[*testPlan](DefaultConfig())
	var calls atomic.Int32
	release := make(chan struct{})

	slow := func(text string) (*testPlan, int64, error) {
		calls.Add(1)
		<-release
		return &testPlan{text: text}, 10, nil
	}

	var wg sync.WaitGroup
	results := make([]*testPlan, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.GetOrCompile("MATCH (n) RETURN count(n)", slow)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
}

func TestPlanCacheCompileError(t *testing.T) {
	c := NewPlanCache[*testPlan](DefaultConfig())
	boom := errors.New("boom")

	_, err := c.GetOrCompile("bad", func(string) (*testPlan, int64, error) { return nil, 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestPlanCacheInvalidateAndDisable(t *testing.T) {
	c := NewPlanCache[*testPlan](DefaultConfig())
	var calls atomic.Int32

	for _, q := range []string{"MATCH (n:User) RETURN n", "MATCH (n:Order) RETURN n", "RETURN 1"} {
		_, err := c.GetOrCompile(q, compiler(&calls, 10))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Invalidate("MATCH"))
	assert.Equal(t, 1, c.Len())
	require.Len(t, c.Entries(), 1)
	assert.Equal(t, "RETURN 1", c.Entries()[0].Query)

	c.SetEnabled(false)
	assert.Equal(t, 0, c.Len())
	_, err := c.GetOrCompile("RETURN 1", compiler(&calls, 10))
	require.NoError(t, err)
	_, err = c.GetOrCompile("RETURN 1", compiler(&calls, 10))
	require.NoError(t, err)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Stats().Enabled)
}
