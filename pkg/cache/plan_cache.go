// Package cache provides the compiled query plan cache.
//
// Plans are keyed by normalized query text. Parameter values never take part
// in the key, so every execution of a parameterized query shape shares one
// plan. The cache is bounded both by entry count and by an estimate of plan
// memory; the least recently used plans are evicted first.
//
// Usage:
//
//	plans := cache.NewPlanCache[*cypher.Plan](cache.DefaultConfig())
//
//	plan, err := plans.GetOrCompile(normalized, func(text string) (*cypher.Plan, int64, error) {
//		p, err := cypher.Compile(text)
//		if err != nil {
//			return nil, 0, err
//		}
//		return p, p.SizeBytes, nil
//	})
//
// Plans handed out are shared and must be immutable. Clear and Invalidate
// only drop the cache's own references, so a statement already holding a
// plan keeps running against it.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// Config bounds a PlanCache.
type Config struct {
	// MaxEntries is the maximum number of cached plans.
	MaxEntries int
	// MaxMemoryBytes is the maximum total estimated plan size.
	MaxMemoryBytes int64
	// Enabled turns caching on. A disabled cache compiles on every call.
	Enabled bool
}

// DefaultConfig caches up to 1000 plans within 100MB.
func DefaultConfig() Config {
	return Config{
		MaxEntries:     1000,
		MaxMemoryBytes: 100 * 1024 * 1024,
		Enabled:        true,
	}
}

// CompileFunc compiles normalized query text into a plan and reports the
// plan's estimated size in bytes.
type CompileFunc[T any] func(normalized string) (T, int64, error)

type entry[T any] struct {
	text        string
	plan        T
	size        int64
	createdAt   time.Time
	lastAccess  atomic.Int64
	accessCount atomic.Uint64
}

// PlanCache is a concurrency-safe LRU of compiled plans.
type PlanCache[T any] struct {
	// mu serializes inserts so the memory bound is enforced exactly.
	mu        sync.Mutex
	plans     *lru.Cache[[32]byte, *entry[T]]
	group     singleflight.Group
	maxMemory int64
	maxSize   int
	memory    atomic.Int64
	enabled   atomic.Bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewPlanCache creates a cache with the given bounds. Non-positive bounds
// fall back to DefaultConfig values.
func NewPlanCache[T any](cfg Config) *PlanCache[T] {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = def.MaxMemoryBytes
	}

	c := &PlanCache[T]{
		maxMemory: cfg.MaxMemoryBytes,
		maxSize:   cfg.MaxEntries,
	}
	// NewWithEvict only fails for a non-positive size.
	c.plans, _ = lru.NewWithEvict(cfg.MaxEntries, func(_ [32]byte, e *entry[T]) {
		c.memory.Add(-e.size)
		memoryBytes.Sub(float64(e.size))
	})
	c.enabled.Store(cfg.Enabled)
	return c
}

func planKey(normalized string) [32]byte {
	return blake2b.Sum256([]byte(normalized))
}

// GetOrCompile returns the cached plan for normalized, compiling and
// caching it on a miss. Concurrent misses for the same text share a single
// compile call.
func (c *PlanCache[T]) GetOrCompile(normalized string, compile CompileFunc[T]) (T, error) {
	if !c.enabled.Load() {
		c.recordMiss()
		plan, _, err := compile(normalized)
		return plan, err
	}

	key := planKey(normalized)
	if e, ok := c.plans.Get(key); ok {
		c.recordHit(e)
		return e.plan, nil
	}
	c.recordMiss()

	v, err, _ := c.group.Do(string(key[:]), func() (any, error) {
		// Another caller may have finished compiling while we waited.
		if e, ok := c.plans.Peek(key); ok {
			return e, nil
		}
		plan, size, err := compile(normalized)
		if err != nil {
			return nil, err
		}
		e := &entry[T]{text: normalized, plan: plan, size: size, createdAt: time.Now()}
		e.lastAccess.Store(e.createdAt.UnixNano())
		c.insert(key, e)
		return e, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(*entry[T]).plan, nil
}

// Get returns a cached plan without compiling. It counts as a lookup.
func (c *PlanCache[T]) Get(normalized string) (T, bool) {
	if c.enabled.Load() {
		if e, ok := c.plans.Get(planKey(normalized)); ok {
			c.recordHit(e)
			return e.plan, true
		}
	}
	c.recordMiss()
	var zero T
	return zero, false
}

func (c *PlanCache[T]) insert(key [32]byte, e *entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.plans.Contains(key) {
		return
	}
	if e.size > c.maxMemory {
		// Larger than the whole budget; serve it uncached.
		return
	}
	for c.memory.Load()+e.size > c.maxMemory && c.plans.Len() > 0 {
		if _, _, ok := c.plans.RemoveOldest(); ok {
			c.recordEviction()
		}
	}
	c.memory.Add(e.size)
	memoryBytes.Add(float64(e.size))
	if evicted := c.plans.Add(key, e); evicted {
		c.recordEviction()
	}
}

func (c *PlanCache[T]) recordHit(e *entry[T]) {
	e.accessCount.Add(1)
	e.lastAccess.Store(time.Now().UnixNano())
	c.hits.Add(1)
	lookups.WithLabelValues("hit").Inc()
}

func (c *PlanCache[T]) recordMiss() {
	c.misses.Add(1)
	lookups.WithLabelValues("miss").Inc()
}

func (c *PlanCache[T]) recordEviction() {
	c.evictions.Add(1)
	evictions.Inc()
}

// Clear drops every cached plan. Hit and miss counters are kept.
func (c *PlanCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans.Purge()
}

// Invalidate drops every plan whose normalized text contains substr and
// returns how many were removed.
func (c *PlanCache[T]) Invalidate(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.plans.Keys() {
		e, ok := c.plans.Peek(key)
		if ok && strings.Contains(e.text, substr) {
			if c.plans.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// SetEnabled turns caching on or off. Disabling also clears the cache.
func (c *PlanCache[T]) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	if !enabled {
		c.Clear()
	}
}

// Len returns the number of cached plans.
func (c *PlanCache[T]) Len() int {
	return c.plans.Len()
}

// Stats is a point-in-time view of cache statistics.
type Stats struct {
	CachedPlans        int     `json:"cached_plans"`
	MaxEntries         int     `json:"max_entries"`
	Hits               uint64  `json:"hits"`
	Misses             uint64  `json:"misses"`
	HitRate            float64 `json:"hit_rate"`
	Evictions          uint64  `json:"evictions"`
	CurrentMemoryBytes int64   `json:"current_memory_bytes"`
	MaxMemoryBytes     int64   `json:"max_memory_bytes"`
	Enabled            bool    `json:"enabled"`
}

// Stats returns cache statistics. HitRate is a fraction in [0, 1].
func (c *PlanCache[T]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		CachedPlans:        c.plans.Len(),
		MaxEntries:         c.maxSize,
		Hits:               hits,
		Misses:             misses,
		HitRate:            rate,
		Evictions:          c.evictions.Load(),
		CurrentMemoryBytes: c.memory.Load(),
		MaxMemoryBytes:     c.maxMemory,
		Enabled:            c.enabled.Load(),
	}
}

// EntryInfo describes one cached plan.
type EntryInfo struct {
	Query       string    `json:"query"`
	SizeBytes   int64     `json:"size_bytes"`
	AccessCount uint64    `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastAccess  time.Time `json:"last_access"`
}

// Entries lists cached plans from most to least recently used.
func (c *PlanCache[T]) Entries() []EntryInfo {
	keys := c.plans.Keys()
	out := make([]EntryInfo, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		e, ok := c.plans.Peek(keys[i])
		if !ok {
			continue
		}
		out = append(out, EntryInfo{
			Query:       e.text,
			SizeBytes:   e.size,
			AccessCount: e.accessCount.Load(),
			CreatedAt:   e.createdAt,
			LastAccess:  time.Unix(0, e.lastAccess.Load()),
		})
	}
	return out
}
