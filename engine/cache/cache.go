// Package cache implements a fixed-capacity in-process cache with
// pluggable eviction (LRU, LFU, TTL), optional per-entry expiry and
// operation statistics. It is the in-process half of the hot tier.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry is a cached value together with its eviction metadata.
type Entry[V any] struct {
	Key            string
	Value          V
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	// ExpiresAt is zero when the entry has no TTL. When set it is never
	// before CreatedAt.
	ExpiresAt time.Time

	seq uint64 // insertion order, breaks policy ties
}

func (e *Entry[V]) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Metadata is the diagnostic view of an entry returned by GetWithMetadata.
type Metadata[V any] struct {
	Value          V
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	HasTTL         bool
	RemainingTTL   time.Duration
}

// Stats is a point-in-time snapshot of cache counters. All counters are
// monotonic for the lifetime of the cache.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Inserts   int64
	Updates   int64
	Size      int
	MaxSize   int
	Policy    string
}

// HitRate returns hits/(hits+misses), 0 when no lookups occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config controls capacity, eviction and expiry behavior.
type Config struct {
	MaxSize         int
	Policy          PolicyKind
	DefaultTTL      time.Duration // 0 disables the default TTL
	CleanupInterval time.Duration // 0 uses defaultCleanupInterval
}

const defaultCleanupInterval = time.Minute

// Cache is a bounded key-value cache. All public methods are safe for
// concurrent use; a single mutex guards the whole instance and no method
// blocks on anything but that mutex.
type Cache[V any] struct {
	mu          sync.Mutex
	entries     map[string]*Entry[V]
	policy      Policy[V]
	cfg         Config
	stats       Stats
	seq         uint64
	lastCleanup time.Time

	now func() time.Time // swapped in tests
}

// New builds a cache from the given config.
func New[V any](cfg Config) (*Cache[V], error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("cache max size must be positive, got %d", cfg.MaxSize)
	}
	if cfg.Policy == "" {
		cfg.Policy = LRU
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	policy, err := NewPolicy[V](cfg.Policy)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{
		entries:     make(map[string]*Entry[V]),
		policy:      policy,
		cfg:         cfg,
		now:         time.Now,
		lastCleanup: time.Now(),
	}, nil
}

// Get returns the value for key if present and unexpired, updating the
// entry's access metadata. An expired entry is removed and counted as a
// miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.maybeCleanupLocked(now)
	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	if entry.expired(now) {
		delete(c.entries, key)
		c.stats.Misses++
		var zero V
		return zero, false
	}
	entry.LastAccessedAt = now
	entry.AccessCount++
	c.stats.Hits++
	return entry.Value, true
}

// Put inserts or updates key with the cache's default TTL.
func (c *Cache[V]) Put(key string, value V) {
	c.PutTTL(key, value, c.cfg.DefaultTTL)
}

// PutTTL inserts or updates key with an explicit TTL; ttl<=0 stores the
// entry without expiry. Inserting into a full cache evicts per policy
// first, so PutTTL never fails for capacity reasons.
func (c *Cache[V]) PutTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.maybeCleanupLocked(now)
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	if entry, ok := c.entries[key]; ok {
		if !entry.expired(now) {
			entry.Value = value
			entry.LastAccessedAt = now
			entry.ExpiresAt = expires
			c.stats.Updates++
			return
		}
		delete(c.entries, key)
	}
	if len(c.entries) >= c.cfg.MaxSize {
		c.evictLocked(len(c.entries) - c.cfg.MaxSize + 1)
	}
	c.seq++
	c.entries[key] = &Entry[V]{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		ExpiresAt:      expires,
		seq:            c.seq,
	}
	c.stats.Inserts++
}

// Remove deletes key and reports whether it was present.
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// RemoveBulk deletes the given keys, counting each removal as an
// eviction. Tier demotion uses it to drop demoted items from the
// in-process hot tier.
func (c *Cache[V]) RemoveBulk(keys []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, key := range keys {
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.Evictions += int64(removed)
	return removed
}

// Contains reports whether key is present and unexpired. It never mutates
// access metadata.
func (c *Cache[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return ok && !entry.expired(c.now())
}

// Clear removes every entry. Counters are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
}

// Len returns the current number of entries, expired ones included until
// the next cleanup.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns a snapshot of the current keys.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// GetWithMetadata returns the value plus entry diagnostics without
// counting a hit or a miss.
func (c *Cache[V]) GetWithMetadata(key string) (*Metadata[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	entry, ok := c.entries[key]
	if !ok || entry.expired(now) {
		return nil, false
	}
	meta := &Metadata[V]{
		Value:          entry.Value,
		CreatedAt:      entry.CreatedAt,
		LastAccessedAt: entry.LastAccessedAt,
		AccessCount:    entry.AccessCount,
	}
	if !entry.ExpiresAt.IsZero() {
		meta.HasTTL = true
		meta.RemainingTTL = entry.ExpiresAt.Sub(now)
	}
	return meta, true
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked(c.now())
}

// Stats returns a snapshot of counters and configuration.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.stats
	snapshot.Size = len(c.entries)
	snapshot.MaxSize = c.cfg.MaxSize
	snapshot.Policy = c.policy.Name()
	return snapshot
}

// evictLocked removes the n best eviction candidates per policy.
// Candidate selection sorts the whole entry set, bounded by MaxSize.
func (c *Cache[V]) evictLocked(n int) {
	if n <= 0 || len(c.entries) == 0 {
		return
	}
	candidates := make([]*Entry[V], 0, len(c.entries))
	for _, entry := range c.entries {
		candidates = append(candidates, entry)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return c.policy.Less(candidates[i], candidates[j])
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	for _, entry := range candidates[:n] {
		delete(c.entries, entry.Key)
	}
	c.stats.Evictions += int64(n)
}

func (c *Cache[V]) maybeCleanupLocked(now time.Time) {
	if now.Sub(c.lastCleanup) < c.cfg.CleanupInterval {
		return
	}
	c.cleanupLocked(now)
}

func (c *Cache[V]) cleanupLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.lastCleanup = now
	return removed
}
