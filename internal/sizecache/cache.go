// Package sizecache provides a byte-budgeted LRU cache with sliding
// expiration and size-aware eviction.
package sizecache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxEntries = 10000

// Priority is the admission tier of an entry. Lower tiers are evicted first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int
	Bytes     int64
	MaxBytes  int64
	Hits      int64
	Misses    int64
	Evictions int64
	Rejected  int64
}

// Utilization returns Bytes as a percentage of MaxBytes.
func (s Stats) Utilization() float64 {
	if s.MaxBytes <= 0 {
		return 0
	}
	return float64(s.Bytes) / float64(s.MaxBytes) * 100
}

type entry struct {
	data       []byte
	size       int64
	priority   Priority
	lastAccess time.Time
}

// Cache stores byte slices under string keys. Stored slices are owned by
// the cache; callers must not modify them.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *entry]
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time

	totalBytes atomic.Int64
	hits       atomic.Int64
	misses     atomic.Int64
	evictions  atomic.Int64
	rejected   atomic.Int64

	onEvict func(key string, size int64)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithEvictionHook registers fn to run after an entry leaves the cache.
func WithEvictionHook(fn func(key string, size int64)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// New creates a cache holding at most maxBytes. Entries not read for ttl
// expire; a ttl of zero disables expiration.
func New(maxBytes int64, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries, _ = lru.NewWithEvict[string, *entry](defaultMaxEntries, c.onEvicted)
	return c
}

// PriorityFor derives the admission tier from the item size relative to
// the budget: small items stay resident longest.
func PriorityFor(size, maxBytes int64) Priority {
	switch {
	case maxBytes <= 0:
		return PriorityLow
	case size*100 <= maxBytes:
		return PriorityHigh
	case size*10 <= maxBytes:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Get returns the value under key and refreshes its expiration.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	now := c.now()
	if c.expired(e, now) {
		c.entries.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	e.lastAccess = now
	c.hits.Add(1)
	return e.data, true
}

// Peek returns the value under key without counting a hit or a miss and
// without refreshing its recency or expiration.
func (c *Cache) Peek(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok || c.expired(e, c.now()) {
		return nil, false
	}
	return e.data, true
}

// Contains reports whether key is present and unexpired.
func (c *Cache) Contains(key string) bool {
	_, ok := c.Peek(key)
	return ok
}

// Put stores data under key and reports whether it was admitted. Items
// larger than the whole budget are rejected. When the budget is exceeded,
// the oldest entries of the lowest priority tier are evicted first.
func (c *Cache) Put(key string, data []byte) bool {
	size := int64(len(data))
	if size > c.maxBytes {
		c.rejected.Add(1)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)
	c.entries.Remove(key)

	c.totalBytes.Add(size)
	c.entries.Add(key, &entry{
		data:       data,
		size:       size,
		priority:   PriorityFor(size, c.maxBytes),
		lastAccess: now,
	})

	for c.totalBytes.Load() > c.maxBytes {
		victim, ok := c.victimLocked(key)
		if !ok {
			break
		}
		c.entries.Remove(victim)
	}
	return true
}

// victimLocked picks the least recently used key of the lowest priority
// tier present, never choosing keep.
func (c *Cache) victimLocked(keep string) (string, bool) {
	var (
		best     string
		bestPrio = PriorityHigh + 1
	)
	// Keys are ordered oldest first.
	for _, k := range c.entries.Keys() {
		if k == keep {
			continue
		}
		e, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		if e.priority < bestPrio {
			best, bestPrio = k, e.priority
			if bestPrio == PriorityLow {
				break
			}
		}
	}
	return best, bestPrio <= PriorityHigh
}

// Remove deletes key.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Prune drops every expired entry and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(c.now())
}

func (c *Cache) pruneLocked(now time.Time) int {
	if c.ttl <= 0 {
		return 0
	}
	n := 0
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && c.expired(e, now) {
			c.entries.Remove(k)
			n++
		}
	}
	return n
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.lastAccess) >= c.ttl
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of entries, expired ones included until pruned.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Bytes returns the tracked size of all entries.
func (c *Cache) Bytes() int64 {
	return c.totalBytes.Load()
}

// MaxBytes returns the byte budget.
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// Stats returns a counters snapshot.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   c.entries.Len(),
		Bytes:     c.totalBytes.Load(),
		MaxBytes:  c.maxBytes,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Rejected:  c.rejected.Load(),
	}
}

func (c *Cache) onEvicted(key string, e *entry) {
	if e == nil {
		return
	}
	c.evictions.Add(1)
	c.totalBytes.Add(-e.size)
	if c.onEvict != nil {
		c.onEvict(key, e.size)
	}
}
