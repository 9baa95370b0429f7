// Package cache provides a bounded, generic key/value cache with a
// time-to-live measured from insertion and least-recently-used eviction.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidConfig is returned by New when the capacity is not positive.
var ErrInvalidConfig = errors.New("cache: invalid config")

// Default sizing used when callers take the zero Config.
const (
	DefaultMaxEntries = 1000
	DefaultTTL        = time.Hour
)

// Config sizes an LRU. Zero fields take DefaultMaxEntries and DefaultTTL.
type Config struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// WithDefaults fills zero fields of c.
func (c Config) WithDefaults() Config {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	return c
}

// Stats is a snapshot of cache counters.
type Stats struct {
	TotalRequests uint64  `json:"total_requests"`
	CacheHits     uint64  `json:"cache_hits"`
	CacheMisses   uint64  `json:"cache_misses"`
	Evictions     uint64  `json:"evictions"`
	Expirations   uint64  `json:"expirations"`
	CurrentSize   int     `json:"current_size"`
	MaxEntries    int     `json:"max_entries"`
	HitRate       float64 `json:"hit_rate"`
}

type entry[K comparable, V any] struct {
	key          K
	value        V
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  uint64
	element      *list.Element
}

// LRU is a fixed-capacity cache safe for concurrent use. The list front is
// the most recently accessed entry; eviction takes from the back.
type LRU[K comparable, V any] struct {
	mu         sync.Mutex
	items      map[K]*entry[K, V]
	order      *list.List
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// Option customises an LRU at construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an LRU holding at most maxEntries values. Entries older than
// ttl, measured from when they were set, are treated as absent. A ttl of zero
// disables expiry.
func New[K comparable, V any](maxEntries int, ttl time.Duration, opts ...Option) (*LRU[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: max_entries must be positive, got %d", ErrInvalidConfig, maxEntries)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: ttl must not be negative, got %s", ErrInvalidConfig, ttl)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &LRU[K, V]{
		items:      make(map[K]*entry[K, V], maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        o.now,
	}, nil
}

// Get returns the value for key. An expired entry is removed and reported as
// a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	if c.expired(e, now) {
		c.removeEntry(e)
		c.expirations++
		c.misses++
		return zero, false
	}

	e.lastAccessed = now
	e.accessCount++
	c.order.MoveToFront(e.element)
	c.hits++
	return e.value, true
}

// Set inserts or replaces key. When the cache is full and key is new, the
// least recently accessed entry is evicted first.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[key]; ok {
		e.value = value
		e.createdAt = now
		e.lastAccessed = now
		e.accessCount = 1
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.items) >= c.maxEntries {
		c.evictOldest()
	}

	e := &entry[K, V]{key: key, value: value, createdAt: now, lastAccessed: now, accessCount: 1}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Remove deletes key and returns the value it held.
func (c *LRU[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.removeEntry(e)
	return e.value, true
}

// RemoveFunc deletes every entry whose key satisfies match and returns how
// many were removed.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.items {
		if match(k) {
			c.removeEntry(e)
			n++
		}
	}
	return n
}

// Clear drops all entries. Counters are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[K, V], c.maxEntries)
	c.order.Init()
}

// Len reports the number of stored entries, including expired ones that
// have not been looked up yet.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	s := Stats{
		TotalRequests: total,
		CacheHits:     c.hits,
		CacheMisses:   c.misses,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
		CurrentSize:   len(c.items),
		MaxEntries:    c.maxEntries,
	}
	if total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *LRU[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.createdAt) > c.ttl
}

func (c *LRU[K, V]) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.removeEntry(back.Value.(*entry[K, V]))
	c.evictions++
}

func (c *LRU[K, V]) removeEntry(e *entry[K, V]) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
