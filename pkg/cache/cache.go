// Package cache implements the smart cache from section 4.1: a
// fingerprint->value store with pluggable LRU/LFU/TTL/Adaptive eviction.
// The store is a single map behind one mutex; it is not sharded.
package cache

import (
	"sync"
	"time"

	"github.com/pyferris/pyferris/internal/config"
)

// entry holds per-key metadata alongside the value, matching the
// CacheEntry data model.
type entry struct {
	key          string
	value        any
	insertedAt   time.Time
	lastAccessed time.Time
	accessCount  int64
}

// Stats reports cache hit/miss/eviction counters (section 4.1).
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	CurrentSize int
	MaxSize     int
	HitRate     float64
}

// Cache is a single-shard smart cache guarded by one mutex. Callers that
// need sharding for contention can compose several Caches behind their
// own routing; the policy logic itself does not assume external sharding.
type Cache struct {
	mu sync.Mutex

	maxSize   int
	policy    config.CacheEvictionPolicy
	ttl       time.Duration
	adaptiveT float64
	window    int

	entries map[string]*entry

	hits, misses, evictions int64

	// adaptive policy state: a ring of the last `window` hit/miss outcomes
	hitWindow []bool
	winPos    int
}

// New builds a Cache from a CacheConfig.
func New(cfg config.CacheConfig) *Cache {
	window := cfg.AdaptiveWindow
	if window <= 0 {
		window = 100
	}
	return &Cache{
		maxSize:   cfg.MaxSize,
		policy:    cfg.Policy,
		ttl:       cfg.TTL,
		adaptiveT: cfg.AdaptiveThreshold,
		window:    window,
		entries:   make(map[string]*entry),
		hitWindow: make([]bool, 0, window),
	}
}

// Get returns the value for key, recording a hit or miss. Under the TTL
// policy, a touched expired entry is removed and treated as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.policy == config.CacheTTL && c.expired(e) {
		delete(c.entries, key)
		ok = false
	}

	if !ok {
		c.misses++
		c.recordOutcome(false)
		return nil, false
	}

	e.lastAccessed = time.Now()
	e.accessCount++
	c.hits++
	c.recordOutcome(true)
	return e.value, true
}

// Put inserts or updates key's value. If inserting would exceed maxSize,
// one entry is evicted first per the active policy.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy == config.CacheTTL {
		c.sweepExpired()
	}

	now := time.Now()
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.lastAccessed = now
		e.accessCount++
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOne()
	}

	c.entries[key] = &entry{
		key:          key,
		value:        value,
		insertedAt:   now,
		lastAccessed: now,
		accessCount:  1,
	}
}

// Contains reports presence without affecting hit/miss statistics or
// recency (used by tests and eviction scenario assertions).
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && c.policy == config.CacheTTL && c.expired(e) {
		return false
	}
	return ok
}

// Remove deletes key, reporting whether it was present.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		CurrentSize: len(c.entries),
		MaxSize:     c.maxSize,
		HitRate:     rate,
	}
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && time.Since(e.insertedAt) > c.ttl
}

func (c *Cache) sweepExpired() {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

// recordOutcome feeds the adaptive policy's sliding hit-rate window.
func (c *Cache) recordOutcome(hit bool) {
	if c.policy != config.CacheAdaptive {
		return
	}
	if len(c.hitWindow) < c.window {
		c.hitWindow = append(c.hitWindow, hit)
	} else {
		c.hitWindow[c.winPos%c.window] = hit
	}
	c.winPos++
}

func (c *Cache) windowHitRate() float64 {
	if len(c.hitWindow) == 0 {
		return 0
	}
	hits := 0
	for _, h := range c.hitWindow {
		if h {
			hits++
		}
	}
	return float64(hits) / float64(len(c.hitWindow))
}

// evictOne removes a single entry chosen by the active policy. Caller
// holds c.mu.
func (c *Cache) evictOne() {
	if len(c.entries) == 0 {
		return
	}

	policy := c.policy
	if policy == config.CacheAdaptive {
		if c.windowHitRate() >= c.adaptiveT {
			policy = config.CacheLFU
		} else {
			policy = config.CacheLRU
		}
	}

	var victim *entry
	for _, e := range c.entries {
		if victim == nil {
			victim = e
			continue
		}
		switch policy {
		case config.CacheLFU:
			if e.accessCount < victim.accessCount ||
				(e.accessCount == victim.accessCount && e.lastAccessed.Before(victim.lastAccessed)) {
				victim = e
			}
		case config.CacheTTL:
			if e.insertedAt.Before(victim.insertedAt) {
				victim = e
			}
		default: // LRU
			if e.lastAccessed.Before(victim.lastAccessed) {
				victim = e
			}
		}
	}

	if victim != nil {
		delete(c.entries, victim.key)
		c.evictions++
	}
}
