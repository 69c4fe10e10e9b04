// Package concurrent provides the lock-based and lock-free primitives the
// rest of the engine shares: a sharded hash map, a lock-free MPMC queue,
// and a sequentially-consistent atomic counter.
package concurrent

import (
	"fmt"
	"hash/maphash"
	"sync"
)

// shard is one partition of a ShardedMap, independently lockable.
type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// ShardedMap is a hash map partitioned into N shards, each guarded by its
// own RWMutex. len and iteration give no global-lock, approximate-count
// guarantees, matching section 4.1.
type ShardedMap[K comparable, V any] struct {
	shards []*shard[K, V]
	mask   uint64
	seed   maphash.Seed
}

// NewShardedMap builds a map with shardCount rounded up to the next power
// of two (minimum 2), per section 4.1's "N = next power of two >= 2 *
// expected parallelism".
func NewShardedMap[K comparable, V any](expectedParallelism int) *ShardedMap[K, V] {
	n := nextPow2(expectedParallelism * 2)
	if n < 2 {
		n = 2
	}
	sm := &ShardedMap[K, V]{
		shards: make([]*shard[K, V], n),
		mask:   uint64(n - 1),
		seed:   maphash.MakeSeed(),
	}
	for i := range sm.shards {
		sm.shards[i] = &shard[K, V]{m: make(map[K]V)}
	}
	return sm
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (sm *ShardedMap[K, V]) shardFor(key K) *shard[K, V] {
	return sm.shards[sm.hash(key)&sm.mask]
}

func (sm *ShardedMap[K, V]) hash(key K) uint64 {
	var h maphash.Hash
	h.SetSeed(sm.seed)
	// %v is adequate here: keys are small comparable values (strings,
	// ints, struct tags) and routing only needs a stable distribution,
	// not a cryptographic or collision-proof hash.
	_, _ = h.WriteString(toHashString(key))
	return h.Sum64()
}

func toHashString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", key)
}

// Get returns the value for key and whether it was present.
func (sm *ShardedMap[K, V]) Get(key K) (V, bool) {
	s := sm.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Put inserts or overwrites the value for key.
func (sm *ShardedMap[K, V]) Put(key K, value V) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

// Remove deletes key, reporting whether it was present.
func (sm *ShardedMap[K, V]) Remove(key K) bool {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false
	}
	delete(s.m, key)
	return true
}

// Contains reports whether key is present.
func (sm *ShardedMap[K, V]) Contains(key K) bool {
	_, ok := sm.Get(key)
	return ok
}

// Len returns the approximate total size: the sum of shard lengths taken
// without a global lock, so it may race with concurrent writers.
func (sm *ShardedMap[K, V]) Len() int {
	total := 0
	for _, s := range sm.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}

// Clear empties every shard. Locks are taken in a fixed shard-index order
// to avoid deadlock against concurrent Clear calls.
func (sm *ShardedMap[K, V]) Clear() {
	for _, s := range sm.shards {
		s.mu.Lock()
	}
	for _, s := range sm.shards {
		s.m = make(map[K]V)
	}
	for i := len(sm.shards) - 1; i >= 0; i-- {
		sm.shards[i].mu.Unlock()
	}
}

// Range calls fn for a per-shard snapshot of entries. Iteration order is
// unspecified across shards and makes no global ordering guarantee, per
// section 4.1. Returning false from fn stops iteration early.
func (sm *ShardedMap[K, V]) Range(fn func(K, V) bool) {
	for _, s := range sm.shards {
		s.mu.RLock()
		snapshot := make(map[K]V, len(s.m))
		for k, v := range s.m {
			snapshot[k] = v
		}
		s.mu.RUnlock()

		for k, v := range snapshot {
			if !fn(k, v) {
				return
			}
		}
	}
}
