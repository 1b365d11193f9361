// Package dedup implements the signature deduplication cache of §4.A: a
// TTL set of signatures, sharded to avoid a single global lock on the hot
// path, with a background sweeper that evicts expired entries.
//
// Grounded on the teacher's sharded-map idiom in
// src/chainadapter/rpc/health.go (a sync.RWMutex-guarded map per tracked
// key) and on original_source/src/processor/cache.rs's DedupCache, which
// this package reproduces in Go: check_and_insert as a single atomic
// operation, with a periodic cleanup sweep instead of DashMap's retain.
package dedup

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// Cache is a sharded TTL set of signatures. The zero value is not usable;
// construct with New.
type Cache struct {
	shards [shardCount]*shard
	ttl    time.Duration
}

// New creates a Cache with the given TTL (default 60s per §4.A).
func New(ttl time.Duration) *Cache {
	c := &Cache{ttl: ttl}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]time.Time)}
	}
	return c
}

func (c *Cache) shardFor(sig string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sig))
	return c.shards[h.Sum32()%shardCount]
}

// CheckAndInsert atomically reports whether sig was absent from the cache
// and, if so, inserts it stamped with the current time. It is the single
// critical operation named in §4.A.
func (c *Cache) CheckAndInsert(sig string) bool {
	s := c.shardFor(sig)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[sig]; exists {
		return false
	}
	s.entries[sig] = time.Now()
	return true
}

// Sweep removes entries older than the cache TTL. Intended to be called
// periodically by Run; exposed directly for tests.
func (c *Cache) Sweep() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for sig, inserted := range s.entries {
			if now.Sub(inserted) > c.ttl {
				delete(s.entries, sig)
			}
		}
		s.mu.Unlock()
	}
}

// Len returns the total number of live entries across all shards. Intended
// for tests and diagnostics, not the hot path.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// Run sweeps the cache on the given interval (default 10s per §4.A) until
// stop is closed.
func (c *Cache) Run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-stop:
			return
		}
	}
}
