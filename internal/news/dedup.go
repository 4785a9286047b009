// Package news implements the collector fleet: per-source poll loops,
// fetchers, dedup caches and the durable save workers.
package news

import (
	"sync"
	"time"
)

const (
	// dedupTTL is how long a hash stays in the cache.
	dedupTTL = time.Hour
	// dedupMaxEntries bounds cache growth; oldest entries are evicted.
	dedupMaxEntries = 5000
)

// DedupCache remembers recently enqueued article hashes. Shared between a
// collector and its scoring worker, which unmarks hashes whose scoring came
// back undefined.
type DedupCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewDedupCache creates an empty dedup cache.
func NewDedupCache() *DedupCache {
	return &DedupCache{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether the hash was marked within the TTL.
func (c *DedupCache) Seen(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.entries[hash]
	if !ok {
		return false
	}
	if c.now().Sub(at) > dedupTTL {
		delete(c.entries, hash)
		return false
	}
	return true
}

// Mark records the hash. Called at enqueue time so a queue-full drop can be
// retried on the next poll.
func (c *DedupCache) Mark(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= dedupMaxEntries {
		c.evictOldestLocked()
	}
	c.entries[hash] = c.now()
}

// Unmark releases a hash so the next poll re-enqueues the article. Called by
// the scoring worker when a batch is dropped with an undefined score.
func (c *DedupCache) Unmark(hash string) {
	c.mu.Lock()
	delete(c.entries, hash)
	c.mu.Unlock()
}

// Len returns the number of cached hashes.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes expired entries, then the single oldest entry if
// the cache is still full. Caller holds the mutex.
func (c *DedupCache) evictOldestLocked() {
	cutoff := c.now().Add(-dedupTTL)
	for hash, at := range c.entries {
		if at.Before(cutoff) {
			delete(c.entries, hash)
		}
	}
	if len(c.entries) < dedupMaxEntries {
		return
	}

	var oldestHash string
	var oldestAt time.Time
	for hash, at := range c.entries {
		if oldestHash == "" || at.Before(oldestAt) {
			oldestHash = hash
			oldestAt = at
		}
	}
	delete(c.entries, oldestHash)
}
