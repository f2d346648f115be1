package httpcore

import "time"

// memoryBackend is the default dnsCacheBackend: an in-process LRU keyed by
// Question. Adapted from the teacher's cache-memory.go, which wraps the
// same lruCache plus a file-persistence/GC goroutine; httpcore drops file
// persistence (no equivalent in spec.md) and drives expiry from
// DnsCache.SweepExpired instead of an internal ticker; expired entries are
// otherwise removed only when a Lookup finds them.
type memoryBackend struct {
	lru *lruCache
}

func newMemoryBackend(capacity int) *memoryBackend {
	return &memoryBackend{lru: newLRUCache(capacity)}
}

func (b *memoryBackend) store(q Question, entry *dnsCacheEntry) *Question {
	return b.lru.add(q, entry)
}

func (b *memoryBackend) load(q Question) *dnsCacheEntry {
	return b.lru.get(q)
}

func (b *memoryBackend) delete(q Question) {
	b.lru.delete(q)
}

func (b *memoryBackend) deleteExpired(now time.Time) []Question {
	var expired []Question
	b.lru.deleteFunc(func(q Question, e *dnsCacheEntry) bool {
		if e.expired(now) {
			expired = append(expired, q)
			return true
		}
		return false
	})
	return expired
}

func (b *memoryBackend) size() int {
	return b.lru.size()
}
