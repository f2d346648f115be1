package httpcore

import (
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Question identifies a cacheable DNS lookup: a name and a record type. It's
// deliberately narrower than dns.Question (no class, no EDNS0/ECS
// discriminator) -- adapted from the teacher's lruKey in lru-cache.go, which
// widens the key with Net/Do because routedns caches across DoH/DoT/DoQ and
// DNSSEC variants; httpcore's DnsCache has neither concern.
type Question struct {
	Name       string
	RecordType uint16
}

// RemovalCause identifies why an entry left the cache.
type RemovalCause int

const (
	RemovalExplicit RemovalCause = iota
	RemovalExpired
	RemovalReplaced
	RemovalCapacity
)

func (c RemovalCause) String() string {
	switch c {
	case RemovalExplicit:
		return "explicit"
	case RemovalExpired:
		return "expired"
	case RemovalReplaced:
		return "replaced"
	case RemovalCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// RemovalListener is notified whenever an entry leaves the cache, for any
// cause. Listeners are invoked synchronously from whichever goroutine
// triggers the removal; they must not block or re-enter the DnsCache that
// invoked them.
type RemovalListener func(q Question, cause RemovalCause)

// dnsCacheEntry is either a positive answer (records + deadline) or a
// negative (NXDOMAIN) marker with its own expiry.
type dnsCacheEntry struct {
	records  []dns.RR
	deadline time.Time
	negative bool
}

func (e *dnsCacheEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// dnsCacheBackend is the storage half of a DnsCache, split out the same way
// the teacher separates Cache from CacheBackend so the question/TTL/
// negative-caching policy in DnsCache stays backend-agnostic. dnscache_memory.go
// supplies the default in-process backend; dnscache_redis.go supplies an
// optional shared one.
type dnsCacheBackend interface {
	// store installs entry for q, returning the Question evicted to stay
	// within capacity, if the backend enforces one.
	store(q Question, entry *dnsCacheEntry) (evicted *Question)
	// load returns the entry for q, or nil if absent. A present-but-expired
	// entry is still returned; DnsCache decides what expired means.
	load(q Question) *dnsCacheEntry
	delete(q Question)
	// deleteExpired removes every entry expired as of now and reports which
	// questions were removed.
	deleteExpired(now time.Time) []Question
	size() int
}

// DnsCacheOptions configures a DnsCache. The zero value is capacity-unbounded
// with negative caching disabled, matching spec.md §4.2's defaults.
type DnsCacheOptions struct {
	// Capacity bounds the number of questions held; 0 means unlimited.
	// Ignored by shared backends (e.g. Redis) that rely on TTL expiry
	// instead of LRU eviction.
	Capacity int
	// NegativeTTL is how long an NXDOMAIN answer is cached; 0 disables
	// negative caching entirely (every lookup miss returns "not present"
	// rather than a cached UnknownHost).
	NegativeTTL time.Duration
}

// DnsCache is a process-wide question -> answer cache with TTL-driven
// expiry, negative caching, and removal notifications. Grounded on the
// teacher's cache.go, which wraps a pluggable CacheBackend the same way;
// the question/TTL/negative-cache policy below is backend-agnostic, and
// dnscache_memory.go / dnscache_redis.go provide the two backends the
// teacher itself ships (memoryBackend, redisBackend).
//
// Concurrent readers are allowed; writers (Store, StoreNegative, Remove,
// the background expiry sweep) are serialized by mu, matching spec.md
// §4.2's "concurrent readers; writers serialized" requirement.
type DnsCache struct {
	mu          sync.RWMutex
	negativeTTL time.Duration
	backend     dnsCacheBackend
	listeners   []RemovalListener
}

// NewDnsCache builds a DnsCache backed by the default in-memory LRU backend.
func NewDnsCache(opts DnsCacheOptions) *DnsCache {
	return &DnsCache{
		negativeTTL: opts.NegativeTTL,
		backend:     newMemoryBackend(opts.Capacity),
	}
}

// NewDnsCacheWithBackend builds a DnsCache over a caller-supplied backend,
// e.g. newRedisBackend for a cache shared across multiple resolver
// instances or processes.
func NewDnsCacheWithBackend(backend dnsCacheBackend, negativeTTL time.Duration) *DnsCache {
	return &DnsCache{negativeTTL: negativeTTL, backend: backend}
}

// AddRemovalListener registers a function to be invoked on every future
// removal. It is not invoked for entries already evicted.
func (c *DnsCache) AddRemovalListener(l RemovalListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *DnsCache) notify(q Question, cause RemovalCause) {
	for _, l := range c.listeners {
		l(q, cause)
	}
}

// Store caches a positive answer, expiring at now + the shortest TTL among
// records. Replacing an existing entry fires RemovalReplaced for the old
// one after the new one is installed.
func (c *DnsCache) Store(q Question, records []dns.RR, now time.Time) {
	ttl := shortestTTL(records)
	c.store(q, &dnsCacheEntry{records: records, deadline: now.Add(ttl)}, now)
}

// StoreNegative caches an NXDOMAIN for negativeTTL. If negativeTTL is 0,
// this is a no-op: negative caching is disabled entirely (spec.md §4.2).
func (c *DnsCache) StoreNegative(q Question, now time.Time) {
	if c.negativeTTL <= 0 {
		return
	}
	c.store(q, &dnsCacheEntry{negative: true, deadline: now.Add(c.negativeTTL)}, now)
}

func (c *DnsCache) store(q Question, entry *dnsCacheEntry, now time.Time) {
	c.mu.Lock()
	replaced := c.backend.load(q) != nil
	evicted := c.backend.store(q, entry)
	c.mu.Unlock()

	if replaced {
		c.notify(q, RemovalReplaced)
	}
	if evicted != nil && *evicted != q {
		c.notify(*evicted, RemovalCapacity)
	}
}

// Lookup returns the cached records for q, whether the hit is a negative
// (NXDOMAIN) entry, and whether anything was found at all. An expired entry
// is swept (firing RemovalExpired) and reported as a miss.
func (c *DnsCache) Lookup(q Question, now time.Time) (records []dns.RR, negative bool, ok bool) {
	c.mu.Lock()
	entry := c.backend.load(q)
	expired := false
	if entry != nil && entry.expired(now) {
		c.backend.delete(q)
		entry = nil
		expired = true
	}
	c.mu.Unlock()

	if expired {
		c.notify(q, RemovalExpired)
	}
	if entry == nil {
		return nil, false, false
	}
	if entry.negative {
		return nil, true, true
	}
	return entry.records, false, true
}

// Deadline reports the expiry time installed for q's current entry, if any.
// Used by callers (the resolver's refresh scheduler) that need the actual
// remaining TTL rather than just a hit/miss answer.
func (c *DnsCache) Deadline(q Question) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry := c.backend.load(q)
	if entry == nil {
		return time.Time{}, false
	}
	return entry.deadline, true
}

// Remove explicitly evicts q, firing RemovalExplicit if present.
func (c *DnsCache) Remove(q Question) {
	c.mu.Lock()
	present := c.backend.load(q) != nil
	if present {
		c.backend.delete(q)
	}
	c.mu.Unlock()
	if present {
		c.notify(q, RemovalExplicit)
	}
}

// Size reports the number of cached questions, positive and negative alike.
func (c *DnsCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.size()
}

// SweepExpired removes every entry whose deadline has passed as of now,
// firing RemovalExpired for each. Nothing in this package calls it; a
// caller that wants listeners to observe expiry even for entries nobody
// looks up again invokes it on its own timer -- grounded on the teacher's
// cache-memory.go background GC goroutine.
func (c *DnsCache) SweepExpired(now time.Time) {
	c.mu.Lock()
	expired := c.backend.deleteExpired(now)
	c.mu.Unlock()
	for _, q := range expired {
		c.notify(q, RemovalExpired)
	}
}

func shortestTTL(records []dns.RR) time.Duration {
	if len(records) == 0 {
		return 0
	}
	min := records[0].Header().Ttl
	for _, r := range records[1:] {
		if t := r.Header().Ttl; t < min {
			min = t
		}
	}
	return time.Duration(min) * time.Second
}
