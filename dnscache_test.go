package httpcore

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aRecord(name string, ttl uint32, ip string) dns.RR {
	return &dns.A{
		Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   net.ParseIP(ip),
	}
}

func TestDnsCacheStoreLookup(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{})
	q := Question{Name: "foo.com.", RecordType: dns.TypeA}
	now := time.Unix(1_700_000_000, 0)

	c.Store(q, []dns.RR{aRecord("foo.com.", 300, "1.1.1.1")}, now)
	require.Equal(t, 1, c.Size())

	records, negative, ok := c.Lookup(q, now)
	require.True(t, ok)
	require.False(t, negative)
	require.Len(t, records, 1)
	assert.Equal(t, "1.1.1.1", records[0].(*dns.A).A.String())
}

func TestDnsCacheUsesShortestTTL(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{})
	q := Question{Name: "foo.com.", RecordType: dns.TypeA}
	now := time.Unix(1_700_000_000, 0)

	c.Store(q, []dns.RR{
		aRecord("foo.com.", 300, "1.1.1.1"),
		aRecord("foo.com.", 5, "2.2.2.2"),
	}, now)

	_, _, ok := c.Lookup(q, now.Add(10*time.Second))
	assert.False(t, ok, "entry should have expired using the shorter of the two TTLs")
}

func TestDnsCacheNegativeCachingDisabledByDefault(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{})
	q := Question{Name: "nope.com.", RecordType: dns.TypeA}
	now := time.Unix(1_700_000_000, 0)

	c.StoreNegative(q, now)
	assert.Equal(t, 0, c.Size(), "negative_ttl=0 must disable negative caching entirely")
}

func TestDnsCacheNegativeCaching(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{NegativeTTL: 2 * time.Second})
	q := Question{Name: "nope.com.", RecordType: dns.TypeA}
	now := time.Unix(1_700_000_000, 0)

	c.StoreNegative(q, now)
	require.Equal(t, 1, c.Size())

	_, negative, ok := c.Lookup(q, now.Add(1800*time.Millisecond))
	require.True(t, ok)
	assert.True(t, negative)

	_, _, ok = c.Lookup(q, now.Add(3*time.Second))
	assert.False(t, ok, "negative entry must expire after negative_ttl")
}

func TestDnsCacheRemovalListenerFiresOnExplicitRemove(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{})
	q := Question{Name: "foo.com.", RecordType: dns.TypeA}
	now := time.Unix(1_700_000_000, 0)

	var gotCause RemovalCause
	var fired bool
	c.AddRemovalListener(func(q Question, cause RemovalCause) {
		fired = true
		gotCause = cause
	})

	c.Store(q, []dns.RR{aRecord("foo.com.", 300, "1.1.1.1")}, now)
	c.Remove(q)

	require.True(t, fired)
	assert.Equal(t, RemovalExplicit, gotCause)
}

func TestDnsCacheRemovalListenerFiresOnReplace(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{})
	q := Question{Name: "foo.com.", RecordType: dns.TypeA}
	now := time.Unix(1_700_000_000, 0)

	var causes []RemovalCause
	c.AddRemovalListener(func(_ Question, cause RemovalCause) {
		causes = append(causes, cause)
	})

	c.Store(q, []dns.RR{aRecord("foo.com.", 300, "1.1.1.1")}, now)
	c.Store(q, []dns.RR{aRecord("foo.com.", 300, "2.2.2.2")}, now)

	require.Len(t, causes, 1)
	assert.Equal(t, RemovalReplaced, causes[0])
}

func TestDnsCacheCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{Capacity: 2})
	now := time.Unix(1_700_000_000, 0)

	qa := Question{Name: "a.com.", RecordType: dns.TypeA}
	qb := Question{Name: "b.com.", RecordType: dns.TypeA}
	qc := Question{Name: "c.com.", RecordType: dns.TypeA}

	var evicted []Question
	c.AddRemovalListener(func(q Question, cause RemovalCause) {
		if cause == RemovalCapacity {
			evicted = append(evicted, q)
		}
	})

	c.Store(qa, []dns.RR{aRecord("a.com.", 300, "1.1.1.1")}, now)
	c.Store(qb, []dns.RR{aRecord("b.com.", 300, "1.1.1.2")}, now)
	// touch qa so qb becomes the least-recently-used entry
	c.Lookup(qa, now)
	c.Store(qc, []dns.RR{aRecord("c.com.", 300, "1.1.1.3")}, now)

	require.Equal(t, 2, c.Size())
	require.Len(t, evicted, 1)
	assert.Equal(t, qb, evicted[0])
}

func TestDnsCacheSweepExpiredFiresListeners(t *testing.T) {
	c := NewDnsCache(DnsCacheOptions{})
	q := Question{Name: "foo.com.", RecordType: dns.TypeA}
	now := time.Unix(1_700_000_000, 0)

	var causes []RemovalCause
	c.AddRemovalListener(func(_ Question, cause RemovalCause) {
		causes = append(causes, cause)
	})

	c.Store(q, []dns.RR{aRecord("foo.com.", 1, "1.1.1.1")}, now)
	c.SweepExpired(now.Add(2 * time.Second))

	require.Len(t, causes, 1)
	assert.Equal(t, RemovalExpired, causes[0])
	assert.Equal(t, 0, c.Size())
}
