package httpcore

import (
	"context"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ResolvedAddressTypes controls which record types a resolve() issues and
// how the two answers (if both are queried) are reconciled.
type ResolvedAddressTypes int

const (
	// ResolveV4Preferred queries both A and AAAA; A wins if both answer,
	// AAAA is used only if A timed out or returned nothing.
	ResolveV4Preferred ResolvedAddressTypes = iota
	// ResolveV6Preferred is the symmetric opposite of ResolveV4Preferred.
	ResolveV6Preferred
	// ResolveV4Only issues only an A query.
	ResolveV4Only
	// ResolveV6Only issues only an AAAA query.
	ResolveV6Only
)

// DNSClient issues a single DNS question and returns its answer records (or
// ErrUnknownHost for NXDOMAIN, or context.DeadlineExceeded/ErrResponseTimeout
// on timeout). Implementations wrap miekg/dns's exchange machinery; tests
// substitute a fake.
type DNSClient interface {
	Query(ctx context.Context, q Question) ([]dns.RR, error)
}

// RefreshingAddressResolverOptions configures a RefreshingAddressResolver.
type RefreshingAddressResolverOptions struct {
	AddressTypes   ResolvedAddressTypes
	QueryTimeout   time.Duration
	NegativeTTL    time.Duration
	RefreshBackoff time.Duration
	MaxAttempts    int
	SearchDomains  []string
	Ndots          int
}

// refreshEntry tracks the live state the resolver keeps for a single
// queried name: the endpoints currently resolved, whether a lookup has
// occurred since the last refresh ("hot", per spec.md §4.3), and the
// in-flight refresh timer.
type refreshEntry struct {
	endpoints []Endpoint
	hot       bool
	attempts  int
	timer     *time.Timer
	deadline  time.Time
}

// RefreshingAddressResolver is a per-event-loop resolver sitting above a
// DNSClient: cache hits complete immediately, misses issue one or two DNS
// queries per the configured address-type preference, and cache entries
// self-refresh at 90% of their TTL as long as they're "hot" (looked up at
// least once since the previous refresh). Grounded on the teacher's
// net-resolver.go (wrapping a Resolver as a stdlib-shaped resolver) and
// request-dedup.go (collapsing concurrent identical lookups into one
// upstream query), with cache-prefetch.go's hot-entry idea folded in here
// instead of kept as a standalone prefetcher.
type RefreshingAddressResolver struct {
	client DNSClient
	cache  *DnsCache
	opts   RefreshingAddressResolverOptions

	mu        sync.Mutex
	entries   map[string]*refreshEntry // keyed by original (unexpanded) name
	fqdnOwner map[string]string        // fully-qualified candidate name -> owning entries key
	closed    bool

	inflightMu sync.Mutex
	inflight   map[Question]*inflightLookup
}

type inflightLookup struct {
	done    chan struct{}
	records []dns.RR
	err     error
}

// NewRefreshingAddressResolver builds a resolver over client, coupled to
// cache so that removal events the cache fires for a question this
// resolver depends on trigger a refresh of the corresponding entry.
func NewRefreshingAddressResolver(client DNSClient, cache *DnsCache, opts RefreshingAddressResolverOptions) *RefreshingAddressResolver {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.Ndots <= 0 {
		opts.Ndots = 1
	}
	r := &RefreshingAddressResolver{
		client:    client,
		cache:     cache,
		opts:      opts,
		entries:   make(map[string]*refreshEntry),
		fqdnOwner: make(map[string]string),
		inflight:  make(map[Question]*inflightLookup),
	}
	cache.AddRemovalListener(r.onCacheRemoval)
	return r
}

// Resolve resolves host (with optional port reused verbatim from the
// caller) into an Endpoint carrying a concrete IP address. On a cache hit
// it returns synchronously with the cached address; on a miss it queries
// upstream according to AddressTypes.
func (r *RefreshingAddressResolver) Resolve(ctx context.Context, host string, port int) (Endpoint, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Endpoint{}, errors.Wrap(ErrCancelled, "resolver closed")
	}
	if entry, ok := r.entries[host]; ok {
		entry.hot = true
		eps := entry.endpoints
		r.mu.Unlock()
		return pickWithPort(eps, port)
	}
	r.mu.Unlock()

	eps, err := r.lookupAndCache(ctx, host)
	if err != nil {
		return Endpoint{}, err
	}
	return pickWithPort(eps, port)
}

func pickWithPort(eps []Endpoint, port int) (Endpoint, error) {
	if len(eps) == 0 {
		return Endpoint{}, errors.Wrap(ErrUnknownHost, "no addresses")
	}
	ep := eps[0]
	if port > 0 {
		return ep.WithPort(port)
	}
	return ep, nil
}

func countDots(s string) int {
	n := 0
	for _, c := range s {
		if c == '.' {
			n++
		}
	}
	return n
}

// searchCandidates returns the ordered list of fully-qualified names to try
// for host: the search-expanded forms first (when eligible), the bare name
// last.
func (r *RefreshingAddressResolver) searchCandidates(host string) []string {
	name := dns.Fqdn(host)
	if len(r.opts.SearchDomains) == 0 || countDots(host) >= r.opts.Ndots {
		return []string{name}
	}
	candidates := make([]string, 0, len(r.opts.SearchDomains)+1)
	for _, sd := range r.opts.SearchDomains {
		candidates = append(candidates, dns.Fqdn(host+"."+sd))
	}
	candidates = append(candidates, name)
	return candidates
}

func (r *RefreshingAddressResolver) lookupAndCache(ctx context.Context, host string) ([]Endpoint, error) {
	for _, candidate := range r.searchCandidates(host) {
		eps, err := r.lookupOne(ctx, candidate)
		if err == nil {
			r.mu.Lock()
			if r.closed {
				r.mu.Unlock()
				return nil, errors.Wrap(ErrCancelled, "resolver closed")
			}
			hot := true
			if prev, ok := r.entries[host]; ok {
				hot = prev.hot
			}
			entry := &refreshEntry{endpoints: eps, hot: hot}
			r.entries[host] = entry
			r.fqdnOwner[candidate] = host
			r.scheduleRefresh(host, entry, r.cacheTTL(candidate))
			r.mu.Unlock()
			return eps, nil
		}
		if !IsUnknownHost(err) {
			return nil, err
		}
		// NXDOMAIN on this candidate: fall through to the next search form.
	}
	return nil, errors.Wrap(ErrUnknownHost, host)
}

// cacheTTL reports the remaining time until the soonest-expiring of the
// record types this resolver queries for fqdn (A, AAAA, or both per
// AddressTypes) expires from the cache. Entries not present (e.g. a
// negative-only answer with no stored deadline) are ignored; if none of the
// queried types are cached, cacheTTL returns 0 and the caller skips arming
// a refresh timer, leaving the entry to expire on its own.
func (r *RefreshingAddressResolver) cacheTTL(fqdn string) time.Duration {
	var types []uint16
	switch r.opts.AddressTypes {
	case ResolveV4Only:
		types = []uint16{dns.TypeA}
	case ResolveV6Only:
		types = []uint16{dns.TypeAAAA}
	default:
		types = []uint16{dns.TypeA, dns.TypeAAAA}
	}

	now := time.Now()
	var soonest time.Duration
	for _, t := range types {
		deadline, ok := r.cache.Deadline(Question{Name: fqdn, RecordType: t})
		if !ok || deadline.IsZero() {
			continue
		}
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			continue
		}
		if soonest == 0 || remaining < soonest {
			soonest = remaining
		}
	}
	return soonest
}

// lookupOne queries upstream for a single fully-qualified name per
// AddressTypes, deduplicating concurrent identical lookups the same way
// the teacher's request-dedup.go does.
func (r *RefreshingAddressResolver) lookupOne(ctx context.Context, fqdn string) ([]Endpoint, error) {
	var wantA, wantAAAA bool
	switch r.opts.AddressTypes {
	case ResolveV4Only:
		wantA = true
	case ResolveV6Only:
		wantAAAA = true
	default:
		wantA, wantAAAA = true, true
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	var aRecs, aaaaRecs []dns.RR
	var aErr, aaaaErr error
	var wg sync.WaitGroup
	if wantA {
		wg.Add(1)
		go func() {
			defer wg.Done()
			aRecs, aErr = r.dedupedQuery(ctx, Question{Name: fqdn, RecordType: dns.TypeA})
		}()
	}
	if wantAAAA {
		wg.Add(1)
		go func() {
			defer wg.Done()
			aaaaRecs, aaaaErr = r.dedupedQuery(ctx, Question{Name: fqdn, RecordType: dns.TypeAAAA})
		}()
	}
	wg.Wait()

	records, err := reconcile(r.opts.AddressTypes, aRecs, aErr, aaaaRecs, aaaaErr)
	if err != nil {
		return nil, err
	}
	return recordsToEndpoints(records)
}

// reconcile applies the v4/v6-preference rule from spec.md §4.3. Timeouts on
// every queried type produce a DNSTimeoutError; an NXDOMAIN on any queried
// type with no addresses from the others produces ErrUnknownHost (and is the
// only outcome cached negatively).
func reconcile(pref ResolvedAddressTypes, aRecs []dns.RR, aErr error, aaaaRecs []dns.RR, aaaaErr error) ([]dns.RR, error) {
	switch pref {
	case ResolveV4Only:
		return finishSingle(aRecs, aErr, "a")
	case ResolveV6Only:
		return finishSingle(aaaaRecs, aaaaErr, "aaaa")
	case ResolveV6Preferred:
		if len(aaaaRecs) > 0 {
			return aaaaRecs, nil
		}
		if len(aRecs) > 0 {
			return aRecs, nil
		}
		return nil, worstOf(aaaaErr, aErr)
	default: // ResolveV4Preferred
		if len(aRecs) > 0 {
			return aRecs, nil
		}
		if len(aaaaRecs) > 0 {
			return aaaaRecs, nil
		}
		return nil, worstOf(aErr, aaaaErr)
	}
}

func finishSingle(recs []dns.RR, err error, qtype string) ([]dns.RR, error) {
	if len(recs) > 0 {
		return recs, nil
	}
	if err == nil || IsUnknownHost(err) {
		return nil, err
	}
	return nil, &DNSTimeoutError{Questions: []string{qtype}}
}

// worstOf prefers reporting UnknownHost over a timeout: an authoritative
// NXDOMAIN on one family while the other timed out is still a definitive
// "no such host", not a timeout, per the "all-queries-timeout" wording in
// spec.md §4.3 (all queries, not any).
func worstOf(primary, secondary error) error {
	if primary == nil {
		primary = secondary
	}
	if secondary == nil {
		secondary = primary
	}
	if IsUnknownHost(primary) || IsUnknownHost(secondary) {
		return errors.Wrap(ErrUnknownHost, "no such host")
	}
	return &DNSTimeoutError{Questions: []string{"a", "aaaa"}}
}

func (r *RefreshingAddressResolver) dedupedQuery(ctx context.Context, q Question) ([]dns.RR, error) {
	if recs, negative, ok := r.cache.Lookup(q, time.Now()); ok {
		if negative {
			return nil, errors.Wrap(ErrUnknownHost, q.Name)
		}
		return recs, nil
	}

	r.inflightMu.Lock()
	req, ok := r.inflight[q]
	if !ok {
		req = &inflightLookup{done: make(chan struct{})}
		r.inflight[q] = req
	}
	r.inflightMu.Unlock()

	if ok {
		select {
		case <-req.done:
			return req.records, req.err
		case <-ctx.Done():
			return nil, ErrResponseTimeout
		}
	}

	records, err := r.client.Query(ctx, q)
	now := time.Now()
	switch {
	case err == nil:
		r.cache.Store(q, records, now)
	case IsUnknownHost(err):
		r.cache.StoreNegative(q, now)
	default:
		// Timeouts are deliberately not cached (spec.md §4.3, §9 open question).
	}

	req.records, req.err = records, err
	close(req.done)

	r.inflightMu.Lock()
	delete(r.inflight, q)
	r.inflightMu.Unlock()

	return records, err
}

func recordsToEndpoints(records []dns.RR) ([]Endpoint, error) {
	eps := make([]Endpoint, 0, len(records))
	for _, rr := range records {
		var ip string
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A.String()
		case *dns.AAAA:
			ip = v.AAAA.String()
		default:
			continue
		}
		ep, err := NewEndpoint(ip)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	if len(eps) == 0 {
		return nil, errors.Wrap(ErrUnknownHost, "no address records")
	}
	return eps, nil
}

// scheduleRefresh arms a timer at ttl*0.9 per spec.md §4.3. If the entry
// hasn't been looked up since the last refresh ("cold"), the refresh is
// skipped and the entry is left to expire at the cache's own TTL boundary
// instead.
func (r *RefreshingAddressResolver) scheduleRefresh(host string, entry *refreshEntry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	delay := time.Duration(float64(ttl) * 0.9)
	entry.timer = time.AfterFunc(delay, func() { r.refresh(host) })
}

func (r *RefreshingAddressResolver) refresh(host string) {
	r.mu.Lock()
	entry, ok := r.entries[host]
	if !ok || r.closed {
		r.mu.Unlock()
		return
	}
	if !entry.hot {
		r.deleteEntryLocked(host)
		r.mu.Unlock()
		return
	}
	entry.hot = false
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.QueryTimeout)
	eps, err := r.lookupAndCache(ctx, host)
	cancel()

	if err != nil {
		r.mu.Lock()
		entry, ok := r.entries[host]
		if !ok || r.closed {
			r.mu.Unlock()
			return
		}
		entry.attempts++
		if r.opts.MaxAttempts > 0 && entry.attempts >= r.opts.MaxAttempts {
			r.deleteEntryLocked(host)
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		time.AfterFunc(r.opts.RefreshBackoff, func() { r.refresh(host) })
		return
	}
	_ = eps // lookupAndCache already installed the refreshed entry.
}

// deleteEntryLocked removes host's entry along with every fqdnOwner mapping
// that points at it. Must be called with r.mu held.
func (r *RefreshingAddressResolver) deleteEntryLocked(host string) {
	delete(r.entries, host)
	for fqdn, owner := range r.fqdnOwner {
		if owner == host {
			delete(r.fqdnOwner, fqdn)
		}
	}
}

// onCacheRemoval reacts to the shared DnsCache evicting a question this
// resolver depends on by re-resolving the corresponding (unexpanded) host
// entry. q.Name is the fully-qualified (and possibly search-expanded) name
// the cache stores, which generally isn't the raw key entries is indexed by
// -- fqdnOwner bridges the two keyspaces. Removal of unrelated questions is
// a no-op.
func (r *RefreshingAddressResolver) onCacheRemoval(q Question, cause RemovalCause) {
	r.mu.Lock()
	host, tracked := r.fqdnOwner[q.Name]
	if !tracked {
		// Fall back to treating q.Name itself as the entries key, in case a
		// caller looks up already-FQDN hosts directly.
		host = q.Name
		_, tracked = r.entries[host]
	}
	r.mu.Unlock()
	if !tracked {
		return
	}
	go r.refresh(host)
}

// Close cancels all pending refresh timers and empties the resolver's
// local state synchronously. Resolutions in flight complete with
// ErrCancelled once their lookup returns.
func (r *RefreshingAddressResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for host, entry := range r.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(r.entries, host)
	}
	r.fqdnOwner = make(map[string]string)
}
