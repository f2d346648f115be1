/*
Package httpcore implements the runtime core of an HTTP client: endpoint
discovery, connection pooling and lifecycle, and request retry scheduling.
It is not a full HTTP client -- there is no URL parser or body codec here --
it is the substrate a higher-level client builds on. There are a handful of
fundamental types.

Endpoints and groups

An Endpoint is a single resolved network destination (host, port, and a
resolved IP). EndpointGroup wraps a dynamic or static set of Endpoints and
notifies listeners when that set changes; groups can be composed (OrElse,
Composite) the way resolvers are composed elsewhere in this family of
libraries.

Resolvers

RefreshingAddressResolver resolves a hostname to an Endpoint's address
through a pluggable DNSClient, with its own cache (DnsCache) and a
refresh loop that re-resolves hot entries before their TTL expires rather
than on the next miss.

Connection pool

ConnectionPool owns the lifecycle of connections, keyed by their
(protocol, remote, local) triple: HTTP/1 pipelining, HTTP/2 multiplexing
over one physical connection, max-age enforcement between requests, and
Connection: close handling.

Retry scheduler

RetryScheduler is a single-threaded, deadline-bounded scheduler for retry
attempts, built around one goroutine's affinity rather than a pool --
scheduling and backoff calls not from the owning goroutine get rejected,
not queued; Close, CloseWithError and WhenClosed are not checked.

This example resolves a host, builds a group, and obtains a pooled
connection for it.

	resolver := httpcore.NewRefreshingAddressResolver(dnsClient, httpcore.NewDnsCache(httpcore.DnsCacheOptions{Capacity: 1000}), httpcore.RefreshingAddressResolverOptions{})
	group := httpcore.NewDynamicEndpointGroup()
	pool := httpcore.NewConnectionPool(httpcore.ConnectionPoolOptions{Dialer: dialer})

*/
package httpcore
