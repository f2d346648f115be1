package httpcore

import "sync"

// EndpointGroupListener is notified with the new snapshot every time a
// dynamic group's membership changes.
type EndpointGroupListener func(endpoints []Endpoint)

// EndpointGroup exposes a (possibly changing) set of Endpoints.
// Static and dynamic groups (and OrElse over them) return the same slice
// instance across calls when nothing changed, so callers can cheaply detect
// "no update" via pointer identity rather than a deep comparison. A
// Composite of two or more children builds a new slice on every call.
type EndpointGroup interface {
	Endpoints() []Endpoint
	AddListener(EndpointGroupListener)
}

// StaticEndpointGroup is an immutable, pre-populated EndpointGroup.
type StaticEndpointGroup struct {
	endpoints []Endpoint
}

// NewStaticEndpointGroup builds a group over a fixed endpoint list.
func NewStaticEndpointGroup(endpoints ...Endpoint) *StaticEndpointGroup {
	return &StaticEndpointGroup{endpoints: endpoints}
}

func (g *StaticEndpointGroup) Endpoints() []Endpoint { return g.endpoints }

// AddListener is a no-op: a static group's membership never changes, so it
// never has anything to notify a listener about.
func (g *StaticEndpointGroup) AddListener(EndpointGroupListener) {}

// DynamicEndpointGroup's membership can be replaced at any time via
// SetEndpoints, atomically and with listener notification. The
// RefreshingAddressResolver is the typical producer feeding one of these.
type DynamicEndpointGroup struct {
	mu        sync.Mutex
	endpoints []Endpoint
	listeners []EndpointGroupListener
}

func NewDynamicEndpointGroup(initial ...Endpoint) *DynamicEndpointGroup {
	return &DynamicEndpointGroup{endpoints: initial}
}

func (g *DynamicEndpointGroup) Endpoints() []Endpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.endpoints
}

// SetEndpoints atomically replaces the group's membership and notifies
// every listener with the new snapshot.
func (g *DynamicEndpointGroup) SetEndpoints(endpoints []Endpoint) {
	g.mu.Lock()
	g.endpoints = endpoints
	listeners := append([]EndpointGroupListener(nil), g.listeners...)
	g.mu.Unlock()

	for _, l := range listeners {
		l(endpoints)
	}
}

func (g *DynamicEndpointGroup) AddListener(l EndpointGroupListener) {
	g.mu.Lock()
	g.listeners = append(g.listeners, l)
	g.mu.Unlock()
}

// orElseGroup exposes primary's endpoints when non-empty, otherwise
// fallback's.
type orElseGroup struct {
	primary  EndpointGroup
	fallback EndpointGroup
}

// OrElse returns a group that prefers primary's snapshot, falling back to
// fallback's only when primary is currently empty.
func OrElse(primary, fallback EndpointGroup) EndpointGroup {
	return &orElseGroup{primary: primary, fallback: fallback}
}

func (g *orElseGroup) Endpoints() []Endpoint {
	if eps := g.primary.Endpoints(); len(eps) > 0 {
		return eps
	}
	return g.fallback.Endpoints()
}

func (g *orElseGroup) AddListener(l EndpointGroupListener) {
	g.primary.AddListener(l)
	g.fallback.AddListener(l)
}

// compositeGroup concatenates its children's snapshots in declaration
// order every time Endpoints is called.
type compositeGroup struct {
	children []EndpointGroup
}

// Composite returns a group concatenating children's endpoint snapshots in
// declaration order. An empty composite is the identity for composition
// (its Endpoints() is always empty); a composite of exactly one child
// returns that child directly rather than wrapping it.
func Composite(children ...EndpointGroup) EndpointGroup {
	if len(children) == 1 {
		return children[0]
	}
	return &compositeGroup{children: children}
}

func (g *compositeGroup) Endpoints() []Endpoint {
	var all []Endpoint
	for _, c := range g.children {
		all = append(all, c.Endpoints()...)
	}
	return all
}

func (g *compositeGroup) AddListener(l EndpointGroupListener) {
	for _, c := range g.children {
		c.AddListener(l)
	}
}

// InitialEndpointsFuture completes (sends one snapshot on its returned
// channel, which is never closed) as soon as group's Endpoints() is
// non-empty, either immediately (already
// populated) or after the first listener notification that makes it so.
// AwaitInitialEndpoints is its blocking form.
func InitialEndpointsFuture(group EndpointGroup) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	if eps := group.Endpoints(); len(eps) > 0 {
		ch <- eps
		return ch
	}

	var once sync.Once
	group.AddListener(func(eps []Endpoint) {
		if len(eps) == 0 {
			return
		}
		once.Do(func() { ch <- eps })
	})
	return ch
}

// AwaitInitialEndpoints blocks until group's first non-empty snapshot.
func AwaitInitialEndpoints(group EndpointGroup) []Endpoint {
	return <-InitialEndpointsFuture(group)
}
