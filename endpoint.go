package httpcore

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IPFamily identifies whether an Endpoint's resolved address is IPv4, IPv6,
// or not yet known.
type IPFamily int

const (
	IPFamilyNone IPFamily = iota
	IPFamilyV4
	IPFamilyV6
)

func (f IPFamily) String() string {
	switch f {
	case IPFamilyV4:
		return "v4"
	case IPFamilyV6:
		return "v6"
	default:
		return "none"
	}
}

// attrs is the copy-on-write attribute map backing Endpoint.attributes. It's
// always replaced wholesale on mutation so two Endpoints can share the same
// underlying map safely.
type attrs map[string]interface{}

// Endpoint is an immutable addressable network target: a host (which may
// itself be an IP literal), an optional port, an optional resolved IP
// address, a selection weight, and typed attributes.
//
// Endpoint is a value type. Builders (With*) return a new value; equality,
// hashing, and ordering never consider weight or attributes.
type Endpoint struct {
	host     string
	port     int // 0 means "no port"
	ipAddr   string
	ipFamily IPFamily
	weight   uint32
	attrs    *attrs
}

// DefaultWeight is used for Endpoints that don't specify one explicitly.
const DefaultWeight = 1000

// NewEndpoint builds an Endpoint from a bare host. The host must not be
// parsed again as "host:port" -- use NewEndpointWithPort or Parse for that.
func NewEndpoint(host string) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, errors.Wrap(ErrInvalidArgument, "empty host")
	}
	ip, family, ok := parseIPLiteral(host)
	if !ok && strings.IndexByte(host, ':') >= 0 {
		// Not a recognized IP literal (bracketed IPv6 and zone-id forms are
		// handled above), but it contains a ':' -- that's "host:port" or an
		// unbracketed IPv6 literal, both ambiguous for a single-argument
		// constructor. Reject it the same way Parse rejects bare IPv6.
		return Endpoint{}, errors.Wrapf(ErrInvalidArgument, "ambiguous host %q: use Parse or NewEndpointWithPort", host)
	}
	e := Endpoint{host: host, weight: DefaultWeight}
	if ok {
		e.host = ip
		e.ipAddr = ip
		e.ipFamily = family
	}
	return e, nil
}

// NewEndpointWithPort builds an Endpoint from a host and an explicit port.
func NewEndpointWithPort(host string, port int) (Endpoint, error) {
	e, err := NewEndpoint(host)
	if err != nil {
		return Endpoint{}, err
	}
	return e.WithPort(port)
}

// Parse accepts the authority forms "host", "host:port", "[ipv6]", and
// "[ipv6]:port", with an optional "user@" prefix that is discarded (it plays
// no part in equality). Parse is the one entry point that splits ports;
// NewEndpoint rejects a "host:port" string with ErrInvalidArgument.
func Parse(authority string) (Endpoint, error) {
	s := authority
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return Endpoint{}, errors.Wrap(ErrInvalidArgument, "empty authority")
	}

	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return Endpoint{}, errors.Wrapf(ErrInvalidArgument, "unmatched '[' in %q", authority)
		}
		host := s[1:end]
		rest := s[end+1:]
		e, err := NewEndpoint(host)
		if err != nil {
			return Endpoint{}, err
		}
		if e.ipFamily != IPFamilyV6 {
			return Endpoint{}, errors.Wrapf(ErrInvalidArgument, "bracketed host %q is not an IPv6 literal", host)
		}
		if rest == "" {
			return e, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return Endpoint{}, errors.Wrapf(ErrInvalidArgument, "unexpected trailing data after ']' in %q", authority)
		}
		port, err := parsePort(rest[1:])
		if err != nil {
			return Endpoint{}, err
		}
		return e.WithPort(port)
	}

	// Bare IPv6 without brackets is ambiguous with host:port, reject it the
	// same way the single-host constructor would.
	if strings.Count(s, ":") > 1 {
		return Endpoint{}, errors.Wrapf(ErrInvalidArgument, "ambiguous IPv6 literal %q must be bracketed", authority)
	}

	if i := strings.IndexByte(s, ':'); i >= 0 {
		host := s[:i]
		port, err := parsePort(s[i+1:])
		if err != nil {
			return Endpoint{}, err
		}
		return NewEndpointWithPort(host, port)
	}
	return NewEndpoint(s)
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidArgument, "invalid port %q", s)
	}
	return p, nil
}

// parseIPLiteral normalizes an IP literal: strips surrounding brackets and a
// zone id, and returns its canonical textual form. ok is false if s isn't an
// IP at all. A zone id is dropped on v4 addresses too; it is not rejected.
func parseIPLiteral(s string) (string, IPFamily, bool) {
	host := s
	if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i]
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", IPFamilyNone, false
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String(), IPFamilyV4, true
	}
	return ip.String(), IPFamilyV6, true
}

// Host returns the Endpoint's host component, which may be a hostname or a
// canonicalized IP literal.
func (e Endpoint) Host() string { return e.host }

// HasPort reports whether an explicit port was set.
func (e Endpoint) HasPort() bool { return e.port != 0 }

// Port returns the configured port, or 0 if none was set.
func (e Endpoint) Port() int { return e.port }

// IPAddr returns the resolved (or literal) IP address, and whether one is
// present.
func (e Endpoint) IPAddr() (string, bool) { return e.ipAddr, e.ipAddr != "" }

// IPFamily reports the address family of IPAddr, or IPFamilyNone.
func (e Endpoint) IPFamily() IPFamily { return e.ipFamily }

// Weight returns the selection weight. Weight is not part of equality,
// hashing, or ordering.
func (e Endpoint) Weight() uint32 { return e.weight }

// IsIPLiteral reports whether Host() is itself an IP literal.
func (e Endpoint) IsIPLiteral() bool { return e.ipFamily != IPFamilyNone && e.ipAddr == e.host }

// Attr looks up a typed attribute by key.
func (e Endpoint) Attr(key string) (interface{}, bool) {
	if e.attrs == nil {
		return nil, false
	}
	v, ok := (*e.attrs)[key]
	return v, ok
}

// WithPort returns an Endpoint with the given port. A no-op mutation (the
// port is already set to this value) may alias the receiver.
func (e Endpoint) WithPort(port int) (Endpoint, error) {
	if port <= 0 || port > 65535 {
		return Endpoint{}, errors.Wrapf(ErrInvalidArgument, "invalid port %d", port)
	}
	if e.port == port {
		return e, nil
	}
	e.port = port
	return e, nil
}

// WithoutPort clears any configured port.
func (e Endpoint) WithoutPort() Endpoint {
	if e.port == 0 {
		return e
	}
	e.port = 0
	return e
}

// WithDefaultPort sets the port only if none is already configured.
func (e Endpoint) WithDefaultPort(port int) (Endpoint, error) {
	if e.port != 0 {
		return e, nil
	}
	return e.WithPort(port)
}

// WithIPAddr attaches a resolved IP address to the Endpoint. Passing an
// empty string clears it, unless the Endpoint's host is itself an IP
// literal, in which case that's a programming error: IllegalState.
func (e Endpoint) WithIPAddr(ip string) (Endpoint, error) {
	if ip == "" {
		if e.IsIPLiteral() {
			return Endpoint{}, errors.Wrap(ErrIllegalState, "cannot clear ip_addr on an endpoint whose host is itself an IP literal")
		}
		if e.ipAddr == "" {
			return e, nil
		}
		e.ipAddr = ""
		e.ipFamily = IPFamilyNone
		return e, nil
	}
	canon, family, ok := parseIPLiteral(ip)
	if !ok {
		return Endpoint{}, errors.Wrapf(ErrInvalidArgument, "invalid ip address %q", ip)
	}
	if e.ipAddr == canon {
		return e, nil
	}
	e.ipAddr = canon
	e.ipFamily = family
	return e, nil
}

// WithWeight returns an Endpoint with a new selection weight. Weight does
// not participate in equality or hashing.
func (e Endpoint) WithWeight(weight uint32) Endpoint {
	if e.weight == weight {
		return e
	}
	e.weight = weight
	return e
}

// WithAttr returns an Endpoint with an additional (or replaced) attribute.
// The underlying map is copied so prior Endpoints sharing it are unaffected.
func (e Endpoint) WithAttr(key string, value interface{}) Endpoint {
	next := make(attrs, len(derefAttrs(e.attrs))+1)
	for k, v := range derefAttrs(e.attrs) {
		next[k] = v
	}
	next[key] = value
	e.attrs = &next
	return e
}

func derefAttrs(a *attrs) attrs {
	if a == nil {
		return nil
	}
	return *a
}

// Authority renders the Endpoint as an RFC 3986 authority: "host",
// "host:port", "[ipv6]", or "[ipv6]:port". IPv6 hosts are always bracketed.
func (e Endpoint) Authority() string {
	host := e.host
	if e.ipFamily == IPFamilyV6 {
		host = "[" + host + "]"
	}
	if e.port == 0 {
		return host
	}
	return host + ":" + strconv.Itoa(e.port)
}

// ToURI composes scheme + authority [+ path] into a URI string. No path is
// synthesized when none is given.
func (e Endpoint) ToURI(scheme string, path ...string) string {
	u := scheme + "://" + e.Authority()
	if len(path) > 0 && path[0] != "" {
		u += path[0]
	}
	return u
}

func (e Endpoint) String() string { return e.Authority() }

// compareKey produces the total order key from spec.md §3: lexicographic on
// (host, port-or-0, ip-or-empty). Weight is deliberately excluded.
func (e Endpoint) compareKey() (string, int, string) {
	return e.host, e.port, e.ipAddr
}

// Compare implements the Endpoint total order (weight-independent).
func (e Endpoint) Compare(other Endpoint) int {
	ah, ap, ai := e.compareKey()
	bh, bp, bi := other.compareKey()
	if ah != bh {
		return strings.Compare(ah, bh)
	}
	if ap != bp {
		if ap < bp {
			return -1
		}
		return 1
	}
	return strings.Compare(ai, bi)
}

// Equal reports weight- and attribute-independent equality, matching
// Compare(other) == 0.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Compare(other) == 0
}

// SortEndpoints sorts a slice of Endpoints in place using the total order
// defined by Compare.
func SortEndpoints(eps []Endpoint) {
	sort.Slice(eps, func(i, j int) bool { return eps[i].Compare(eps[j]) < 0 })
}

func (e Endpoint) hashKey() string {
	return fmt.Sprintf("%s\x00%d\x00%s", e.host, e.port, e.ipAddr)
}
