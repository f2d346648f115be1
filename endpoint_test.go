package httpcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpointPlainHost(t *testing.T) {
	e, err := NewEndpoint("foo.com")
	require.NoError(t, err)
	assert.Equal(t, "foo.com", e.Host())
	assert.False(t, e.HasPort())
	assert.Equal(t, uint32(DefaultWeight), e.Weight())
}

func TestNewEndpointRejectsEmptyHost(t *testing.T) {
	_, err := NewEndpoint("")
	assert.True(t, IsInvalidArgument(err))
}

func TestNewEndpointIPLiteral(t *testing.T) {
	e, err := NewEndpoint("192.0.2.1")
	require.NoError(t, err)
	ip, ok := e.IPAddr()
	assert.True(t, ok)
	assert.Equal(t, "192.0.2.1", ip)
	assert.Equal(t, IPFamilyV4, e.IPFamily())
	assert.True(t, e.IsIPLiteral())
}

func TestNewEndpointIPv6LiteralUnbracketedAccepted(t *testing.T) {
	e, err := NewEndpoint("::1")
	require.NoError(t, err)
	assert.Equal(t, IPFamilyV6, e.IPFamily())
}

// S2: of("foo:80") must be rejected by the single-argument constructor.
func TestNewEndpointRejectsHostPort(t *testing.T) {
	_, err := NewEndpoint("foo:80")
	assert.True(t, IsInvalidArgument(err), "a bare host:port string must be rejected by NewEndpoint")
}

func TestNewEndpointRejectsAmbiguousBareIPv6(t *testing.T) {
	_, err := NewEndpoint("2001:db8:0:0:0:0:0:1:80")
	assert.True(t, IsInvalidArgument(err))
}

func TestParseHostPort(t *testing.T) {
	e, err := Parse("foo.com:8080")
	require.NoError(t, err)
	assert.Equal(t, "foo.com", e.Host())
	assert.Equal(t, 8080, e.Port())
}

func TestParseBracketedIPv6WithPort(t *testing.T) {
	e, err := Parse("[2001:db8::1]:443")
	require.NoError(t, err)
	assert.Equal(t, 443, e.Port())
	ip, _ := e.IPAddr()
	assert.Equal(t, "2001:db8::1", ip)
}

func TestParseRejectsBareAmbiguousIPv6(t *testing.T) {
	_, err := Parse("2001:db8::1")
	assert.True(t, IsInvalidArgument(err))
}

func TestParseDiscardsUserinfoPrefix(t *testing.T) {
	e, err := Parse("user@foo.com:80")
	require.NoError(t, err)
	assert.Equal(t, "foo.com", e.Host())
	assert.Equal(t, 80, e.Port())
}

// property 3: Parse(e.Authority()) round-trips for every constructed Endpoint.
func TestAuthorityRoundTrip(t *testing.T) {
	cases := []Endpoint{
		mustEndpoint(t, "foo.com"),
		mustNewEndpointWithPort(t, "foo.com", 443),
		mustEndpoint(t, "192.0.2.1"),
		mustNewEndpointWithPort(t, "192.0.2.1", 53),
		mustEndpoint(t, "2001:db8::1"),
		mustNewEndpointWithPort(t, "2001:db8::1", 8443),
	}
	for _, e := range cases {
		round, err := Parse(e.Authority())
		require.NoError(t, err)
		assert.True(t, e.Equal(round), "round trip mismatch for %q -> %q", e.Authority(), round.Authority())
	}
}

// property 1/2: equality, ordering, and hashing ignore Weight and attrs.
func TestEqualityIgnoresWeightAndAttrs(t *testing.T) {
	a := mustEndpoint(t, "foo.com").WithWeight(1000).WithAttr("region", "us")
	b := mustEndpoint(t, "foo.com").WithWeight(9999).WithAttr("region", "eu")
	assert.True(t, a.Equal(b))
	assert.Equal(t, 0, a.Compare(b))
	assert.Equal(t, a.hashKey(), b.hashKey())
}

func TestCompareOrdersByHostThenPortThenIP(t *testing.T) {
	a := mustEndpoint(t, "a.com")
	b := mustEndpoint(t, "b.com")
	assert.True(t, a.Compare(b) < 0)

	withPort80 := mustNewEndpointWithPort(t, "a.com", 80)
	withPort443 := mustNewEndpointWithPort(t, "a.com", 443)
	assert.True(t, withPort80.Compare(withPort443) < 0)
}

func TestSortEndpointsOrdersInPlace(t *testing.T) {
	eps := []Endpoint{mustEndpoint(t, "c.com"), mustEndpoint(t, "a.com"), mustEndpoint(t, "b.com")}
	SortEndpoints(eps)
	assert.Equal(t, "a.com", eps[0].Host())
	assert.Equal(t, "b.com", eps[1].Host())
	assert.Equal(t, "c.com", eps[2].Host())
}

func TestWithIPAddrClearOnIPLiteralHostIsIllegalState(t *testing.T) {
	e := mustEndpoint(t, "192.0.2.1")
	_, err := e.WithIPAddr("")
	assert.True(t, IsIllegalState(err))
}

func TestWithPortRejectsOutOfRange(t *testing.T) {
	e := mustEndpoint(t, "foo.com")
	_, err := e.WithPort(0)
	assert.True(t, IsInvalidArgument(err))
	_, err = e.WithPort(70000)
	assert.True(t, IsInvalidArgument(err))
}

func TestToURIComposesSchemeAuthorityPath(t *testing.T) {
	e := mustNewEndpointWithPort(t, "foo.com", 443)
	assert.Equal(t, "https://foo.com:443/v1", e.ToURI("https", "/v1"))
	assert.Equal(t, "https://foo.com:443", e.ToURI("https"))
}

func mustNewEndpointWithPort(t *testing.T, host string, port int) Endpoint {
	t.Helper()
	e, err := NewEndpointWithPort(host, port)
	require.NoError(t, err)
	return e
}

func mustEndpoint(t *testing.T, host string) Endpoint {
	t.Helper()
	e, err := NewEndpoint(host)
	require.NoError(t, err)
	return e
}
