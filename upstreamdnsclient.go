package httpcore

import (
	"context"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// UpstreamDNSClient is the default DNSClient: a plain miekg/dns exchange
// against one upstream server over UDP or TCP. Grounded on the teacher's
// dnsclient.go (DNSClient wrapping a *dns.Client + Pipeline); httpcore
// drops the pipeline wrapper since connection reuse for the resolver's own
// upstream queries is out of scope here -- ConnectionPool's pipelining
// applies to the HTTP traffic this package's resolver supports, not to the
// resolver's own DNS exchanges.
type UpstreamDNSClient struct {
	endpoint string
	client   *dns.Client
}

// NewUpstreamDNSClient builds a client that queries endpoint (host:port)
// over net ("udp" or "tcp").
func NewUpstreamDNSClient(endpoint, net string) *UpstreamDNSClient {
	return &UpstreamDNSClient{
		endpoint: endpoint,
		client:   &dns.Client{Net: net},
	}
}

// Query issues q against the upstream server and returns its answer
// records, translating RcodeNameError into ErrUnknownHost and a context
// timeout into ErrResponseTimeout per the DNSClient contract
// RefreshingAddressResolver depends on.
func (c *UpstreamDNSClient) Query(ctx context.Context, q Question) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(q.Name, q.RecordType)
	msg.RecursionDesired = true

	resp, _, err := c.client.ExchangeContext(ctx, msg, c.endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrResponseTimeout
		}
		return nil, err
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, errors.Wrap(ErrUnknownHost, q.Name)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, errors.Wrapf(ErrUnknownHost, "%s: rcode %s", q.Name, dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) == 0 {
		return nil, errors.Wrap(ErrUnknownHost, q.Name)
	}
	return resp.Answer, nil
}

func (c *UpstreamDNSClient) String() string {
	return "DNS(" + c.endpoint + ")"
}
