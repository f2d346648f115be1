package httpcore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamDNSClientNXDOMAIN(t *testing.T) {
	srv, addr := startTestDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		w.WriteMsg(m)
	})
	defer srv.Shutdown()

	client := NewUpstreamDNSClient(addr, "udp")
	_, err := client.Query(context.Background(), Question{Name: "nope.example.", RecordType: dns.TypeA})
	assert.True(t, IsUnknownHost(err))
}

func TestUpstreamDNSClientSuccess(t *testing.T) {
	srv, addr := startTestDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, aRecord("foo.example.", 60, "1.2.3.4"))
		w.WriteMsg(m)
	})
	defer srv.Shutdown()

	client := NewUpstreamDNSClient(addr, "udp")
	recs, err := client.Query(context.Background(), Question{Name: "foo.example.", RecordType: dns.TypeA})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1.2.3.4", recs[0].(*dns.A).A.String())
}

func startTestDNSServer(t *testing.T, handler dns.HandlerFunc) (*dns.Server, string) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go srv.ActivateAndServe()
	time.Sleep(20 * time.Millisecond)
	return srv, pc.LocalAddr().String()
}
