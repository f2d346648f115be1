package httpcore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	mu    sync.Mutex
	count int
}

// DialContext returns one end of an in-memory pipe, with the server side
// continuously drained so a caller writing an HTTP/2 client preface over
// the connection (ConnectionPool.Acquire does, for ProtocolHTTP2 keys)
// never blocks or fails -- nothing ever answers, which is fine for tests
// that only exercise pooling/reuse bookkeeping, not an actual round trip.
func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
	client, server := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, server) }()
	return client, nil
}

type countingListener struct {
	mu     sync.Mutex
	opens  int
	closes int
}

func (l *countingListener) OnOpen(ConnectionKey)  { l.mu.Lock(); l.opens++; l.mu.Unlock() }
func (l *countingListener) OnClose(ConnectionKey) { l.mu.Lock(); l.closes++; l.mu.Unlock() }

func TestConnectionPoolPipeliningReusesConnection(t *testing.T) {
	dialer := &fakeDialer{}
	listener := &countingListener{}
	pool := NewConnectionPool(ConnectionPoolOptions{
		UseHTTP1Pipelining: true,
		Dialer:             dialer,
		Listener:           listener,
	})
	key := ConnectionKey{Protocol: ProtocolHTTP1, Remote: "example.com:80"}

	for i := 0; i < 3; i++ {
		pc, err := pool.Acquire(context.Background(), key)
		require.NoError(t, err)
		pool.RequestSent(pc)
		pool.ResponseReceived(pc)
	}

	assert.Equal(t, 1, dialer.count, "pipelining must reuse one connection for consecutive requests")
}

func TestConnectionPoolNonPipeliningOpensTwoForOverlap(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewConnectionPool(ConnectionPoolOptions{
		UseHTTP1Pipelining: false,
		Dialer:             dialer,
	})
	key := ConnectionKey{Protocol: ProtocolHTTP1, Remote: "example.com:80"}

	pc1, err := pool.Acquire(context.Background(), key)
	require.NoError(t, err)
	pc2, err := pool.Acquire(context.Background(), key)
	require.NoError(t, err)

	assert.NotSame(t, pc1, pc2)
	assert.Equal(t, 2, dialer.count)
}

func TestConnectionPoolHTTP2ReusesSingleConnection(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewConnectionPool(ConnectionPoolOptions{Dialer: dialer})
	key := ConnectionKey{Protocol: ProtocolHTTP2, Remote: "example.com:443"}

	pc1, err := pool.Acquire(context.Background(), key)
	require.NoError(t, err)
	pool.ResponseReceived(pc1)
	pc2, err := pool.Acquire(context.Background(), key)
	require.NoError(t, err)

	assert.Same(t, pc1, pc2)
	assert.Equal(t, 1, dialer.count)
}

func TestConnectionCloseHeaderClosesExactlyOneConnectionPerRequest(t *testing.T) {
	dialer := &fakeDialer{}
	listener := &countingListener{}
	pool := NewConnectionPool(ConnectionPoolOptions{Dialer: dialer, Listener: listener})

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := ConnectionKey{Protocol: ProtocolHTTP1, Remote: "example.com:80", Local: string(rune('a' + i))}
			pc, err := pool.Acquire(context.Background(), key)
			require.NoError(t, err)
			pool.MarkConnectionClose(pc)
			pool.ResponseReceived(pc)
		}(i)
	}
	wg.Wait()

	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Equal(t, n, listener.opens)
	assert.Equal(t, n, listener.closes)
}

func TestMaxConnectionAgeClosesBetweenRequests(t *testing.T) {
	dialer := &fakeDialer{}
	listener := &countingListener{}
	pool := NewConnectionPool(ConnectionPoolOptions{
		UseHTTP1Pipelining: true,
		MaxConnectionAge:   10 * time.Millisecond,
		Dialer:             dialer,
		Listener:           listener,
	})
	key := ConnectionKey{Protocol: ProtocolHTTP1, Remote: "example.com:80"}

	pc, err := pool.Acquire(context.Background(), key)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	pool.ResponseReceived(pc)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Equal(t, 1, listener.closes, "a connection past max age must close once its current response completes")
}

func TestValidateConnectionHeader(t *testing.T) {
	forceClose, err := ValidateConnectionHeader("Close")
	require.NoError(t, err)
	assert.True(t, forceClose)

	_, err = ValidateConnectionHeader("keep-alive")
	assert.True(t, IsInvalidArgument(err))
}

func TestValidateRequestHeadersRejectsForbidden(t *testing.T) {
	err := ValidateRequestHeaders(map[string]string{"Host": "localhost"})
	assert.True(t, IsInvalidArgument(err))

	err = ValidateRequestHeaders(map[string]string{"Connection": "close"})
	assert.NoError(t, err)
}

// TestConnectionPoolHTTP2TLSRoundTrip exercises the real dial path: TLS
// ALPN-negotiated against a live HTTP/2 server, a genuine http2.ClientConn
// handed out by Acquire, and the streamFlowController fed from the bytes
// actually read off the response body.
func TestConnectionPoolHTTP2TLSRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	server := httptest.NewUnstartedServer(mux)
	server.EnableHTTP2 = true
	server.StartTLS()
	defer server.Close()

	certPool := x509.NewCertPool()
	certPool.AddCert(server.Certificate())

	pool := NewConnectionPool(ConnectionPoolOptions{
		TLSConfig: &tls.Config{RootCAs: certPool},
	})
	defer pool.Close()

	key := ConnectionKey{Protocol: ProtocolHTTP2, Remote: strings.TrimPrefix(server.URL, "https://")}
	pc, err := pool.Acquire(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, pc.HTTP2ClientConn(), "a ProtocolHTTP2 pooledConn must carry a real http2.ClientConn")

	req, err := http.NewRequest(http.MethodGet, server.URL+"/", nil)
	require.NoError(t, err)
	resp, err := pc.HTTP2ClientConn().RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "HTTP/2.0", resp.Proto)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))

	update := pool.OnStreamDataReceived(pc, uint32(len(body)))
	assert.Equal(t, uint32(0), update, "4 bytes consumed is nowhere near half of the default 64KiB window")
	pool.ResponseReceived(pc)
}

func TestShouldGoAwayFrameSizeError(t *testing.T) {
	pool := NewConnectionPool(ConnectionPoolOptions{HTTP2: HTTP2Settings{MaxFrameSize: 1024}})
	assert.False(t, pool.ShouldGoAwayFrameSizeError(1024))
	assert.True(t, pool.ShouldGoAwayFrameSizeError(1025))
}
