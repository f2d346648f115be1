package httpcore

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// SessionProtocol identifies the wire protocol a pooled connection speaks.
type SessionProtocol int

const (
	ProtocolHTTP1 SessionProtocol = iota
	ProtocolHTTP2
)

func (p SessionProtocol) String() string {
	if p == ProtocolHTTP2 {
		return "h2"
	}
	return "http1"
}

// ConnectionKey identifies a pool slot: one physical HTTP/2 connection, or
// one small pipeline-capable group of HTTP/1 connections, per
// (protocol, remote, local).
type ConnectionKey struct {
	Protocol SessionProtocol
	Remote   string
	Local    string
}

// ConnectionPoolListener observes open/close events, the same shape as the
// teacher's ListenerMetrics consumer in pipeline.go, generalized to a
// callback interface so callers can wire their own metrics sink.
type ConnectionPoolListener interface {
	OnOpen(key ConnectionKey)
	OnClose(key ConnectionKey)
}

// Dialer opens the transport-level connection for a key. Split out so
// tests can substitute an in-memory pipe instead of a real net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ConnectionPoolOptions configures pooling behavior.
type ConnectionPoolOptions struct {
	UseHTTP1Pipelining bool
	MaxConnectionAge   time.Duration
	HTTP2              HTTP2Settings
	Dialer             Dialer
	Listener           ConnectionPoolListener

	// TLSConfig, when non-nil, is cloned and dialed through for every key:
	// NextProtos is set to "h2" for ProtocolHTTP2 keys and "http/1.1"
	// otherwise, so ALPN negotiates the protocol the key already commits
	// the caller to. A nil TLSConfig dials plain TCP (h2c-style for
	// ProtocolHTTP2 keys, which golang.org/x/net/http2's ClientConn
	// supports directly over a non-TLS net.Conn).
	TLSConfig *tls.Config
}

// pooledConn wraps a single physical connection plus its pool bookkeeping:
// creation time (for max-age), whether Connection: close was observed (so
// it's never handed out again), and in-flight request count (pipelining
// depth for HTTP/1, stream count for HTTP/2). For ProtocolHTTP2 keys it
// also owns the http2.ClientConn multiplexed over conn and a
// streamFlowController tracking consumption against the connection's
// advertised window.
type pooledConn struct {
	key          ConnectionKey
	conn         net.Conn
	createdAt    time.Time
	mu           sync.Mutex
	closing      bool // Connection: close or initiate_connection_shutdown seen
	requestsSent int
	inFlight     int

	h2Transport *http2.Transport
	h2Conn      *http2.ClientConn
	flow        *streamFlowController
}

func (c *pooledConn) age() time.Duration { return time.Since(c.createdAt) }

// HTTP2ClientConn returns the multiplexed HTTP/2 connection callers must
// use to issue requests against a ProtocolHTTP2 pooledConn (nil for
// ProtocolHTTP1 connections, where the caller writes to Conn() directly).
func (c *pooledConn) HTTP2ClientConn() *http2.ClientConn { return c.h2Conn }

// Conn returns the underlying transport connection.
func (c *pooledConn) Conn() net.Conn { return c.conn }

// ConnectionPool is a per-event-loop pool keyed by (protocol, remote,
// local): a single physical connection per key for HTTP/2, and a small
// pipeline-capable set per key for HTTP/1. Grounded on the teacher's
// pipeline.go, which dials lazily on first request and serializes
// writer/reader goroutines per physical connection; this pool keeps that
// "dial on demand, reuse while healthy" shape but tracks pooling/reuse
// decisions (pipelining, Connection: close, max age) that a DNS pipeline
// has no equivalent of.
type ConnectionPool struct {
	opts ConnectionPoolOptions

	mu    sync.Mutex
	conns map[ConnectionKey][]*pooledConn
	lifespans *lifespanDistribution
}

func NewConnectionPool(opts ConnectionPoolOptions) *ConnectionPool {
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	return &ConnectionPool{
		opts:      opts,
		conns:     make(map[ConnectionKey][]*pooledConn),
		lifespans: newLifespanDistribution(),
	}
}

// Acquire returns a connection usable for one request against key, dialing
// a new one if the pool has nothing reusable. For HTTP/2 the single
// existing connection (if healthy) is always reused; for HTTP/1 a
// non-closing connection is reused only when pipelining is enabled or no
// request is currently in flight on it. Connection age is not consulted
// here; max age is enforced between requests.
func (p *ConnectionPool) Acquire(ctx context.Context, key ConnectionKey) (*pooledConn, error) {
	p.mu.Lock()
	for _, c := range p.conns[key] {
		if p.reusable(c) {
			c.mu.Lock()
			c.inFlight++
			c.mu.Unlock()
			p.mu.Unlock()
			return c, nil
		}
	}
	p.mu.Unlock()

	conn, err := p.dial(ctx, key)
	if err != nil {
		return nil, err
	}
	pc := &pooledConn{key: key, conn: conn, createdAt: time.Now(), inFlight: 1}

	if key.Protocol == ProtocolHTTP2 {
		h2Transport := p.opts.HTTP2.Transport()
		h2Conn, err := h2Transport.NewClientConn(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		pc.h2Transport = h2Transport
		pc.h2Conn = h2Conn
		pc.flow = newStreamFlowController(p.opts.HTTP2.streamWindowSize())
	}

	p.mu.Lock()
	p.conns[key] = append(p.conns[key], pc)
	p.mu.Unlock()

	if p.opts.Listener != nil {
		p.opts.Listener.OnOpen(key)
	}
	return pc, nil
}

// dial opens the transport connection for key: plain TCP via opts.Dialer
// when opts.TLSConfig is nil, otherwise a TLS connection ALPN-negotiated
// for the protocol key.Protocol commits to.
func (p *ConnectionPool) dial(ctx context.Context, key ConnectionKey) (net.Conn, error) {
	conn, err := p.opts.Dialer.DialContext(ctx, "tcp", key.Remote)
	if err != nil {
		return nil, err
	}
	if p.opts.TLSConfig == nil {
		return conn, nil
	}

	cfg := p.opts.TLSConfig.Clone()
	if key.Protocol == ProtocolHTTP2 {
		cfg.NextProtos = []string{"h2"}
	} else {
		cfg.NextProtos = []string{"http/1.1"}
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// OnStreamDataReceived reports n more response-body bytes consumed on pc to
// its streamFlowController and returns the WINDOW_UPDATE increment now due
// (0 if none). It's a no-op returning 0 for non-HTTP/2 connections.
// golang.org/x/net/http2's ClientConn performs the protocol's real
// connection-level flow control itself; this tracks consumption the same
// way for the pool's own accounting (S11), independent of that internal
// bookkeeping.
func (p *ConnectionPool) OnStreamDataReceived(pc *pooledConn, n uint32) uint32 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.flow == nil {
		return 0
	}
	return pc.flow.OnDataReceived(n)
}

// ShouldGoAwayFrameSizeError reports whether a DATA frame of frameLen seen
// on an HTTP/2 connection violates the negotiated SETTINGS_MAX_FRAME_SIZE
// (S12): callers instrumenting the underlying http2.Transport's frame
// accounting use this to decide whether to tear the connection down.
func (p *ConnectionPool) ShouldGoAwayFrameSizeError(frameLen uint32) bool {
	return p.opts.HTTP2.FrameSizeExceeded(frameLen)
}

// reusable must be called with p.mu held.
func (p *ConnectionPool) reusable(c *pooledConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	if c.key.Protocol == ProtocolHTTP2 {
		if c.h2Conn != nil && !c.h2Conn.CanTakeNewRequest() {
			return false
		}
		return true
	}
	if p.opts.UseHTTP1Pipelining {
		return true
	}
	return c.inFlight == 0
}

// RequestSent marks that pc's current request has been fully written to
// the wire. Under HTTP/1 pipelining, this is the moment the pool considers
// pc available for the *next* request even though this request's response
// hasn't arrived yet (spec.md §4.5); under non-pipelining it's a no-op and
// release happens only via ResponseReceived.
func (p *ConnectionPool) RequestSent(pc *pooledConn) {
	pc.mu.Lock()
	pc.requestsSent++
	pipelined := p.opts.UseHTTP1Pipelining && pc.key.Protocol == ProtocolHTTP1
	pc.mu.Unlock()
	if pipelined {
		p.maybeCloseBetweenRequests(pc)
	}
}

// ResponseReceived marks one request against pc as fully complete: its
// response has been read. This is where max-connection-age and
// Connection: close are actually enforced -- always *between* requests,
// matching the teacher-inherited invariant that max-age must never cut off
// an in-flight response body (spec.md §9).
func (p *ConnectionPool) ResponseReceived(pc *pooledConn) {
	pc.mu.Lock()
	pc.inFlight--
	pc.mu.Unlock()
	p.maybeCloseBetweenRequests(pc)
}

func (p *ConnectionPool) maybeCloseBetweenRequests(pc *pooledConn) {
	pc.mu.Lock()
	inFlight := pc.inFlight
	shouldClose := pc.closing
	if !shouldClose && p.opts.MaxConnectionAge > 0 && pc.age() >= p.opts.MaxConnectionAge {
		shouldClose = true
	}
	pc.mu.Unlock()

	if !shouldClose || inFlight > 0 {
		return
	}
	p.closeConn(pc)
}

// MarkConnectionClose records that a request on pc carried (or triggered
// via InitiateConnectionShutdown) Connection: close. The connection is
// removed from circulation immediately and physically closed once its
// current requests finish.
func (p *ConnectionPool) MarkConnectionClose(pc *pooledConn) {
	pc.mu.Lock()
	pc.closing = true
	inFlight := pc.inFlight
	pc.mu.Unlock()
	if inFlight == 0 {
		p.closeConn(pc)
	}
}

// InitiateConnectionShutdown implements the decorator-facing API from
// spec.md §4.5: calling it before a request is assigned to pc forces
// Connection: close on that request (handled by the caller consulting
// ShouldForceConnectionClose); calling it after the request is already on
// the wire just marks pc for close once current work drains, without
// altering headers already sent.
func (p *ConnectionPool) InitiateConnectionShutdown(pc *pooledConn) {
	p.MarkConnectionClose(pc)
}

// ShouldForceConnectionClose reports whether a request not yet assigned to
// pc must be sent with Connection: close, because shutdown was requested
// before it went on the wire.
func (p *ConnectionPool) ShouldForceConnectionClose(pc *pooledConn) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closing
}

func (p *ConnectionPool) closeConn(pc *pooledConn) {
	p.mu.Lock()
	list := p.conns[pc.key]
	for i, c := range list {
		if c == pc {
			p.conns[pc.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	closePooledConn(pc)
	p.lifespans.observe(pc.age())
	if p.opts.Listener != nil {
		p.opts.Listener.OnClose(pc.key)
	}
}

// closePooledConn tears down pc's transport. An HTTP/2 connection is closed
// via its http2.ClientConn (which closes the underlying net.Conn itself);
// anything else is closed directly.
func closePooledConn(pc *pooledConn) {
	if pc.h2Conn != nil {
		_ = pc.h2Conn.Close()
		return
	}
	_ = pc.conn.Close()
}

// Close closes every pooled connection immediately.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	all := make([]*pooledConn, 0)
	for _, list := range p.conns {
		all = append(all, list...)
	}
	p.conns = make(map[ConnectionKey][]*pooledConn)
	p.mu.Unlock()

	for _, pc := range all {
		closePooledConn(pc)
		p.lifespans.observe(pc.age())
		if p.opts.Listener != nil {
			p.opts.Listener.OnClose(pc.key)
		}
	}
}

// LifespanSnapshot reports the pool-wide connection lifespan distribution
// (min/max/count) spec.md §4.5 requires as a minimum metric set.
func (p *ConnectionPool) LifespanSnapshot() (min, max time.Duration, count int64) {
	return p.lifespans.snapshot()
}

// ValidateConnectionHeader enforces the Connection-header contract from
// spec.md §4.5/§6: the literal value "close" (any case) is allowed and
// signals MarkConnectionClose; any other value is InvalidArgument.
func ValidateConnectionHeader(value string) (forceClose bool, err error) {
	if value == "" {
		return false, nil
	}
	if strings.EqualFold(value, "close") {
		return true, nil
	}
	return false, ErrInvalidArgument
}

// forbiddenRequestHeaders are pseudo-headers/host controls callers may
// never set directly; the pool (or ClientOptions validation) injects them.
var forbiddenRequestHeaders = map[string]bool{
	"host":      true,
	":authority": true,
}

// ValidateRequestHeaders rejects forbidden pseudo-headers and any
// Connection value other than "close", per spec.md §4.5/§9's S3/S4.
func ValidateRequestHeaders(headers map[string]string) error {
	for k, v := range headers {
		lk := strings.ToLower(k)
		if forbiddenRequestHeaders[lk] {
			return ErrInvalidArgument
		}
		if lk == "connection" {
			if _, err := ValidateConnectionHeader(v); err != nil {
				return err
			}
		}
	}
	return nil
}
