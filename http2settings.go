package httpcore

import "golang.org/x/net/http2"

// http2DefaultWindowSize is HTTP/2's protocol default
// (SETTINGS_INITIAL_WINDOW_SIZE / the default flow-control window), per
// RFC 7540 §6.9.2.
const http2DefaultWindowSize = 65535

// http2DefaultMaxHeaderListSize is the default MAX_HEADER_LIST_SIZE this
// client advertises, per spec.md §4.5.
const http2DefaultMaxHeaderListSize = 8192

// HTTP2Settings configures the SETTINGS frame a ConnectionPool's HTTP/2
// connections send in their client preface, grounded on the teacher's
// dohclient.go use of golang.org/x/net/http2.ConfigureTransport -- where
// the teacher hands http2 a stock *http.Transport, httpcore needs the
// finer-grained knobs spec.md §4.5 calls out (stream vs. connection window,
// max frame size) so it builds an http2.Transport directly instead.
type HTTP2Settings struct {
	// InitialStreamWindowSize is the per-stream flow-control window the
	// pool's streamFlowController accounts against. Defaults to the
	// protocol default (65535) when zero. Transport does not advertise it
	// as SETTINGS_INITIAL_WINDOW_SIZE.
	InitialStreamWindowSize uint32
	// InitialConnectionWindowSize is the connection-level flow-control
	// window; connectionWindowUpdateDelta computes the stream-0
	// WINDOW_UPDATE increment it implies. Transport does not send that
	// WINDOW_UPDATE.
	InitialConnectionWindowSize uint32
	// MaxFrameSize sets SETTINGS_MAX_FRAME_SIZE.
	MaxFrameSize uint32
	// MaxHeaderListSize sets SETTINGS_MAX_HEADER_LIST_SIZE. Defaults to
	// http2DefaultMaxHeaderListSize when zero.
	MaxHeaderListSize uint32
}

func (s HTTP2Settings) streamWindowSize() uint32 {
	if s.InitialStreamWindowSize == 0 {
		return http2DefaultWindowSize
	}
	return s.InitialStreamWindowSize
}

func (s HTTP2Settings) connectionWindowSize() uint32 {
	if s.InitialConnectionWindowSize == 0 {
		return http2DefaultWindowSize
	}
	return s.InitialConnectionWindowSize
}

func (s HTTP2Settings) maxHeaderListSize() uint32 {
	if s.MaxHeaderListSize == 0 {
		return http2DefaultMaxHeaderListSize
	}
	return s.MaxHeaderListSize
}

// connectionWindowUpdateDelta returns the WINDOW_UPDATE increment this
// client must send on stream 0 right after the client preface, when the
// configured connection window exceeds the protocol default; 0 means no
// update is needed.
func (s HTTP2Settings) connectionWindowUpdateDelta() uint32 {
	cws := s.connectionWindowSize()
	if cws <= http2DefaultWindowSize {
		return 0
	}
	return cws - http2DefaultWindowSize
}

// Transport builds an *http2.Transport from s's MaxHeaderListSize and
// MaxFrameSize, suitable as the HTTP/2 leg of a ConnectionPool dial. The
// stream and connection window sizes are not applied to the transport.
// ENABLE_PUSH is always off, matching
// spec.md §4.5 ("always 0") -- golang.org/x/net/http2's client never
// advertises push support in the first place, so there is nothing further
// to configure for that setting.
func (s HTTP2Settings) Transport() *http2.Transport {
	return &http2.Transport{
		MaxHeaderListSize: s.maxHeaderListSize(),
		MaxReadFrameSize:  s.MaxFrameSize,
	}
}

// streamFlowController tracks a single HTTP/2 stream's received-byte count
// against its advertised window, so the pool knows when a WINDOW_UPDATE is
// due. Grounded on spec.md's S11 scenario: a WINDOW_UPDATE for half the
// window is sent once that much has been consumed.
type streamFlowController struct {
	windowSize uint32
	consumed   uint32
	updated    uint32 // bytes already credited back via WINDOW_UPDATE
}

func newStreamFlowController(windowSize uint32) *streamFlowController {
	return &streamFlowController{windowSize: windowSize}
}

// OnDataReceived records n more bytes consumed on this stream/connection
// and returns the WINDOW_UPDATE increment due now (0 if none is due yet).
// A WINDOW_UPDATE is sent once the unacknowledged consumption reaches half
// the window, matching S11 exactly: half of 96*1024 is 0xC000.
func (f *streamFlowController) OnDataReceived(n uint32) uint32 {
	f.consumed += n
	pending := f.consumed - f.updated
	half := f.windowSize / 2
	if pending < half {
		return 0
	}
	f.updated += pending
	return pending
}

// http2DefaultMaxFrameSize is HTTP/2's protocol default SETTINGS_MAX_FRAME_SIZE
// (RFC 7540 §6.5.2), used when HTTP2Settings.MaxFrameSize is unset.
const http2DefaultMaxFrameSize = 16384

// FrameSizeExceeded reports whether a DATA frame of the given length
// violates the negotiated MAX_FRAME_SIZE -- the trigger for the
// GOAWAY(FRAME_SIZE_ERROR) in S12.
func (s HTTP2Settings) FrameSizeExceeded(frameLen uint32) bool {
	max := s.MaxFrameSize
	if max == 0 {
		max = http2DefaultMaxFrameSize
	}
	return frameLen > max
}

// GoAwayFrameSizeError is the ErrCode a connection-level GOAWAY carries
// when a peer sends an over-sized frame, per RFC 7540 §7 FRAME_SIZE_ERROR.
const GoAwayFrameSizeError = http2.ErrCodeFrameSize
