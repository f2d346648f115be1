package httpcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamFlowControllerWindowUpdateAtHalfConsumed(t *testing.T) {
	fc := newStreamFlowController(96 * 1024)

	delta := fc.OnDataReceived(48 * 1024)
	assert.Equal(t, uint32(0xC000), delta)
}

func TestConnectionWindowUpdateDelta(t *testing.T) {
	s := HTTP2Settings{InitialConnectionWindowSize: 128 * 1024}
	assert.Equal(t, uint32(0x10001), s.connectionWindowUpdateDelta())
}

func TestConnectionWindowUpdateDeltaZeroAtDefault(t *testing.T) {
	s := HTTP2Settings{}
	assert.Equal(t, uint32(0), s.connectionWindowUpdateDelta())
}

func TestFrameSizeExceeded(t *testing.T) {
	s := HTTP2Settings{MaxFrameSize: 32768}
	assert.True(t, s.FrameSizeExceeded(32769))
	assert.False(t, s.FrameSizeExceeded(32768))
}
