package httpcore

import (
	"testing"

	"crypto/tls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSClientConfigDefaults(t *testing.T) {
	cfg, err := TLSClientConfig("", "", "", "example.com")
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "example.com", cfg.ServerName)
	assert.Contains(t, cfg.NextProtos, "h2")
}

func TestTLSClientConfigMissingCAFileErrors(t *testing.T) {
	_, err := TLSClientConfig("/nonexistent/ca.pem", "", "", "example.com")
	assert.Error(t, err)
}
