package httpcore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSClientConfig builds the *tls.Config a ConnectionPool dials with for
// TLS-secured endpoints, passed as ConnectionPoolOptions.TLSConfig. The pool
// clones it per dial and sets NextProtos to "h2" or "http/1.1" depending on
// the key's protocol, so ALPN negotiates whatever the key already commits
// the caller to. Adapted directly from the teacher's tls.go, dropping
// TLSServerConfig and its mutual-TLS/ClientCAs path entirely -- httpcore has
// no server side to configure.
func TLSClientConfig(caFile, crtFile, keyFile, serverName string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
		NextProtos: []string{"h2", "http/1.1"},
	}

	// Add client key/cert if provided
	if crtFile != "" && keyFile != "" {
		certificate, err := tls.LoadX509KeyPair(crtFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate from %s", crtFile)
		}
		tlsConfig.Certificates = []tls.Certificate{certificate}
	}

	// Load custom CA set if provided
	if caFile != "" {
		certPool := x509.NewCertPool()
		b, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		if ok := certPool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("no CA certificates found in %s", caFile)
		}
		tlsConfig.RootCAs = certPool
	}
	return tlsConfig, nil
}
