package main

import (
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// config is the top-level TOML document: one DNS cache/resolver, one
// connection pool, and a set of named endpoint groups that may reference
// each other (or-else/composite), the same split-by-concern shape as the
// teacher's config.go (resolvers/groups/routers/listeners), scaled down to
// httpcore's domain.
type config struct {
	Resolver   resolverConfig          `toml:"resolver"`
	Pool       poolConfig              `toml:"pool"`
	Groups     map[string]groupConfig  `toml:"groups"`
	Syslog     syslogConfig            `toml:"syslog"`
}

type resolverConfig struct {
	AddressTypes   string   `toml:"address-types"` // "v4-preferred" (default), "v6-preferred", "v4-only", "v6-only"
	QueryTimeout   int      `toml:"query-timeout"` // seconds
	NegativeTTL    int      `toml:"negative-ttl"`  // seconds; 0 disables negative caching
	RefreshBackoff int      `toml:"refresh-backoff"`
	MaxAttempts    int      `toml:"max-attempts"`
	SearchDomains  []string `toml:"search-domains"`
	Ndots          int      `toml:"ndots"`

	CacheCapacity int         `toml:"cache-capacity"`
	CacheBackend  cacheBackendConfig `toml:"cache-backend"`
}

type cacheBackendConfig struct {
	Type      string `toml:"type"` // "memory" (default) or "redis"
	RedisAddr string `toml:"redis-address"`
	RedisDB   int    `toml:"redis-db"`
	KeyPrefix string `toml:"redis-key-prefix"`
}

type poolConfig struct {
	UseHTTP1Pipelining bool     `toml:"use-http1-pipelining"`
	MaxConnectionAge   int      `toml:"max-connection-age"` // seconds, 0 = unbounded
	HTTP2              h2Config `toml:"http2"`
	TLS                tlsConfig `toml:"tls"`
}

// tlsConfig is empty (no CA/cert/key/server-name set) when TLS isn't
// configured at all, in which case the pool dials plain TCP.
type tlsConfig struct {
	CAFile     string `toml:"ca-file"`
	CertFile   string `toml:"cert-file"`
	KeyFile    string `toml:"key-file"`
	ServerName string `toml:"server-name"`
}

func (c tlsConfig) enabled() bool {
	return c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.ServerName != ""
}

type h2Config struct {
	InitialStreamWindowSize     uint32 `toml:"initial-stream-window-size"`
	InitialConnectionWindowSize uint32 `toml:"initial-connection-window-size"`
	MaxFrameSize                uint32 `toml:"max-frame-size"`
	MaxHeaderListSize           uint32 `toml:"max-header-list-size"`
}

// groupConfig describes one named EndpointGroup. Exactly one of Endpoints
// (static), Primary/Fallback (or-else), or Members (composite) should be
// set; Type disambiguates when a group could otherwise be read either way.
type groupConfig struct {
	Type      string   `toml:"type"` // "static", "dynamic", "or-else", "composite"
	Endpoints []string `toml:"endpoints"`
	Primary   string   `toml:"primary"`
	Fallback  string   `toml:"fallback"`
	Members   []string `toml:"members"`
}

type syslogConfig struct {
	Network  string `toml:"network"`
	Address  string `toml:"address"`
	Tag      string `toml:"tag"`
	Priority string `toml:"priority"`
}

func (c resolverConfig) queryTimeout() time.Duration {
	if c.QueryTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.QueryTimeout) * time.Second
}

func (c resolverConfig) negativeTTL() time.Duration {
	return time.Duration(c.NegativeTTL) * time.Second
}

func (c resolverConfig) refreshBackoff() time.Duration {
	if c.RefreshBackoff <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.RefreshBackoff) * time.Second
}

func (c poolConfig) maxConnectionAge() time.Duration {
	return time.Duration(c.MaxConnectionAge) * time.Second
}

// loadConfig reads and merges one or more TOML files, later files
// overriding earlier ones field-by-field within a table -- same multi-file
// support the teacher's loadConfig offers for splitting a large
// configuration across files.
func loadConfig(paths ...string) (config, error) {
	var cfg config
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return config{}, err
		}
		b, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return config{}, err
		}
		if _, err := toml.Decode(string(b), &cfg); err != nil {
			return config{}, err
		}
	}
	return cfg, nil
}
