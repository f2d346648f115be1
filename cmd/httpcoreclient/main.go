package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	syslog "github.com/RackSec/srslog"
	"github.com/heimdalr/dag"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corewire/httpcore"
)

type cliOptions struct {
	logLevel uint32
}

func main() {
	var opt cliOptions
	cmd := &cobra.Command{
		Use:   "httpcoreclient <config> [<config>..]",
		Short: "HTTP client runtime core: endpoint resolution, pooling, retry",
		Long: `Resolves configured endpoint groups, builds a connection pool
and DNS resolver per the given configuration, and reports the endpoints
each group would currently hand out.

Configuration can be split over multiple files with groups, the resolver
and the pool defined in different files and given as arguments.
`,
		Example: `  httpcoreclient config.toml`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args)
		},
		SilenceUsage: true,
	}
	cmd.Flags().Uint32VarP(&opt.logLevel, "log-level", "l", 4, "log level; 0=Panic .. 6=Trace")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Node adapts a named groupConfig for dag's cycle/ordering checks, the same
// pattern the teacher uses to order resolvers/groups/routers by dependency
// before instantiating them.
type Node struct {
	id    string
	value groupConfig
}

var _ dag.IDInterface = Node{}

func (n Node) ID() string { return n.id }

func run(opt cliOptions, args []string) error {
	if opt.logLevel > 6 {
		return fmt.Errorf("invalid log level: %d", opt.logLevel)
	}
	httpcore.Log.SetLevel(logrus.Level(opt.logLevel))

	cfg, err := loadConfig(args...)
	if err != nil {
		return err
	}

	if cfg.Syslog.Address != "" {
		priority := syslogPriority(cfg.Syslog.Priority)
		if err := httpcore.AddSyslogHook(cfg.Syslog.Network, cfg.Syslog.Address, cfg.Syslog.Tag, priority); err != nil {
			return fmt.Errorf("failed to configure syslog: %w", err)
		}
	}

	cache := buildDnsCache(cfg.Resolver)
	resolver := httpcore.NewRefreshingAddressResolver(
		httpcore.NewUpstreamDNSClient("1.1.1.1:53", "udp"),
		cache,
		resolverOptions(cfg.Resolver),
	)
	defer resolver.Close()

	groups, err := instantiateGroups(cfg.Groups)
	if err != nil {
		return err
	}

	pool, err := buildConnectionPool(cfg.Pool)
	if err != nil {
		return fmt.Errorf("failed to configure connection pool TLS: %w", err)
	}
	defer pool.Close()

	for id, group := range groups {
		eps := group.Endpoints()
		httpcore.Log.WithField("group", id).Infof("%d endpoint(s)", len(eps))
		for _, ep := range eps {
			ip, _ := ep.IPAddr()
			fmt.Printf("%s: %s:%d\n", id, ip, ep.Port())
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	httpcore.Log.Info("stopping")
	return nil
}

func buildDnsCache(rc resolverConfig) *httpcore.DnsCache {
	if rc.CacheBackend.Type == "redis" {
		return httpcore.NewRedisDnsCache(httpcore.RedisBackendOptions{
			RedisOptions: redis.Options{
				Addr: rc.CacheBackend.RedisAddr,
				DB:   rc.CacheBackend.RedisDB,
			},
			KeyPrefix: rc.CacheBackend.KeyPrefix,
		}, rc.negativeTTL())
	}
	return httpcore.NewDnsCache(httpcore.DnsCacheOptions{
		Capacity:    rc.CacheCapacity,
		NegativeTTL: rc.negativeTTL(),
	})
}

func resolverOptions(rc resolverConfig) httpcore.RefreshingAddressResolverOptions {
	var addrTypes httpcore.ResolvedAddressTypes
	switch rc.AddressTypes {
	case "v6-preferred":
		addrTypes = httpcore.ResolveV6Preferred
	case "v4-only":
		addrTypes = httpcore.ResolveV4Only
	case "v6-only":
		addrTypes = httpcore.ResolveV6Only
	default:
		addrTypes = httpcore.ResolveV4Preferred
	}
	return httpcore.RefreshingAddressResolverOptions{
		AddressTypes:   addrTypes,
		QueryTimeout:   rc.queryTimeout(),
		NegativeTTL:    rc.negativeTTL(),
		RefreshBackoff: rc.refreshBackoff(),
		MaxAttempts:    rc.MaxAttempts,
		SearchDomains:  rc.SearchDomains,
		Ndots:          rc.Ndots,
	}
}

func buildConnectionPool(pc poolConfig) (*httpcore.ConnectionPool, error) {
	opts := httpcore.ConnectionPoolOptions{
		UseHTTP1Pipelining: pc.UseHTTP1Pipelining,
		MaxConnectionAge:   pc.maxConnectionAge(),
		HTTP2: httpcore.HTTP2Settings{
			InitialStreamWindowSize:     pc.HTTP2.InitialStreamWindowSize,
			InitialConnectionWindowSize: pc.HTTP2.InitialConnectionWindowSize,
			MaxFrameSize:                pc.HTTP2.MaxFrameSize,
			MaxHeaderListSize:           pc.HTTP2.MaxHeaderListSize,
		},
	}
	if pc.TLS.enabled() {
		tlsConfig, err := httpcore.TLSClientConfig(pc.TLS.CAFile, pc.TLS.CertFile, pc.TLS.KeyFile, pc.TLS.ServerName)
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsConfig
	}
	return httpcore.NewConnectionPool(opts), nil
}

// instantiateGroups builds every configured EndpointGroup, resolving
// or-else/composite references in dependency order via a DAG -- same
// "build leaves first" approach the teacher uses for resolvers/groups/
// routers, scaled down to httpcore's flatter group model.
func instantiateGroups(cfgs map[string]groupConfig) (map[string]httpcore.EndpointGroup, error) {
	graph := dag.NewDAG()
	for id, g := range cfgs {
		if _, err := graph.AddVertex(Node{id: id, value: g}); err != nil {
			return nil, err
		}
	}
	for id, g := range cfgs {
		var deps []string
		switch g.Type {
		case "or-else":
			deps = []string{g.Primary, g.Fallback}
		case "composite":
			deps = g.Members
		}
		for _, dep := range deps {
			if dep == "" {
				continue
			}
			if err := graph.AddEdge(id, dep); err != nil {
				return nil, fmt.Errorf("group %q: %w", id, err)
			}
		}
	}

	built := make(map[string]httpcore.EndpointGroup, len(cfgs))
	for graph.GetOrder() > 0 {
		leaves := graph.GetLeaves()
		for id, v := range leaves {
			node := v.(Node)
			group, err := instantiateGroup(node.value, built)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", id, err)
			}
			built[id] = group
			if err := graph.DeleteVertex(id); err != nil {
				return nil, err
			}
		}
	}
	return built, nil
}

func instantiateGroup(g groupConfig, built map[string]httpcore.EndpointGroup) (httpcore.EndpointGroup, error) {
	switch g.Type {
	case "dynamic":
		eps, err := parseEndpoints(g.Endpoints)
		if err != nil {
			return nil, err
		}
		return httpcore.NewDynamicEndpointGroup(eps...), nil
	case "or-else":
		primary, ok := built[g.Primary]
		if !ok {
			return nil, fmt.Errorf("references non-existent group %q", g.Primary)
		}
		fallback, ok := built[g.Fallback]
		if !ok {
			return nil, fmt.Errorf("references non-existent group %q", g.Fallback)
		}
		return httpcore.OrElse(primary, fallback), nil
	case "composite":
		var members []httpcore.EndpointGroup
		for _, m := range g.Members {
			mg, ok := built[m]
			if !ok {
				return nil, fmt.Errorf("references non-existent group %q", m)
			}
			members = append(members, mg)
		}
		return httpcore.Composite(members...), nil
	default: // "static"
		eps, err := parseEndpoints(g.Endpoints)
		if err != nil {
			return nil, err
		}
		return httpcore.NewStaticEndpointGroup(eps...), nil
	}
}

func parseEndpoints(addrs []string) ([]httpcore.Endpoint, error) {
	eps := make([]httpcore.Endpoint, 0, len(addrs))
	for _, a := range addrs {
		ep, err := httpcore.NewEndpoint(a)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", a, err)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

func syslogPriority(name string) syslog.Priority {
	switch name {
	case "emergency":
		return syslog.LOG_EMERG
	case "alert":
		return syslog.LOG_ALERT
	case "critical":
		return syslog.LOG_CRIT
	case "warning":
		return syslog.LOG_WARNING
	case "notice":
		return syslog.LOG_NOTICE
	case "info":
		return syslog.LOG_INFO
	case "debug":
		return syslog.LOG_DEBUG
	case "error", "":
		return syslog.LOG_ERR
	default:
		return syslog.LOG_ERR
	}
}
