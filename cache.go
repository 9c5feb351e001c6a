// Package lateralcache is a local key/value cache whose regions replicate laterally to
// peer nodes over TCP. Every mutation is applied to the local store and fanned out to the
// peers of its region. Reads are served locally and fall back to the peers on a miss.
package lateralcache

import (
	"context"
	"net"
	"sort"
	"sync"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/libs/serializer"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/discovery"
	"github.com/hyp3rd/lateralcache/pkg/lateral"
	"github.com/hyp3rd/lateralcache/pkg/store"
)

// Cache binds a local store to the lateral registry and holds one Region per region name.
type Cache struct {
	mu sync.RWMutex

	cfg        lateral.Config
	store      store.Store
	registry   *lateral.Registry
	factory    *lateral.Factory
	serializer serializer.ISerializer
	logger     *zap.Logger
	regions    map[string]*Region
	creating   map[string]*regionCall

	serializerName string
	registryOpts   []lateral.RegistryOption
	initialRegions []string
	advertise      string
	listenPort     int

	discovery *discovery.UDPService

	mgmtAddr string
	mgmtOpts []ManagementHTTPOption
	mgmt     *ManagementHTTPServer
}

// New builds and starts a cache over st. The listener starts when cfg receives, the
// discovery service when cfg enables it, and the management server when configured.
func New(ctx context.Context, st store.Store, cfg lateral.Config, options ...Option) (*Cache, error) {
	if st == nil {
		return nil, sentinel.ErrNilStore
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	cache := &Cache{
		cfg:            cfg,
		store:          st,
		logger:         zap.NewNop(),
		regions:        make(map[string]*Region),
		creating:       make(map[string]*regionCall),
		serializerName: constants.DefaultSerializer,
		listenPort:     cfg.ListenPort,
	}

	ApplyOptions(cache, options...)

	cache.serializer, err = serializer.New(cache.serializerName)
	if err != nil {
		return nil, err
	}

	monitor := lateral.NewMonitor(
		lateral.WithRecoveryInterval(cfg.RecoveryInterval),
		lateral.WithMonitorLogger(cache.logger.Named("monitor")),
	)

	regOpts := append([]lateral.RegistryOption{lateral.WithLogger(cache.logger), lateral.WithMonitor(monitor)}, cache.registryOpts...)

	cache.registry, err = lateral.NewRegistry(st, regOpts...)
	if err != nil {
		return nil, err
	}

	cache.factory = lateral.NewFactory(cache.registry)

	err = cache.start(ctx)
	if err != nil {
		_ = cache.Stop(ctx)

		return nil, err
	}

	return cache, nil
}

func (c *Cache) start(ctx context.Context) error {
	if c.cfg.Receive {
		ln, err := c.registry.EnsureListener(ctx, c.cfg)
		if err != nil {
			return err
		}

		ep, err := cluster.ParseEndpoint(ln.Addr())
		if err == nil {
			c.listenPort = ep.Port
		}
	}

	for _, name := range c.initialRegions {
		_, err := c.Region(ctx, name)
		if err != nil {
			return err
		}
	}

	if c.cfg.DiscoveryEnabled {
		err := c.startDiscovery(ctx)
		if err != nil {
			return err
		}
	}

	if c.mgmtAddr != "" {
		c.mgmt = NewManagementHTTPServer(c.mgmtAddr, c.mgmtOpts...)

		err := c.mgmt.Start(ctx, c)
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Cache) startDiscovery(ctx context.Context) error {
	local := discovery.Service{
		Address:    c.advertiseAddress(),
		Port:       c.listenPort,
		Transport:  c.cfg.Transport,
		ListenerID: c.registry.ID(),
	}

	svc, err := discovery.NewUDPService(c.cfg.DiscoveryAddress, c.cfg.DiscoveryPort, local, c.factory.Discovery(),
		discovery.WithInterval(c.cfg.DiscoveryInterval),
		discovery.WithMaxIdle(c.cfg.DiscoveryMaxIdle),
		discovery.WithRegions(c.Regions),
		discovery.WithLogger(c.logger.Named("discovery")),
	)
	if err != nil {
		return ewrap.Wrap(err, "discovery")
	}

	err = svc.Start(ctx)
	if err != nil {
		return ewrap.Wrap(err, "discovery start")
	}

	c.discovery = svc

	return nil
}

func (c *Cache) advertiseAddress() string {
	if c.advertise != "" {
		return c.advertise
	}

	if c.cfg.ListenAddress != "" {
		return c.cfg.ListenAddress
	}

	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}

// regionCall is a region creation in flight; concurrent callers for the same name wait on it.
type regionCall struct {
	wg     sync.WaitGroup
	region *Region
	err    error
}

// Region returns the named region, creating its facade on first use. Creation dials the
// region's peers without holding the cache lock, and concurrent callers for the same name
// share a single creation.
func (c *Cache) Region(ctx context.Context, name string) (*Region, error) {
	if name == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "region name")
	}

	c.mu.Lock()

	if region, ok := c.regions[name]; ok {
		c.mu.Unlock()

		return region, nil
	}

	if call, ok := c.creating[name]; ok {
		c.mu.Unlock()
		call.wg.Wait()

		return call.region, call.err
	}

	call := &regionCall{}
	call.wg.Add(1)
	c.creating[name] = call
	c.mu.Unlock()

	call.region, call.err = c.createRegion(ctx, name)

	c.mu.Lock()
	delete(c.creating, name)

	if call.err == nil {
		c.regions[name] = call.region
	}
	c.mu.Unlock()

	call.wg.Done()

	return call.region, call.err
}

func (c *Cache) createRegion(ctx context.Context, name string) (*Region, error) {
	facade, err := c.factory.CreateFacade(ctx, name, c.cfg)
	if err != nil {
		return nil, err
	}

	c.logger.Info("region created", zap.String("region", name), zap.Int("peers", len(facade.Adapters())))

	return &Region{name: name, cache: c, facade: facade}, nil
}

// Regions returns the sorted names of the regions created so far.
func (c *Cache) Regions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.regions))
	for name := range c.regions {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

func (c *Cache) lookupRegion(name string) (*Region, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	region, ok := c.regions[name]

	return region, ok
}

// Config returns the lateral attributes of the cache.
func (c *Cache) Config() lateral.Config { return c.cfg }

// Registry returns the lateral registry.
func (c *Cache) Registry() *lateral.Registry { return c.registry }

// Store returns the local store.
func (c *Cache) Store() store.Store { return c.store }

// ListenPort returns the bound listener port (useful when configuring port 0).
func (c *Cache) ListenPort() int { return c.listenPort }

// ManagementHTTPAddress returns the bound management address, empty when disabled.
func (c *Cache) ManagementHTTPAddress() string {
	if c.mgmt == nil {
		return ""
	}

	return c.mgmt.Address()
}

// Stop shuts the management server, the discovery service, every facade and the registry down.
func (c *Cache) Stop(ctx context.Context) error {
	var errs []error

	if c.mgmt != nil {
		errs = append(errs, c.mgmt.Shutdown(ctx))
	}

	if c.discovery != nil {
		errs = append(errs, c.discovery.Shutdown(ctx))
	}

	c.mu.Lock()
	regions := c.regions
	c.regions = make(map[string]*Region)
	c.mu.Unlock()

	for _, region := range regions {
		c.factory.Discovery().RemoveFacade(region.name)
		region.facade.Dispose(ctx)
	}

	if c.registry != nil {
		errs = append(errs, c.registry.Shutdown(ctx))
	}

	return multierr.Combine(errs...)
}
