package lateral

import (
	"context"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/pkg/discovery"
)

// DiscoveryListener attaches discovered peers to the facades of regions already
// configured locally, and detaches them when they go away. It never creates a facade.
type DiscoveryListener struct {
	registry *Registry
	logger   *zap.Logger

	mu         sync.Mutex
	facades    map[string]*Facade
	mismatched map[string]struct{}
}

// NewDiscoveryListener creates a listener resolving peers through registry.
func NewDiscoveryListener(registry *Registry) *DiscoveryListener {
	return &DiscoveryListener{
		registry:   registry,
		logger:     registry.logger.Named("discovery"),
		facades:    make(map[string]*Facade),
		mismatched: make(map[string]struct{}),
	}
}

// AddFacade registers f, replacing any previous facade of the region. It reports
// whether the region was new.
func (d *DiscoveryListener) AddFacade(f *Facade) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, exists := d.facades[f.region]
	d.facades[f.region] = f
	delete(d.mismatched, f.region)

	return !exists
}

// RemoveFacade forgets the facade of region.
func (d *DiscoveryListener) RemoveFacade(region string) {
	d.mu.Lock()
	delete(d.facades, region)
	d.mu.Unlock()
}

// Facade returns the registered facade of region.
func (d *DiscoveryListener) Facade(region string) (*Facade, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.facades[region]

	return f, ok
}

// Regions returns the regions with a registered facade.
func (d *DiscoveryListener) Regions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.facades))
	for r := range d.facades {
		out = append(out, r)
	}

	sort.Strings(out)

	return out
}

// Mismatched returns the regions announced by peers but not configured here.
func (d *DiscoveryListener) Mismatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.mismatched))
	for r := range d.mismatched {
		out = append(out, r)
	}

	sort.Strings(out)

	return out
}

// PeerAppeared adds an adapter for svc to each matching facade.
func (d *DiscoveryListener) PeerAppeared(ctx context.Context, svc discovery.Service) {
	if len(svc.Regions) == 0 {
		d.logger.Warn("no regions in discovered service", zap.String("endpoint", svc.Endpoint().String()))

		return
	}

	for _, region := range svc.Regions {
		f := d.matchingFacade(region, svc)
		if f == nil {
			continue
		}

		mgr := d.registry.Manager(ctx, svc.Endpoint(), f.Config())
		added := f.AddNoWait(mgr.RegionAdapter(ctx, region))

		d.logger.Debug("peer appeared",
			zap.String("region", region), zap.String("endpoint", svc.Endpoint().String()), zap.Bool("added", added))
	}
}

// PeerGone removes svc's adapter from each matching facade.
func (d *DiscoveryListener) PeerGone(_ context.Context, svc discovery.Service) {
	if len(svc.Regions) == 0 {
		d.logger.Warn("no regions in discovered service", zap.String("endpoint", svc.Endpoint().String()))

		return
	}

	for _, region := range svc.Regions {
		f := d.matchingFacade(region, svc)
		if f == nil {
			continue
		}

		removed := f.RemoveNoWait(svc.Endpoint())

		d.logger.Debug("peer gone",
			zap.String("region", region), zap.String("endpoint", svc.Endpoint().String()), zap.Bool("removed", removed))
	}
}

// matchingFacade returns the facade of region when svc may join it. A region without a
// facade is noted once as configured differently on the two sides.
func (d *DiscoveryListener) matchingFacade(region string, svc discovery.Service) *Facade {
	d.mu.Lock()

	f, ok := d.facades[region]
	if !ok {
		_, known := d.mismatched[region]
		d.mismatched[region] = struct{}{}
		d.mu.Unlock()

		if !known {
			d.logger.Info("nodes are configured differently or region is not used on this side",
				zap.String("region", region))
		}

		return nil
	}

	d.mu.Unlock()

	if svc.Transport != f.Config().Transport || svc.Port <= 0 {
		d.logger.Debug("skipping service not matching the region's transport",
			zap.String("region", region), zap.String("transport", svc.Transport))

		return nil
	}

	if !acceptsEndpoint(f.Config(), svc.Endpoint()) {
		d.logger.Debug("skipping service not among the region's peers",
			zap.String("region", region), zap.String("endpoint", svc.Endpoint().String()))

		return nil
	}

	return f
}

// acceptsEndpoint reports whether a discovered endpoint may serve a region configured with
// cfg. An explicit peer list restricts discovery to its members; an empty one accepts any.
func acceptsEndpoint(cfg Config, ep cluster.Endpoint) bool {
	peers, err := cfg.Peers()
	if err != nil {
		return false
	}

	return len(peers) == 0 || slices.Contains(peers, ep)
}

var _ discovery.Listener = (*DiscoveryListener)(nil)
