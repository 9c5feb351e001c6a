package lateral

import (
	"context"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// Factory builds region facades over a registry.
type Factory struct {
	registry  *Registry
	discovery *DiscoveryListener
}

// NewFactory creates a factory and its discovery listener.
func NewFactory(registry *Registry) *Factory {
	return &Factory{registry: registry, discovery: NewDiscoveryListener(registry)}
}

// Registry returns the registry.
func (f *Factory) Registry() *Registry { return f.registry }

// Discovery returns the listener to plug into a discovery service.
func (f *Factory) Discovery() *DiscoveryListener { return f.discovery }

// CreateFacade builds the facade of region: one adapter per configured peer, the
// listener when cfg receives, and the discovery registration when enabled.
func (f *Factory) CreateFacade(ctx context.Context, region string, cfg Config) (*Facade, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	peers, err := cfg.Peers()
	if err != nil {
		return nil, err
	}

	var listener *transport.Listener

	if cfg.Receive {
		listener, err = f.registry.EnsureListener(ctx, cfg)
		if err != nil {
			return nil, ewrap.Wrapf(err, "region %s", region)
		}
	}

	adapters := make([]*NoWait, 0, len(peers))
	for _, ep := range peers {
		adapters = append(adapters, f.registry.Manager(ctx, ep, cfg).RegionAdapter(ctx, region))
	}

	facade := NewFacade(region, cfg, listener, adapters...)

	if cfg.DiscoveryEnabled {
		f.discovery.AddFacade(facade)
	}

	return facade, nil
}
