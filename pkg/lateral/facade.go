package lateral

import (
	"context"
	"sort"
	"sync"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// Facade is a local region's view of its peers: every NoWait currently routing that
// region's replication traffic, at most one per remote endpoint.
type Facade struct {
	region   string
	cfg      Config
	listener *transport.Listener

	mu       sync.RWMutex
	adapters []*NoWait
}

// NewFacade creates a facade for region. listener may be nil when the region only sends.
func NewFacade(region string, cfg Config, listener *transport.Listener, adapters ...*NoWait) *Facade {
	f := &Facade{region: region, cfg: cfg, listener: listener}
	for _, nw := range adapters {
		f.AddNoWait(nw)
	}

	return f
}

// Region returns the region name.
func (f *Facade) Region() string { return f.region }

// Config returns the region's lateral attributes.
func (f *Facade) Config() Config { return f.cfg }

// Listener returns the inbound listener registered for the region, if any.
func (f *Facade) Listener() *transport.Listener { return f.listener }

// AddNoWait adds nw unless an adapter for the same endpoint is present. It reports
// whether nw was added.
func (f *Facade) AddNoWait(nw *NoWait) bool {
	if nw == nil || nw.region != f.region {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.adapters {
		if existing.Endpoint() == nw.Endpoint() {
			return false
		}
	}

	f.adapters = append(f.adapters, nw)

	return true
}

// RemoveNoWait drops the adapter routing to endpoint. It reports whether one was removed.
func (f *Facade) RemoveNoWait(endpoint cluster.Endpoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, nw := range f.adapters {
		if nw.Endpoint() == endpoint {
			f.adapters = append(f.adapters[:i:i], f.adapters[i+1:]...)

			return true
		}
	}

	return false
}

// ContainsEndpoint reports whether an adapter routes to endpoint.
func (f *Facade) ContainsEndpoint(endpoint cluster.Endpoint) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, nw := range f.adapters {
		if nw.Endpoint() == endpoint {
			return true
		}
	}

	return false
}

// Adapters returns a snapshot of the adapters.
func (f *Facade) Adapters() []*NoWait {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]*NoWait(nil), f.adapters...)
}

// Update replicates a put to every peer.
func (f *Facade) Update(ctx context.Context, key string, value []byte) {
	for _, nw := range f.Adapters() {
		nw.Update(ctx, key, value)
	}
}

// Remove replicates a removal to every peer.
func (f *Facade) Remove(ctx context.Context, key string) {
	for _, nw := range f.Adapters() {
		nw.Remove(ctx, key)
	}
}

// RemoveAll replicates a region clear to every peer.
func (f *Facade) RemoveAll(ctx context.Context) {
	for _, nw := range f.Adapters() {
		nw.RemoveAll(ctx)
	}
}

// Get returns the first value found among the peers.
func (f *Facade) Get(ctx context.Context, key string) ([]byte, bool) {
	for _, nw := range f.Adapters() {
		if value, ok := nw.Get(ctx, key); ok {
			return value, true
		}
	}

	return nil, false
}

// GetMatching merges the matches of every peer; earlier peers win on conflicts.
func (f *Facade) GetMatching(ctx context.Context, pattern string) map[string][]byte {
	out := make(map[string][]byte)

	for _, nw := range f.Adapters() {
		for k, v := range nw.GetMatching(ctx, pattern) {
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
	}

	return out
}

// GetMultiple returns, for each key, the first value found among the peers.
func (f *Facade) GetMultiple(ctx context.Context, keys []string) map[string][]byte {
	out := make(map[string][]byte, len(keys))

	for _, key := range keys {
		if value, ok := f.Get(ctx, key); ok {
			out[key] = value
		}
	}

	return out
}

// GetKeySet returns the sorted union of the peers' keys.
func (f *Facade) GetKeySet(ctx context.Context) []string {
	set := make(map[string]struct{})

	for _, nw := range f.Adapters() {
		for _, k := range nw.GetKeySet(ctx) {
			set[k] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// Dispose disposes every adapter.
func (f *Facade) Dispose(ctx context.Context) {
	for _, nw := range f.Adapters() {
		nw.Dispose(ctx)
	}
}
