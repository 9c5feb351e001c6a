package lateral

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/store"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// ServiceMiddleware decorates every live remote service a Manager installs.
type ServiceMiddleware func(next transport.Service) transport.Service

// Registry is the process scoped home of the peer managers (one per endpoint), the
// listeners (one per port) and the shared recovery monitor.
type Registry struct {
	store       store.Store
	id          int64
	logger      *zap.Logger
	meter       metric.Meter
	middlewares []ServiceMiddleware
	senderOpts  []transport.SenderOption
	listeners   *transport.ListenerRegistry
	monitor     *Monitor

	mu       sync.Mutex
	managers map[string]*Manager
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger shared by the registry's components.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithListenerIdentity overrides the identity tagging outbound messages and used by
// the listeners for self echo suppression.
func WithListenerIdentity(id int64) RegistryOption {
	return func(r *Registry) {
		if id != 0 {
			r.id = id
		}
	}
}

// WithServiceMiddleware adds decorators applied, in order, to every live service.
func WithServiceMiddleware(mw ...ServiceMiddleware) RegistryOption {
	return func(r *Registry) { r.middlewares = append(r.middlewares, mw...) }
}

// WithMeter exports listener counters through meter.
func WithMeter(meter metric.Meter) RegistryOption {
	return func(r *Registry) { r.meter = meter }
}

// WithSenderOptions adds options applied to every outbound connection, after the ones
// derived from the region configuration.
func WithSenderOptions(opts ...transport.SenderOption) RegistryOption {
	return func(r *Registry) { r.senderOpts = append(r.senderOpts, opts...) }
}

// WithMonitor replaces the recovery monitor.
func WithMonitor(m *Monitor) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.monitor = m
		}
	}
}

// NewRegistry creates a registry applying inbound operations to st.
func NewRegistry(st store.Store, opts ...RegistryOption) (*Registry, error) {
	if st == nil {
		return nil, sentinel.ErrNilStore
	}

	r := &Registry{
		store:     st,
		id:        cluster.NewListenerID(),
		logger:    zap.NewNop(),
		listeners: transport.NewListenerRegistry(),
		managers:  make(map[string]*Manager),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.monitor == nil {
		r.monitor = NewMonitor(WithMonitorLogger(r.logger))
	}

	return r, nil
}

// ID returns the listener identity of this process.
func (r *Registry) ID() int64 { return r.id }

// Store returns the local store.
func (r *Registry) Store() store.Store { return r.store }

// Monitor returns the shared recovery monitor.
func (r *Registry) Monitor() *Monitor { return r.monitor }

// Listeners returns the listener registry.
func (r *Registry) Listeners() *transport.ListenerRegistry { return r.listeners }

// Manager returns the manager for endpoint, creating it with cfg on first use. Creation
// dials the peer outside the registry lock; an unreachable peer yields a manager running
// on a zombie. When two callers race on the same endpoint the first insert wins and the
// other connection is closed.
func (r *Registry) Manager(ctx context.Context, endpoint cluster.Endpoint, cfg Config) *Manager {
	if m, ok := r.Lookup(endpoint); ok {
		return m
	}

	m := newManager(ctx, r, endpoint, cfg)

	r.mu.Lock()

	if existing, ok := r.managers[endpoint.String()]; ok {
		r.mu.Unlock()
		m.Shutdown(ctx)

		return existing
	}

	r.managers[endpoint.String()] = m
	r.mu.Unlock()

	if m.IsZombie() {
		r.monitor.Notify(m)
	}

	return m
}

// Lookup returns the manager for endpoint without creating it.
func (r *Registry) Lookup(endpoint cluster.Endpoint) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.managers[endpoint.String()]

	return m, ok
}

// Managers returns the managers sorted by endpoint.
func (r *Registry) Managers() []*Manager {
	r.mu.Lock()
	out := make([]*Manager, 0, len(r.managers))

	for _, m := range r.managers {
		out = append(out, m)
	}

	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].endpoint.String() < out[j].endpoint.String() })

	return out
}

// EnsureListener starts the listener for cfg's port unless one already runs.
func (r *Registry) EnsureListener(ctx context.Context, cfg Config) (*transport.Listener, error) {
	opts := []transport.ListenerOption{
		transport.WithListenAddress(cfg.ListenEndpoint()),
		transport.WithListenerID(r.id),
		transport.WithFilterRemoveByHash(cfg.FilterRemoveByHashCode),
		transport.WithMaxConnections(cfg.MaxConnections),
		transport.WithListenerLogger(r.logger.Named("listener")),
	}

	if r.meter != nil {
		opts = append(opts, transport.WithMeter(r.meter))
	}

	return r.listeners.Ensure(ctx, cfg.ListenPort, r.store, opts...)
}

// Shutdown stops the monitor, disposes every manager and stops the listeners.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.monitor.Stop()

	for _, m := range r.Managers() {
		m.Shutdown(ctx)
	}

	r.mu.Lock()
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()

	return r.listeners.Shutdown(ctx)
}

func (r *Registry) decorate(svc transport.Service) transport.Service {
	for _, mw := range r.middlewares {
		svc = mw(svc)
	}

	return svc
}
