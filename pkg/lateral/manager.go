package lateral

import (
	"context"
	"sort"
	"sync"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// ManagerStats describes a manager for the management API.
type ManagerStats struct {
	Endpoint    string                 `json:"endpoint"`
	State       string                 `json:"state"`
	Regions     []string               `json:"regions"`
	Sender      *transport.SenderStats `json:"sender,omitempty"`
	ZombieQueue int                    `json:"zombieQueue"`
	Repairs     uint64                 `json:"repairs"`
}

// Manager owns the connection to one remote endpoint. Its service slot holds either a live
// remote service or a zombie, swapped as the peer fails and recovers.
type Manager struct {
	registry *Registry
	endpoint cluster.Endpoint
	cfg      Config
	logger   *zap.Logger

	mu       sync.RWMutex
	live     *transport.TCPService
	zombie   *transport.Zombie
	service  transport.Service
	adapters map[string]*NoWait
	repairs  uint64
}

func newManager(ctx context.Context, r *Registry, endpoint cluster.Endpoint, cfg Config) *Manager {
	m := &Manager{
		registry: r,
		endpoint: endpoint,
		cfg:      cfg,
		logger:   r.logger.With(zap.String("endpoint", endpoint.String())),
		adapters: make(map[string]*NoWait),
	}

	live, err := m.FixService(ctx)
	if err != nil {
		m.logger.Warn("peer unreachable, using zombie", zap.Error(err))

		m.zombie = transport.NewZombie(cfg.ZombieQueueMaxSize)
		m.service = m.zombie

		return m
	}

	m.live = live
	m.service = r.decorate(live)

	return m
}

// Endpoint returns the remote endpoint.
func (m *Manager) Endpoint() cluster.Endpoint { return m.endpoint }

// Config returns the attributes the manager was created with.
func (m *Manager) Config() Config { return m.cfg }

// Service returns the current occupant of the service slot.
func (m *Manager) Service() transport.Service {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.service
}

// IsZombie reports whether the peer is currently unreachable.
func (m *Manager) IsZombie() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.zombie != nil
}

// State maps the slot to a cluster endpoint state.
func (m *Manager) State() cluster.EndpointState {
	if m.IsZombie() {
		return cluster.EndpointZombie
	}

	return cluster.EndpointAlive
}

// RegionAdapter returns the adapter for region, creating it on first use. When the
// manager's configuration receives as well, it makes sure the local listener runs.
func (m *Manager) RegionAdapter(ctx context.Context, region string) *NoWait {
	m.mu.Lock()

	nw, ok := m.adapters[region]
	if !ok {
		nw = newNoWait(m, region)
		m.adapters[region] = nw
	}

	m.mu.Unlock()

	if !ok && m.cfg.Receive {
		_, err := m.registry.EnsureListener(ctx, m.cfg)
		if err != nil {
			m.logger.Error("starting lateral listener", zap.Int("port", m.cfg.ListenPort), zap.Error(err))
		}
	}

	return nw
}

// Regions returns the regions with an adapter on this manager.
func (m *Manager) Regions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.adapters))
	for r := range m.adapters {
		out = append(out, r)
	}

	sort.Strings(out)

	return out
}

// FixService dials the peer again and returns a fresh live service. It does not install it.
func (m *Manager) FixService(ctx context.Context) (*transport.TCPService, error) {
	opts := append(m.cfg.senderOptions(), transport.WithSenderLogger(m.logger))
	opts = append(opts, m.registry.senderOpts...)

	svc, err := transport.DialService(ctx, m.endpoint, m.registry.id, m.cfg.Policy(), opts...)
	if err != nil {
		return nil, ewrap.Wrap(err, "fix lateral service")
	}

	return svc, nil
}

// Repair replaces a zombie with a freshly dialed service and replays the zombie's queue.
// It is a no-op on a live manager.
func (m *Manager) Repair(ctx context.Context) error {
	if !m.IsZombie() {
		return nil
	}

	live, err := m.FixService(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()

	zombie := m.zombie
	if zombie == nil {
		m.mu.Unlock()

		return live.Dispose(ctx, "")
	}

	m.live = live
	m.zombie = nil
	m.service = m.registry.decorate(live)
	m.repairs++
	svc := m.service
	m.mu.Unlock()

	n, err := zombie.Propagate(ctx, svc)
	if err != nil {
		m.logger.Warn("replaying queued operations", zap.Int("replayed", n), zap.Error(err))
		m.handleError(err)

		return nil
	}

	m.logger.Info("peer recovered", zap.Int("replayed", n))

	return nil
}

// handleError swaps the slot to a zombie when err left the live connection unusable.
func (m *Manager) handleError(err error) {
	m.mu.Lock()

	if m.live == nil || m.live.Sender().Alive() {
		m.mu.Unlock()

		return
	}

	m.live = nil
	m.zombie = transport.NewZombie(m.cfg.ZombieQueueMaxSize)
	m.service = m.zombie
	m.mu.Unlock()

	m.logger.Warn("peer connection lost, using zombie", zap.Error(err))
	m.registry.monitor.Notify(m)
}

// Shutdown disposes the live connection and deregisters from the monitor. The shared
// listener keeps running.
func (m *Manager) Shutdown(ctx context.Context) {
	m.registry.monitor.Forget(m)

	m.mu.Lock()
	live := m.live
	m.live = nil
	m.mu.Unlock()

	if live != nil {
		err := live.Dispose(ctx, "")
		if err != nil {
			m.logger.Debug("closing lateral connection", zap.Error(err))
		}
	}
}

// Stats returns a snapshot for the management API.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := ManagerStats{Endpoint: m.endpoint.String(), State: cluster.EndpointAlive.String(), Repairs: m.repairs}

	for r := range m.adapters {
		st.Regions = append(st.Regions, r)
	}

	sort.Strings(st.Regions)

	if m.zombie != nil {
		st.State = cluster.EndpointZombie.String()
		st.ZombieQueue = m.zombie.Len()
	}

	if m.live != nil {
		s := m.live.Sender().Stats()
		st.Sender = &s
	}

	return st
}
