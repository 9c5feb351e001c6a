package lateral

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyp3rd/lateralcache/internal/constants"
)

// Monitor periodically tries to repair the managers that reported a failure. One
// monitor is shared by every manager of a registry; it starts on the first failure.
type Monitor struct {
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu      sync.Mutex
	failed  map[string]*Manager
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	attempts atomic.Uint64
	repaired atomic.Uint64
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithRecoveryInterval sets the pause between repair passes.
func WithRecoveryInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRepairRate bounds how many dial attempts per second a pass may make.
func WithRepairRate(limit rate.Limit, burst int) MonitorOption {
	return func(m *Monitor) { m.limiter = rate.NewLimiter(limit, burst) }
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor creates an idle monitor.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		interval: constants.DefaultRecoveryInterval,
		limiter:  rate.NewLimiter(rate.Limit(10), 5),
		logger:   zap.NewNop(),
		failed:   make(map[string]*Manager),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Notify registers a failed manager and starts the background loop if needed.
func (m *Monitor) Notify(mgr *Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	m.failed[mgr.endpoint.String()] = mgr

	if m.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})

		go m.run(ctx, m.done)
	}
}

// Forget stops watching mgr. Another manager registered for the same endpoint stays.
func (m *Monitor) Forget(mgr *Manager) {
	m.mu.Lock()
	if m.failed[mgr.endpoint.String()] == mgr {
		delete(m.failed, mgr.endpoint.String())
	}
	m.mu.Unlock()
}

// Failed returns the endpoints awaiting repair.
func (m *Monitor) Failed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.failed))
	for k := range m.failed {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// Running reports whether the background loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cancel != nil
}

// Stats returns the number of repair attempts and successful repairs.
func (m *Monitor) Stats() (attempts, repaired uint64) {
	return m.attempts.Load(), m.repaired.Load()
}

// RepairAll makes one pass over the failed managers and returns how many were repaired.
// Connection failures are absorbed; the manager stays registered for the next pass.
func (m *Monitor) RepairAll(ctx context.Context) int {
	m.mu.Lock()
	pending := make([]*Manager, 0, len(m.failed))

	for _, mgr := range m.failed {
		pending = append(pending, mgr)
	}

	m.mu.Unlock()

	fixed := 0

	for _, mgr := range pending {
		if err := m.limiter.Wait(ctx); err != nil {
			return fixed
		}

		m.attempts.Add(1)

		if err := mgr.Repair(ctx); err != nil {
			m.logger.Debug("peer still unreachable",
				zap.String("endpoint", mgr.endpoint.String()), zap.Error(err))

			continue
		}

		if mgr.IsZombie() {
			continue
		}

		m.mu.Lock()
		if m.failed[mgr.endpoint.String()] == mgr {
			delete(m.failed, mgr.endpoint.String())
		}
		m.mu.Unlock()

		m.repaired.Add(1)

		fixed++
	}

	return fixed
}

// Stop ends the background loop. A stopped monitor ignores further notifications.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.stopped = true
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("lateral recovery monitor started", zap.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.RepairAll(ctx); n > 0 {
				m.logger.Info("repaired lateral peers", zap.Int("count", n))
			}
		}
	}
}
