package lateralcache

import (
	"context"

	"github.com/hyp3rd/lateralcache/pkg/discovery"
	"github.com/hyp3rd/lateralcache/pkg/lateral"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// ListenerStats reports the counters of the listener bound on Port.
type ListenerStats struct {
	Port  int    `json:"port"`
	Addr  string `json:"addr"`
	State string `json:"state"`
	transport.ListenerStats
}

// MonitorStats reports the recovery monitor.
type MonitorStats struct {
	Running  bool     `json:"running"`
	Attempts uint64   `json:"attempts"`
	Repaired uint64   `json:"repaired"`
	Failed   []string `json:"failed"`
}

// RegionStats reports the adapters of one region.
type RegionStats struct {
	Name     string                         `json:"name"`
	Adapters map[string]lateral.NoWaitStats `json:"adapters"`
}

// Stats is a snapshot of the cache for the management API.
type Stats struct {
	ListenerID int64           `json:"listenerId"`
	Listeners  []ListenerStats `json:"listeners"`
	Regions    []RegionStats   `json:"regions"`
	Monitor    MonitorStats    `json:"monitor"`
}

// PeersSnapshot lists the peer managers and what discovery knows.
type PeersSnapshot struct {
	Managers   []lateral.ManagerStats `json:"managers"`
	Discovered []discovery.Service    `json:"discovered"`
	Mismatched []string               `json:"mismatched"`
}

// GetStats returns the listener, region and monitor counters.
func (c *Cache) GetStats() Stats {
	st := Stats{ListenerID: c.registry.ID()}

	listeners := c.registry.Listeners()
	for _, port := range listeners.Ports() {
		ln, ok := listeners.Get(port)
		if !ok {
			continue
		}

		st.Listeners = append(st.Listeners, ListenerStats{
			Port:          port,
			Addr:          ln.Addr(),
			State:         ln.State().String(),
			ListenerStats: ln.Stats(),
		})
	}

	for _, name := range c.Regions() {
		region, ok := c.lookupRegion(name)
		if !ok {
			continue
		}

		rs := RegionStats{Name: name, Adapters: make(map[string]lateral.NoWaitStats)}
		for _, nw := range region.facade.Adapters() {
			rs.Adapters[nw.Endpoint().String()] = nw.Stats()
		}

		st.Regions = append(st.Regions, rs)
	}

	monitor := c.registry.Monitor()
	attempts, repaired := monitor.Stats()
	st.Monitor = MonitorStats{
		Running:  monitor.Running(),
		Attempts: attempts,
		Repaired: repaired,
		Failed:   monitor.Failed(),
	}

	return st
}

// Peers returns the peer managers and the discovered services.
func (c *Cache) Peers() PeersSnapshot {
	snap := PeersSnapshot{Mismatched: c.factory.Discovery().Mismatched()}

	for _, m := range c.registry.Managers() {
		snap.Managers = append(snap.Managers, m.Stats())
	}

	if c.discovery != nil {
		snap.Discovered = c.discovery.Services()
	}

	return snap
}

// RepairPeers runs one repair pass over the failed peers and returns how many recovered.
func (c *Cache) RepairPeers(ctx context.Context) int {
	return c.registry.Monitor().RepairAll(ctx)
}
