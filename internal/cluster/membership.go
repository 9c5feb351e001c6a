// Package cluster contains primitives for endpoint identity and for tracking the set of
// peers known to a node, either configured statically or learned through discovery.
package cluster

import (
	"sort"
	"sync"
	"time"
)

// Membership tracks the peers currently known to this node.
type Membership struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	ver   MembershipVersion
}

// NewMembership creates an empty membership table.
func NewMembership() *Membership { return &Membership{peers: map[string]*Peer{}} }

// Upsert adds or refreshes a peer. It returns true when the peer was not known before.
func (m *Membership) Upsert(ep Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[ep.String()]
	if ok {
		p.LastSeen = time.Now()
		if p.State != EndpointAlive {
			p.State = EndpointAlive
			p.Incarnation++
			m.ver.Next()
		}

		return false
	}

	m.peers[ep.String()] = NewPeer(ep)
	m.ver.Next()

	return true
}

// List returns a snapshot of the current peers sorted by endpoint.
func (m *Membership) List() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Peer, 0, len(m.peers))
	for _, v := range m.peers {
		if v == nil {
			continue
		}

		cp := *v

		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint.String() < out[j].Endpoint.String() })

	return out
}

// Get returns a copy of the peer for the endpoint, if known.
func (m *Membership) Get(ep Endpoint) (Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.peers[ep.String()]
	if !ok {
		return Peer{}, false
	}

	return *p, true
}

// Remove deletes a peer. Returns true if removed.
func (m *Membership) Remove(ep Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.peers[ep.String()]; !ok {
		return false
	}

	delete(m.peers, ep.String())
	m.ver.Next()

	return true
}

// Mark updates peer state + incarnation and refreshes LastSeen. Returns true if the peer exists.
func (m *Membership) Mark(ep Endpoint, state EndpointState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[ep.String()]
	if ok {
		p.State = state
		p.Incarnation++

		p.LastSeen = time.Now()

		m.ver.Next()
	}

	return ok
}

// PruneIdle removes every peer not seen for longer than maxIdle and returns them.
func (m *Membership) PruneIdle(now time.Time, maxIdle time.Duration) []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned []Peer

	for k, p := range m.peers {
		if now.Sub(p.LastSeen) > maxIdle {
			pruned = append(pruned, *p)
			delete(m.peers, k)
		}
	}

	if len(pruned) > 0 {
		m.ver.Next()
	}

	return pruned
}

// Len returns the number of known peers.
func (m *Membership) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.peers)
}

// Version returns current membership version.
func (m *Membership) Version() uint64 { return m.ver.Get() }
