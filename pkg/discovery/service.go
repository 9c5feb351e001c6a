// Package discovery announces the regions this node replicates and learns which peers
// serve which regions. Peers are reported to a Listener as appeared or gone events.
package discovery

import (
	"context"
	"slices"
	"time"

	"github.com/hyp3rd/lateralcache/internal/cluster"
)

// Service describes one discovered lateral listener.
type Service struct {
	Address    string    `msgpack:"address" json:"address"`
	Port       int       `msgpack:"port" json:"port"`
	Regions    []string  `msgpack:"regions" json:"regions"`
	Transport  string    `msgpack:"transport" json:"transport"`
	ListenerID int64     `msgpack:"listenerId" json:"listenerId"`
	LastHeard  time.Time `msgpack:"-" json:"lastHeard"`
}

// Endpoint returns the service's host:port.
func (s Service) Endpoint() cluster.Endpoint { return cluster.NewEndpoint(s.Address, s.Port) }

// ServesRegion reports whether region is in the advertised list.
func (s Service) ServesRegion(region string) bool { return slices.Contains(s.Regions, region) }

// Listener consumes discovery events.
type Listener interface {
	PeerAppeared(ctx context.Context, svc Service)
	PeerGone(ctx context.Context, svc Service)
}
