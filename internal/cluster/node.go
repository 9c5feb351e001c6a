package cluster

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

// EndpointState represents the health of a remote endpoint as observed by the peer manager.
type EndpointState int

// Endpoint state enumeration.
const (
	EndpointAlive EndpointState = iota
	EndpointZombie
	EndpointGone
)

// internal constants.
const (
	endpointIDBytes = 8
	byteShift       = 8 // bits per byte for id derivation
	maxPort         = 65535
)

func (s EndpointState) String() string {
	switch s {
	case EndpointAlive:
		return "alive"
	case EndpointZombie:
		return "zombie"
	case EndpointGone:
		return "gone"
	}

	return "unknown"
}

// Endpoint is a host:port pair identifying a remote listener.
type Endpoint struct {
	Host string
	Port int
}

// NewEndpoint builds an endpoint from its parts.
func NewEndpoint(host string, port int) Endpoint { return Endpoint{Host: host, Port: port} }

// ParseEndpoint parses a "host:port" string. The host may be empty (listen on all interfaces)
// but the port must be a valid TCP port.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, ewrap.Wrap(sentinel.ErrInvalidEndpoint, "empty endpoint")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, ewrap.Wrap(sentinel.ErrInvalidEndpoint, err.Error())
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > maxPort {
		return Endpoint{}, ewrap.Wrapf(sentinel.ErrInvalidEndpoint, "port %q out of range", portStr)
	}

	return Endpoint{Host: host, Port: port}, nil
}

// ParseEndpointList parses a comma separated list of endpoints, skipping blanks.
// Duplicates are dropped, keeping the first occurrence.
func ParseEndpointList(list string) ([]Endpoint, error) {
	parts := strings.Split(list, ",")
	out := make([]Endpoint, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}

		ep, err := ParseEndpoint(p)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[ep.String()]; dup {
			continue
		}

		seen[ep.String()] = struct{}{}
		out = append(out, ep)
	}

	return out, nil
}

// String returns the canonical host:port form, used as the registry key.
func (e Endpoint) String() string { return net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) }

// IsZero reports whether the endpoint was never set.
func (e Endpoint) IsZero() bool { return e.Host == "" && e.Port == 0 }

// ID derives a short stable hex id for the endpoint using xxhash64.
func (e Endpoint) ID() string {
	hv := xxhash.Sum64String(e.String())

	b := make([]byte, endpointIDBytes)
	for i := range endpointIDBytes {
		b[i] = byte(hv >> (byteShift * i))
	}

	return hex.EncodeToString(b)
}

// Peer holds a known endpoint with its observed state.
type Peer struct {
	Endpoint    Endpoint
	State       EndpointState
	Incarnation uint64
	LastSeen    time.Time
}

// NewPeer creates an alive peer for the endpoint.
func NewPeer(ep Endpoint) *Peer {
	return &Peer{Endpoint: ep, State: EndpointAlive, Incarnation: 1, LastSeen: time.Now()}
}

// NewListenerID returns a random non-zero identity for a listener. Messages carrying
// this identity are recognised as self echoes and discarded.
func NewListenerID() int64 {
	for {
		u := uuid.New()

		id := int64(binary.BigEndian.Uint64(u[:endpointIDBytes])) //nolint:gosec
		if id != 0 {
			return id
		}
	}
}
