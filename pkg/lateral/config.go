// Package lateral manages replication toward lateral peers: one Manager per remote
// endpoint, one NoWait adapter per (peer, region), a Facade per local region fanning
// operations out to its adapters, the Monitor repairing failed peers and the
// DiscoveryListener attaching discovered peers to existing facades.
package lateral

import (
	"net"
	"strconv"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// Config holds the lateral attributes of one region (or the whole node when shared).
type Config struct {
	// PeerEndpoints is a comma separated host:port list of the peers to replicate to.
	PeerEndpoints string `yaml:"peerEndpoints" json:"peerEndpoints"`
	// ListenAddress is the interface the listener binds; empty means all.
	ListenAddress string `yaml:"listenAddress" json:"listenAddress"`
	// ListenPort is the port the listener binds.
	ListenPort int `yaml:"listenPort" json:"listenPort"`

	ConnectTimeout time.Duration `yaml:"connectTimeout" json:"connectTimeout"`
	SocketTimeout  time.Duration `yaml:"socketTimeout" json:"socketTimeout"`

	AllowGet               bool `yaml:"allowGet" json:"allowGet"`
	AllowPut               bool `yaml:"allowPut" json:"allowPut"`
	IssueRemoveOnPut       bool `yaml:"issueRemoveOnPut" json:"issueRemoveOnPut"`
	FilterRemoveByHashCode bool `yaml:"filterRemoveByHashCode" json:"filterRemoveByHashCode"`
	// Receive starts a listener so peers can replicate to this node.
	Receive bool `yaml:"receive" json:"receive"`

	DiscoveryEnabled  bool          `yaml:"discoveryEnabled" json:"discoveryEnabled"`
	DiscoveryAddress  string        `yaml:"discoveryAddress" json:"discoveryAddress"`
	DiscoveryPort     int           `yaml:"discoveryPort" json:"discoveryPort"`
	DiscoveryInterval time.Duration `yaml:"discoveryInterval" json:"discoveryInterval"`
	DiscoveryMaxIdle  time.Duration `yaml:"discoveryMaxIdle" json:"discoveryMaxIdle"`

	// ZombieQueueMaxSize bounds the operations kept for replay while a peer is down.
	ZombieQueueMaxSize int `yaml:"zombieQueueMaxSize" json:"zombieQueueMaxSize"`
	// RecoveryInterval is the pause between repair passes of the Monitor.
	RecoveryInterval time.Duration `yaml:"recoveryInterval" json:"recoveryInterval"`
	// MaxConnections caps concurrent inbound handlers; 0 is unbounded.
	MaxConnections int `yaml:"maxConnections" json:"maxConnections"`
	// Transport names the transmission type advertised through discovery.
	Transport string `yaml:"transport" json:"transport"`
}

// DefaultConfig returns the default attributes.
func DefaultConfig() Config {
	return Config{
		ListenPort:             constants.DefaultListenPort,
		ConnectTimeout:         constants.DefaultConnectTimeout,
		SocketTimeout:          constants.DefaultSocketTimeout,
		AllowGet:               constants.DefaultAllowGet,
		AllowPut:               constants.DefaultAllowPut,
		IssueRemoveOnPut:       constants.DefaultIssueRemoveOnPut,
		FilterRemoveByHashCode: constants.DefaultFilterRemoveByHashCode,
		Receive:                constants.DefaultReceive,
		DiscoveryEnabled:       constants.DefaultDiscoveryEnabled,
		DiscoveryAddress:       constants.DefaultDiscoveryAddress,
		DiscoveryPort:          constants.DefaultDiscoveryPort,
		DiscoveryInterval:      constants.DefaultDiscoveryInterval,
		DiscoveryMaxIdle:       constants.DefaultDiscoveryMaxIdle,
		ZombieQueueMaxSize:     constants.DefaultZombieQueueMaxSize,
		RecoveryInterval:       constants.DefaultRecoveryInterval,
		MaxConnections:         constants.DefaultMaxConnections,
		Transport:              constants.TransportTCP,
	}
}

// Validate checks every attribute.
func (c Config) Validate() error {
	if _, err := c.Peers(); err != nil {
		return err
	}

	switch {
	case c.ListenPort < 0 || c.ListenPort > 65535:
		return ewrap.Wrapf(sentinel.ErrInvalidConfig, "listenPort %d", c.ListenPort)
	case c.ConnectTimeout <= 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "connectTimeout must be positive")
	case c.SocketTimeout <= 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "socketTimeout must be positive")
	case c.ZombieQueueMaxSize < 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "zombieQueueMaxSize must not be negative")
	case c.MaxConnections < 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "maxConnections must not be negative")
	case c.RecoveryInterval <= 0:
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "recoveryInterval must be positive")
	case c.Transport != constants.TransportTCP:
		return ewrap.Wrapf(sentinel.ErrInvalidConfig, "unsupported transport %q", c.Transport)
	}

	if c.DiscoveryEnabled {
		switch {
		case net.ParseIP(c.DiscoveryAddress) == nil:
			return ewrap.Wrapf(sentinel.ErrInvalidConfig, "discoveryAddress %q", c.DiscoveryAddress)
		case c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535:
			return ewrap.Wrapf(sentinel.ErrInvalidConfig, "discoveryPort %d", c.DiscoveryPort)
		case c.DiscoveryInterval <= 0 || c.DiscoveryMaxIdle <= c.DiscoveryInterval:
			return ewrap.Wrap(sentinel.ErrInvalidConfig, "discoveryMaxIdle must exceed a positive discoveryInterval")
		}
	}

	return nil
}

// Peers parses PeerEndpoints.
func (c Config) Peers() ([]cluster.Endpoint, error) {
	return cluster.ParseEndpointList(c.PeerEndpoints)
}

// Policy returns the operation gates for the remote services.
func (c Config) Policy() transport.Policy {
	return transport.Policy{AllowGet: c.AllowGet, AllowPut: c.AllowPut, IssueRemoveOnPut: c.IssueRemoveOnPut}
}

// ListenEndpoint returns the host:port the listener binds.
func (c Config) ListenEndpoint() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.ListenPort))
}

func (c Config) senderOptions() []transport.SenderOption {
	return []transport.SenderOption{
		transport.WithConnectTimeout(c.ConnectTimeout),
		transport.WithSocketTimeout(c.SocketTimeout),
	}
}
