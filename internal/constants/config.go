// Package constants defines default configuration values for the lateral cache.
// It provides the standard timeouts, ports and policy flags consumed by the TCP
// transport, the peer managers and the discovery service.
package constants

import "time"

const (
	// TransportTCP is the only transport type served by this module. Discovery
	// announcements carrying another transport are ignored.
	TransportTCP = "tcp"

	// DefaultListenPort is the port the inbound listener binds when none is configured.
	DefaultListenPort = 1110
	// DefaultConnectTimeout bounds how long a sender waits for the TCP dial to complete.
	DefaultConnectTimeout = 2 * time.Second
	// DefaultSocketTimeout bounds a single write, and the wait for a read response.
	DefaultSocketTimeout = 1 * time.Second

	// DefaultAllowGet enables remote reads through the lateral.
	DefaultAllowGet = true
	// DefaultAllowPut enables propagation of updates.
	DefaultAllowPut = true
	// DefaultIssueRemoveOnPut replaces an update by a hashed remove when true.
	DefaultIssueRemoveOnPut = false
	// DefaultFilterRemoveByHashCode makes the listener skip removes whose hash matches the local value.
	DefaultFilterRemoveByHashCode = false
	// DefaultReceive starts an inbound listener for the configured port.
	DefaultReceive = true

	// DefaultDiscoveryEnabled toggles the UDP discovery service.
	DefaultDiscoveryEnabled = false
	// DefaultDiscoveryAddress is the multicast group used for discovery broadcasts.
	DefaultDiscoveryAddress = "228.5.6.7"
	// DefaultDiscoveryPort is the UDP port used for discovery broadcasts.
	DefaultDiscoveryPort = 6789
	// DefaultDiscoveryInterval is the delay between two passive broadcasts.
	DefaultDiscoveryInterval = 15 * time.Second
	// DefaultDiscoveryMaxIdle is how long a discovered service may stay silent before it is considered gone.
	DefaultDiscoveryMaxIdle = 180 * time.Second

	// DefaultZombieQueueMaxSize caps the operations a zombie keeps for replay.
	DefaultZombieQueueMaxSize = 1000
	// DefaultRecoveryInterval is how often the recovery monitor retries failed peers.
	DefaultRecoveryInterval = 20 * time.Second
	// DefaultMaxConnections caps concurrent connection handlers. Zero means unbounded.
	DefaultMaxConnections = 0

	// DefaultSerializer is the payload serializer used by the root cache.
	DefaultSerializer = "msgpack"
	// DefaultShutdownTimeout bounds graceful shutdown of the daemon.
	DefaultShutdownTimeout = 5 * time.Second

	// InMemoryStore is the in-memory local store type.
	InMemoryStore = "in-memory"
	// RedisStore is the redis local store type.
	RedisStore = "redis"
	// RedisClusterStore is the redis cluster local store type.
	RedisClusterStore = "redis-cluster"
)
