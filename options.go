package lateralcache

import (
	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/pkg/lateral"
)

// Option is a function type that can be used to configure the `Cache` struct.
type Option func(*Cache)

// ApplyOptions applies the given options to the given cache.
func ApplyOptions(cache *Cache, options ...Option) {
	for _, option := range options {
		option(cache)
	}
}

// WithLogger sets the logger of the cache and of every component it builds.
func WithLogger(logger *zap.Logger) Option {
	return func(cache *Cache) {
		if logger != nil {
			cache.logger = logger
		}
	}
}

// WithSerializer selects the payload serializer by name ("msgpack" or "json").
func WithSerializer(name string) Option {
	return func(cache *Cache) {
		cache.serializerName = name
	}
}

// WithRegistryOptions forwards options to the lateral registry, e.g. service middlewares or a meter.
func WithRegistryOptions(opts ...lateral.RegistryOption) Option {
	return func(cache *Cache) {
		cache.registryOpts = append(cache.registryOpts, opts...)
	}
}

// WithRegions creates the facades of the given regions when the cache starts.
func WithRegions(regions ...string) Option {
	return func(cache *Cache) {
		cache.initialRegions = append(cache.initialRegions, regions...)
	}
}

// WithAdvertiseAddress sets the address announced through discovery.
// It defaults to the listen address, or to the first non-loopback interface address.
func WithAdvertiseAddress(addr string) Option {
	return func(cache *Cache) {
		cache.advertise = addr
	}
}

// WithManagementHTTP enables the management HTTP server on addr.
func WithManagementHTTP(addr string, opts ...ManagementHTTPOption) Option {
	return func(cache *Cache) {
		cache.mgmtAddr = addr
		cache.mgmtOpts = opts
	}
}
