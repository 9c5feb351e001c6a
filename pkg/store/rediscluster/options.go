// Package rediscluster builds the go-redis cluster client backing the redis store
// when the local cache lives in a Redis Cluster.
package rediscluster

import (
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// Option is a function type that can be used to configure the redis ClusterClient Options.
type Option func(*redis.ClusterOptions)

// ApplyOptions applies a list of options to the provided ClusterOptions.
func ApplyOptions(opt *redis.ClusterOptions, options ...Option) {
	for _, option := range options {
		option(opt)
	}
}

// WithAddrs sets the seed addresses of the cluster nodes.
func WithAddrs(addrs ...string) Option {
	return func(opt *redis.ClusterOptions) {
		opt.Addrs = addrs
	}
}

// WithCredentials sets Username and Password.
func WithCredentials(username, password string) Option {
	return func(opt *redis.ClusterOptions) {
		opt.Username = username
		opt.Password = password
	}
}

// WithTimeouts sets the read and write timeouts; zero values keep the defaults.
func WithTimeouts(read, write time.Duration) Option {
	return func(opt *redis.ClusterOptions) {
		if read > 0 {
			opt.ReadTimeout = read
		}

		if write > 0 {
			opt.WriteTimeout = write
		}
	}
}

// WithTLSConfig sets TLSConfig.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(opt *redis.ClusterOptions) {
		opt.TLSConfig = tlsConfig
	}
}
