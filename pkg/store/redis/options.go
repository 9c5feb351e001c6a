// Package redis builds the go-redis client backing the redis local store.
// Options compose over redis.Options so the store can be tuned without exposing
// the driver's full configuration surface.
package redis

import (
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// Option configures the client built by New.
type Option func(*redis.Options)

// ApplyOptions applies the given options to opt.
func ApplyOptions(opt *redis.Options, options ...Option) {
	for _, option := range options {
		option(opt)
	}
}

// WithAddr sets the server host:port.
func WithAddr(addr string) Option {
	return func(opt *redis.Options) { opt.Addr = addr }
}

// WithCredentials sets the ACL username and password.
func WithCredentials(username, password string) Option {
	return func(opt *redis.Options) {
		opt.Username = username
		opt.Password = password
	}
}

// WithDB selects the logical database.
func WithDB(db int) Option {
	return func(opt *redis.Options) { opt.DB = db }
}

// WithTimeouts sets dial, read and write timeouts. Zero values keep the defaults.
func WithTimeouts(dial, read, write time.Duration) Option {
	return func(opt *redis.Options) {
		if dial > 0 {
			opt.DialTimeout = dial
		}

		if read > 0 {
			opt.ReadTimeout = read
		}

		if write > 0 {
			opt.WriteTimeout = write
		}
	}
}

// WithPool sets the pool size and the number of idle connections kept open.
func WithPool(size, minIdle int) Option {
	return func(opt *redis.Options) {
		opt.PoolSize = size
		opt.MinIdleConns = minIdle
	}
}

// WithMaxRetries sets how many times a command is retried on network errors.
func WithMaxRetries(maxRetries int) Option {
	return func(opt *redis.Options) { opt.MaxRetries = maxRetries }
}

// WithTLSConfig enables TLS to the server.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(opt *redis.Options) { opt.TLSConfig = tlsConfig }
}
