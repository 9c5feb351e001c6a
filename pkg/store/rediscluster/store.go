package rediscluster

import (
	"context"
	"net"

	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

// New builds a cluster client with the lateral cache defaults, then applies opts.
func New(opts ...Option) (*redis.ClusterClient, error) {
	opt := &redis.ClusterOptions{
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: constants.RedisDialTimeout}

			return dialer.DialContext(ctx, network, addr)
		},
		MaxRetries:   constants.RedisClientMaxRetries,
		ReadTimeout:  constants.RedisClientReadTimeout,
		WriteTimeout: constants.RedisClientWriteTimeout,
		PoolSize:     constants.RedisClientPoolSize,
		MinIdleConns: constants.RedisClientMinIdleConns,
		PoolTimeout:  constants.RedisClientPoolTimeout,
	}

	ApplyOptions(opt, opts...)

	if len(opt.Addrs) == 0 {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "redis cluster addresses")
	}

	return redis.NewClusterClient(opt), nil
}
