package store

import (
	"context"
	"errors"
	"regexp"
	"sort"

	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

// Redis stores every region as one redis hash named "<prefix>:<region>". It works over a
// single node client as well as a cluster client, since a region lives in a single key.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures the redis store.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the hash name prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if rdb == nil {
		return nil, sentinel.ErrNilClient
	}

	r := &Redis{rdb: rdb, prefix: constants.RedisKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *Redis) hashName(region string) string { return r.prefix + ":" + region }

// LocalPut sets the hash field.
func (r *Redis) LocalPut(ctx context.Context, region, key string, value []byte) error {
	err := r.rdb.HSet(ctx, r.hashName(region), key, value).Err()
	if err != nil {
		return ewrap.Wrap(err, "redis hset")
	}

	return nil
}

// LocalRemove deletes the hash field.
func (r *Redis) LocalRemove(ctx context.Context, region, key string) (bool, error) {
	n, err := r.rdb.HDel(ctx, r.hashName(region), key).Result()
	if err != nil {
		return false, ewrap.Wrap(err, "redis hdel")
	}

	return n > 0, nil
}

// LocalRemoveAll drops the region hash.
func (r *Redis) LocalRemoveAll(ctx context.Context, region string) error {
	err := r.rdb.Del(ctx, r.hashName(region)).Err()
	if err != nil {
		return ewrap.Wrap(err, "redis del")
	}

	return nil
}

// LocalGet reads the hash field.
func (r *Redis) LocalGet(ctx context.Context, region, key string) ([]byte, bool, error) {
	data, err := r.rdb.HGet(ctx, r.hashName(region), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, ewrap.Wrap(err, "redis hget")
	}

	return data, true, nil
}

// LocalGetMatching loads the region and filters keys with pattern.
func (r *Redis) LocalGetMatching(ctx context.Context, region string, pattern *regexp.Regexp) (map[string][]byte, error) {
	all, err := r.rdb.HGetAll(ctx, r.hashName(region)).Result()
	if err != nil {
		return nil, ewrap.Wrap(err, "redis hgetall")
	}

	out := make(map[string][]byte, len(all))
	for k, v := range all {
		if pattern.MatchString(k) {
			out[k] = []byte(v)
		}
	}

	return out, nil
}

// LocalGetKeySet lists the hash fields.
func (r *Redis) LocalGetKeySet(ctx context.Context, region string) ([]string, error) {
	keys, err := r.rdb.HKeys(ctx, r.hashName(region)).Result()
	if err != nil {
		return nil, ewrap.Wrap(err, "redis hkeys")
	}

	sort.Strings(keys)

	return keys, nil
}
