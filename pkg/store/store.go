// Package store holds the local cache stores a lateral listener applies replicated
// operations to. Values are opaque serialized bytes grouped by region.
package store

import (
	"context"
	"regexp"
)

// Store is the local cache consulted by the listener and by the Cache front end.
type Store interface {
	// LocalPut stores value under region/key.
	LocalPut(ctx context.Context, region, key string, value []byte) error
	// LocalRemove deletes region/key and reports whether it existed.
	LocalRemove(ctx context.Context, region, key string) (bool, error)
	// LocalRemoveAll clears a region.
	LocalRemoveAll(ctx context.Context, region string) error
	// LocalGet returns the value under region/key.
	LocalGet(ctx context.Context, region, key string) ([]byte, bool, error)
	// LocalGetMatching returns every entry of region whose key matches pattern.
	LocalGetMatching(ctx context.Context, region string, pattern *regexp.Regexp) (map[string][]byte, error)
	// LocalGetKeySet returns the keys of region.
	LocalGetKeySet(ctx context.Context, region string) ([]string, error)
}

var (
	_ Store = (*InMemory)(nil)
	_ Store = (*Redis)(nil)
)
