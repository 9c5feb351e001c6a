package lateralcache

import (
	"context"
	"regexp"
	"sort"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/lateral"
)

// Region is one named key space of the cache. Values are serialized with the cache
// serializer before they reach the local store and the peers.
type Region struct {
	name   string
	cache  *Cache
	facade *lateral.Facade
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Facade returns the lateral facade replicating the region.
func (r *Region) Facade() *lateral.Facade { return r.facade }

// Put stores value under key locally and replicates it to the peers.
func (r *Region) Put(ctx context.Context, key string, value any) error {
	if key == "" {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "key")
	}

	data, err := r.cache.serializer.Marshal(value)
	if err != nil {
		return ewrap.Wrapf(err, "marshal %s", key)
	}

	return r.PutBytes(ctx, key, data)
}

// PutBytes stores an already serialized payload.
func (r *Region) PutBytes(ctx context.Context, key string, data []byte) error {
	err := r.cache.store.LocalPut(ctx, r.name, key, data)
	if err != nil {
		return ewrap.Wrapf(err, "local put %s", key)
	}

	r.facade.Update(ctx, key, data)

	return nil
}

// Get decodes the value of key into dst. A local miss is resolved through the peers and
// a remote hit is kept locally without being replicated again.
func (r *Region) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, ok, err := r.GetBytes(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	err = r.cache.serializer.Unmarshal(data, dst)
	if err != nil {
		return false, ewrap.Wrapf(err, "unmarshal %s", key)
	}

	return true, nil
}

// GetBytes returns the raw payload of key.
func (r *Region) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := r.cache.store.LocalGet(ctx, r.name, key)
	if err != nil {
		return nil, false, ewrap.Wrapf(err, "local get %s", key)
	}

	if ok {
		return data, true, nil
	}

	data, ok = r.facade.Get(ctx, key)
	if !ok {
		return nil, false, nil
	}

	err = r.cache.store.LocalPut(ctx, r.name, key, data)
	if err != nil {
		return nil, false, ewrap.Wrapf(err, "local put %s", key)
	}

	return data, true, nil
}

// GetMatching returns the raw payloads whose keys match pattern, locally and on the peers.
// Local values win over remote ones.
func (r *Region) GetMatching(ctx context.Context, pattern string) (map[string][]byte, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ewrap.Wrapf(err, "pattern %q", pattern)
	}

	out := r.facade.GetMatching(ctx, pattern)

	local, err := r.cache.store.LocalGetMatching(ctx, r.name, re)
	if err != nil {
		return nil, ewrap.Wrap(err, "local get matching")
	}

	for k, v := range local {
		out[k] = v
	}

	return out, nil
}

// Remove deletes key locally and on the peers.
func (r *Region) Remove(ctx context.Context, key string) error {
	_, err := r.cache.store.LocalRemove(ctx, r.name, key)
	if err != nil {
		return ewrap.Wrapf(err, "local remove %s", key)
	}

	r.facade.Remove(ctx, key)

	return nil
}

// RemoveAll clears the region locally and on the peers.
func (r *Region) RemoveAll(ctx context.Context) error {
	err := r.cache.store.LocalRemoveAll(ctx, r.name)
	if err != nil {
		return ewrap.Wrap(err, "local remove all")
	}

	r.facade.RemoveAll(ctx)

	return nil
}

// Keys returns the sorted local key set.
func (r *Region) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.cache.store.LocalGetKeySet(ctx, r.name)
	if err != nil {
		return nil, ewrap.Wrap(err, "local key set")
	}

	return keys, nil
}

// RemoteKeys returns the sorted union of the peers' key sets.
func (r *Region) RemoteKeys(ctx context.Context) []string {
	return r.facade.GetKeySet(ctx)
}

// AllKeys returns the sorted union of the local and remote key sets.
func (r *Region) AllKeys(ctx context.Context) ([]string, error) {
	local, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(local))
	for _, k := range local {
		seen[k] = struct{}{}
	}

	for _, k := range r.RemoteKeys(ctx) {
		seen[k] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}

	sort.Strings(out)

	return out, nil
}
