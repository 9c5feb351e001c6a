package store

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	// ShardCount is the number of shards used by the map.
	ShardCount = 32
	// ShardCount64 is ShardCount pre-casted for the index mask.
	ShardCount64 uint64 = uint64(ShardCount)
)

// ConcurrentMap is a "thread" safe map of string to serialized value.
// To avoid lock bottlenecks this map is divided into several (ShardCount) map shards.
type ConcurrentMap struct {
	shards []*ConcurrentMapShard
}

// ConcurrentMapShard is a "thread" safe string to []byte map shard.
type ConcurrentMapShard struct {
	sync.RWMutex

	items map[string][]byte
}

// NewConcurrentMap creates a new concurrent map.
func NewConcurrentMap() *ConcurrentMap {
	shards := make([]*ConcurrentMapShard, ShardCount)
	for i := range ShardCount {
		shards[i] = &ConcurrentMapShard{items: make(map[string][]byte)}
	}

	return &ConcurrentMap{shards: shards}
}

// GetShard returns shard under given key.
func (cm *ConcurrentMap) GetShard(key string) *ConcurrentMapShard {
	return cm.shards[xxhash.Sum64String(key)&(ShardCount64-1)]
}

// Set sets the given value under the specified key. The slice is stored as is;
// callers must not modify it afterwards.
func (cm *ConcurrentMap) Set(key string, value []byte) {
	shard := cm.GetShard(key)
	shard.Lock()

	shard.items[key] = value
	shard.Unlock()
}

// Get retrieves an element from map under given key.
func (cm *ConcurrentMap) Get(key string) ([]byte, bool) {
	shard := cm.GetShard(key)
	shard.RLock()

	value, ok := shard.items[key]
	shard.RUnlock()

	return value, ok
}

// Has checks if key is present in the map.
func (cm *ConcurrentMap) Has(key string) bool {
	_, ok := cm.Get(key)

	return ok
}

// Pop removes an element from the map and returns it.
func (cm *ConcurrentMap) Pop(key string) ([]byte, bool) {
	shard := cm.GetShard(key)
	shard.Lock()

	value, ok := shard.items[key]
	if ok {
		delete(shard.items, key)
	}

	shard.Unlock()

	return value, ok
}

// Range calls fn for every entry until fn returns false. Each shard is copied under its
// read lock first, so fn may call back into the map.
func (cm *ConcurrentMap) Range(fn func(key string, value []byte) bool) {
	for _, shard := range cm.shards {
		shard.RLock()

		local := make(map[string][]byte, len(shard.items))
		for k, v := range shard.items {
			local[k] = v
		}

		shard.RUnlock()

		for k, v := range local {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Keys returns a snapshot of the keys.
func (cm *ConcurrentMap) Keys() []string {
	keys := make([]string, 0, cm.Count())

	cm.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)

		return true
	})

	return keys
}

// Clear removes all items from map.
func (cm *ConcurrentMap) Clear() {
	for _, shard := range cm.shards {
		shard.Lock()

		shard.items = make(map[string][]byte)
		shard.Unlock()
	}
}

// Count returns the number of items in the map.
func (cm *ConcurrentMap) Count() int {
	count := 0

	for _, shard := range cm.shards {
		shard.RLock()

		count += len(shard.items)
		shard.RUnlock()
	}

	return count
}
