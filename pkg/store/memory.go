package store

import (
	"context"
	"regexp"
	"sort"
	"sync"
)

// InMemory keeps one ConcurrentMap per region.
type InMemory struct {
	mu      sync.RWMutex
	regions map[string]*ConcurrentMap
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{regions: make(map[string]*ConcurrentMap)}
}

func (s *InMemory) region(name string, create bool) *ConcurrentMap {
	s.mu.RLock()
	cm, ok := s.regions[name]
	s.mu.RUnlock()

	if ok || !create {
		return cm
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cm, ok = s.regions[name]
	if !ok {
		cm = NewConcurrentMap()
		s.regions[name] = cm
	}

	return cm
}

// LocalPut stores a copy of value.
func (s *InMemory) LocalPut(_ context.Context, region, key string, value []byte) error {
	s.region(region, true).Set(key, append([]byte(nil), value...))

	return nil
}

// LocalRemove deletes the key.
func (s *InMemory) LocalRemove(_ context.Context, region, key string) (bool, error) {
	cm := s.region(region, false)
	if cm == nil {
		return false, nil
	}

	_, ok := cm.Pop(key)

	return ok, nil
}

// LocalRemoveAll clears the region.
func (s *InMemory) LocalRemoveAll(_ context.Context, region string) error {
	if cm := s.region(region, false); cm != nil {
		cm.Clear()
	}

	return nil
}

// LocalGet returns the value under region/key.
func (s *InMemory) LocalGet(_ context.Context, region, key string) ([]byte, bool, error) {
	cm := s.region(region, false)
	if cm == nil {
		return nil, false, nil
	}

	value, ok := cm.Get(key)

	return value, ok, nil
}

// LocalGetMatching returns the entries whose key matches pattern.
func (s *InMemory) LocalGetMatching(_ context.Context, region string, pattern *regexp.Regexp) (map[string][]byte, error) {
	out := make(map[string][]byte)

	cm := s.region(region, false)
	if cm == nil {
		return out, nil
	}

	cm.Range(func(key string, value []byte) bool {
		if pattern.MatchString(key) {
			out[key] = value
		}

		return true
	})

	return out, nil
}

// LocalGetKeySet returns the sorted keys of the region.
func (s *InMemory) LocalGetKeySet(_ context.Context, region string) ([]string, error) {
	cm := s.region(region, false)
	if cm == nil {
		return []string{}, nil
	}

	keys := cm.Keys()
	sort.Strings(keys)

	return keys, nil
}

// Regions returns the names of the regions holding at least one entry.
func (s *InMemory) Regions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.regions))
	for name, cm := range s.regions {
		if cm.Count() > 0 {
			out = append(out, name)
		}
	}

	sort.Strings(out)

	return out
}
