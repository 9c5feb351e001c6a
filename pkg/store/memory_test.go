package store

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/longbridgeapp/assert"
)

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	value := []byte("v1")
	assert.NoError(t, s.LocalPut(ctx, "users", "a1", value))
	assert.NoError(t, s.LocalPut(ctx, "users", "a2", []byte("v2")))
	assert.NoError(t, s.LocalPut(ctx, "users", "b1", []byte("v3")))
	assert.NoError(t, s.LocalPut(ctx, "orders", "a1", []byte("o1")))

	// the store keeps its own copy
	value[0] = 'x'

	got, ok, err := s.LocalGet(ctx, "users", "a1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", string(got))

	_, ok, _ = s.LocalGet(ctx, "missing", "a1")
	assert.False(t, ok)

	keys, err := s.LocalGetKeySet(ctx, "users")
	assert.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "b1"}, keys)

	matches, err := s.LocalGetMatching(ctx, "users", regexp.MustCompile("^a"))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(matches))
	assert.Equal(t, "v2", string(matches["a2"]))

	removed, err := s.LocalRemove(ctx, "users", "a1")
	assert.NoError(t, err)
	assert.True(t, removed)

	removed, _ = s.LocalRemove(ctx, "users", "a1")
	assert.False(t, removed)

	assert.NoError(t, s.LocalRemoveAll(ctx, "users"))

	keys, _ = s.LocalGetKeySet(ctx, "users")
	assert.Equal(t, 0, len(keys))

	_, ok, _ = s.LocalGet(ctx, "orders", "a1")
	assert.True(t, ok)
	assert.Equal(t, []string{"orders"}, s.Regions())
}

func TestConcurrentMap(t *testing.T) {
	cm := NewConcurrentMap()

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			for j := range 100 {
				cm.Set(string(rune('a'+i))+string(rune('0'+j%10)), []byte{byte(j)})
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 80, cm.Count())
	assert.True(t, cm.Has("a0"))

	v, ok := cm.Pop("a0")
	assert.True(t, ok)
	assert.Equal(t, 1, len(v))
	assert.False(t, cm.Has("a0"))

	seen := 0

	cm.Range(func(string, []byte) bool {
		seen++

		return seen < 5
	})
	assert.Equal(t, 5, seen)

	cm.Clear()
	assert.Equal(t, 0, cm.Count())
}
