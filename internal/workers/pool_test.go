package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
)

func TestPool_RunAndWait(t *testing.T) {
	pool := New(0)

	var mu sync.Mutex

	results := []int{}

	for i := range 5 {
		val := i
		err := pool.Go(context.Background(), func() error {
			mu.Lock()

			results = append(results, val)

			mu.Unlock()

			return nil
		})
		assert.NoError(t, err)
	}

	pool.Wait()

	assert.Equal(t, 5, len(results))
	assert.Equal(t, uint64(5), pool.Completed())
	assert.Equal(t, 0, pool.Active())
	assert.Equal(t, 0, pool.Limit())
}

func TestPool_ErrorHandler(t *testing.T) {
	expectedErr := errors.New("job error")

	var got atomic.Value

	pool := New(2, WithErrorHandler(func(err error) { got.Store(err) }))

	assert.NoError(t, pool.Go(context.Background(), func() error { return expectedErr }))
	assert.NoError(t, pool.Go(context.Background(), func() error { return nil }))

	pool.Wait()

	err, _ := got.Load().(error)
	assert.True(t, errors.Is(err, expectedErr))
}

func TestPool_Unbounded(t *testing.T) {
	pool := New(0)
	release := make(chan struct{})

	for range 20 {
		assert.NoError(t, pool.Go(context.Background(), func() error {
			<-release

			return nil
		}))
	}

	assert.Equal(t, 20, pool.Active())

	close(release)
	pool.Wait()
}

func TestPool_CapBlocks(t *testing.T) {
	pool := New(1)
	release := make(chan struct{})

	assert.NoError(t, pool.Go(context.Background(), func() error {
		<-release

		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pool.Go(ctx, func() error { return nil })
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, pool.Active())

	close(release)
	pool.Wait()

	assert.NoError(t, pool.Go(context.Background(), func() error { return nil }))
	pool.Wait()
	assert.Equal(t, uint64(2), pool.Completed())
}
