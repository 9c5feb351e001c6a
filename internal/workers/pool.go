// Package workers runs connection handlers for the lateral listener.
package workers

import (
	"context"
	"sync"
	"sync/atomic"
)

// JobFunc is a function that can be scheduled on the pool.
type JobFunc func() error

// Pool runs jobs on their own goroutines. With a zero limit it is unbounded: every job
// starts immediately. With a positive limit, Go blocks until a slot frees up.
type Pool struct {
	slots     chan struct{}
	wg        sync.WaitGroup
	active    atomic.Int64
	completed atomic.Uint64
	onError   func(error)
}

// Option configures a Pool.
type Option func(*Pool)

// WithErrorHandler sets the function receiving non-nil job errors.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pool) { p.onError = fn }
}

// New creates a pool. limit <= 0 means unbounded.
func New(limit int, opts ...Option) *Pool {
	pool := &Pool{}
	if limit > 0 {
		pool.slots = make(chan struct{}, limit)
	}

	for _, opt := range opts {
		opt(pool)
	}

	return pool
}

// Go schedules job. When the pool is capped and saturated it blocks until a slot is released
// or ctx is done, in which case the job is not run and ctx's error is returned.
func (pool *Pool) Go(ctx context.Context, job JobFunc) error {
	if pool.slots != nil {
		select {
		case pool.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	pool.wg.Add(1)
	pool.active.Add(1)

	go pool.run(job)

	return nil
}

func (pool *Pool) run(job JobFunc) {
	defer func() {
		pool.active.Add(-1)
		pool.completed.Add(1)

		if pool.slots != nil {
			<-pool.slots
		}

		pool.wg.Done()
	}()

	err := job()
	if err != nil && pool.onError != nil {
		pool.onError(err)
	}
}

// Wait blocks until every scheduled job returned.
func (pool *Pool) Wait() { pool.wg.Wait() }

// Active returns the number of running jobs.
func (pool *Pool) Active() int { return int(pool.active.Load()) }

// Completed returns the number of jobs that finished.
func (pool *Pool) Completed() uint64 { return pool.completed.Load() }

// Limit returns the configured cap, 0 when unbounded.
func (pool *Pool) Limit() int {
	if pool.slots == nil {
		return 0
	}

	return cap(pool.slots)
}
