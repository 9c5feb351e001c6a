package transport

import (
	"context"
	"sync"

	"github.com/hyp3rd/lateralcache/internal/wire"
)

type queuedOp struct {
	command wire.Command
	region  string
	key     string
	value   []byte
}

// Zombie stands in for an unreachable peer. Mutations never fail: they are queued up to
// a bound, dropping the oldest when full, and replayed by Propagate once the peer is back.
// Reads always report not found.
type Zombie struct {
	mu      sync.Mutex
	queue   []queuedOp
	max     int
	dropped uint64
}

// NewZombie returns a zombie keeping at most maxQueue operations. maxQueue <= 0 discards everything.
func NewZombie(maxQueue int) *Zombie {
	return &Zombie{max: maxQueue}
}

func (z *Zombie) enqueue(op queuedOp) {
	if z.max <= 0 {
		return
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if len(z.queue) >= z.max {
		z.queue = z.queue[1:]
		z.dropped++
	}

	z.queue = append(z.queue, op)
}

// Update queues a put.
func (z *Zombie) Update(_ context.Context, region, key string, value []byte) error {
	z.enqueue(queuedOp{command: wire.CommandUpdate, region: region, key: key, value: append([]byte(nil), value...)})

	return nil
}

// Remove queues a removal.
func (z *Zombie) Remove(_ context.Context, region, key string) error {
	z.enqueue(queuedOp{command: wire.CommandRemove, region: region, key: key})

	return nil
}

// RemoveAll queues a region clear.
func (z *Zombie) RemoveAll(_ context.Context, region string) error {
	z.enqueue(queuedOp{command: wire.CommandRemoveAll, region: region})

	return nil
}

// Get reports not found.
func (*Zombie) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }

// GetMatching returns no entries.
func (*Zombie) GetMatching(context.Context, string, string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

// GetMultiple returns no entries.
func (*Zombie) GetMultiple(context.Context, string, []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

// GetKeySet returns nil: no answer.
func (*Zombie) GetKeySet(context.Context, string) ([]string, error) { return nil, nil }

// Dispose is a no-op.
func (*Zombie) Dispose(context.Context, string) error { return nil }

// Len returns the number of queued operations.
func (z *Zombie) Len() int {
	z.mu.Lock()
	defer z.mu.Unlock()

	return len(z.queue)
}

// Dropped returns how many operations were discarded because the queue was full.
func (z *Zombie) Dropped() uint64 {
	z.mu.Lock()
	defer z.mu.Unlock()

	return z.dropped
}

// Propagate replays the queued operations, in order, into live. It stops at the first
// failure and keeps the failed operation and everything after it queued.
func (z *Zombie) Propagate(ctx context.Context, live Service) (int, error) {
	z.mu.Lock()
	pending := z.queue
	z.queue = nil
	z.mu.Unlock()

	for i, op := range pending {
		var err error

		switch op.command {
		case wire.CommandUpdate:
			err = live.Update(ctx, op.region, op.key, op.value)
		case wire.CommandRemove:
			err = live.Remove(ctx, op.region, op.key)
		case wire.CommandRemoveAll:
			err = live.RemoveAll(ctx, op.region)
		default:
		}

		if err != nil {
			z.mu.Lock()
			z.queue = append(pending[i:len(pending):len(pending)], z.queue...)
			z.mu.Unlock()

			return i, err
		}
	}

	return len(pending), nil
}

var (
	_ Service = (*Zombie)(nil)
	_ Service = (*TCPService)(nil)
)
