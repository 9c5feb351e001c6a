package transport

import (
	"context"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/pkg/store"
)

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}

		time.Sleep(5 * time.Millisecond)
	}

	return cond()
}

// startListener runs a listener on a free loopback port and stops it with the test.
func startListener(t *testing.T, st store.Store, opts ...ListenerOption) *Listener {
	t.Helper()

	opts = append([]ListenerOption{WithListenAddress("127.0.0.1:0")}, opts...)

	l, err := NewListener(st, opts...)
	assert.NoError(t, err)
	assert.NoError(t, l.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = l.Shutdown(ctx)
	})

	return l
}

func endpointOf(t *testing.T, l *Listener) cluster.Endpoint {
	t.Helper()

	ep, err := cluster.ParseEndpoint(l.Addr())
	assert.NoError(t, err)

	return ep
}
