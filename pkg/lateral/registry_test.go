package lateral

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/pkg/store"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

// gatedDialer holds dials to one address until release is closed and passes the others
// to a plain dialer.
type gatedDialer struct {
	addr    string
	entered chan struct{}
	release chan struct{}
	dials   atomic.Int32
	fail    bool
}

func newGatedDialer(addr string, fail bool) *gatedDialer {
	return &gatedDialer{addr: addr, entered: make(chan struct{}, 8), release: make(chan struct{}), fail: fail}
}

func (g *gatedDialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer

	if addr != g.addr {
		return d.DialContext(ctx, network, addr)
	}

	g.dials.Add(1)
	g.entered <- struct{}{}
	<-g.release

	if g.fail {
		return nil, errors.New("peer unreachable")
	}

	return d.DialContext(context.Background(), network, addr)
}

func TestRegistry_SlowDialDoesNotBlockOtherPeers(t *testing.T) {
	ctx := context.Background()

	_, live := startPeer(t)
	slow := cluster.NewEndpoint("127.0.0.1", 1)

	gate := newGatedDialer(slow.String(), true)
	r := newTestRegistry(t, store.NewInMemory(), WithSenderOptions(transport.WithDialer(gate.dial)))

	cfg := testConfig()
	cfg.Receive = false

	done := make(chan *Manager, 1)

	go func() { done <- r.Manager(ctx, slow, cfg) }()

	<-gate.entered

	start := time.Now()

	_, ok := r.Lookup(slow)
	assert.False(t, ok)
	assert.Equal(t, 0, len(r.Managers()))

	m := r.Manager(ctx, live, cfg)
	assert.False(t, m.IsZombie())
	assert.True(t, time.Since(start) < time.Second)

	close(gate.release)

	slowMgr := <-done
	assert.True(t, slowMgr.IsZombie())
	assert.Equal(t, 2, len(r.Managers()))
	assert.Equal(t, []string{slow.String()}, r.Monitor().Failed())
}

func TestRegistry_ConcurrentCreationKeepsOneManager(t *testing.T) {
	ctx := context.Background()

	_, peer := startPeer(t)

	gate := newGatedDialer(peer.String(), false)
	r := newTestRegistry(t, store.NewInMemory(), WithSenderOptions(transport.WithDialer(gate.dial)))

	cfg := testConfig()
	cfg.Receive = false

	var wg sync.WaitGroup

	got := make([]*Manager, 2)

	for i := range got {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got[i] = r.Manager(ctx, peer, cfg)
		}()
	}

	// both callers dial before either inserts
	<-gate.entered
	<-gate.entered
	close(gate.release)

	wg.Wait()

	assert.Equal(t, int32(2), gate.dials.Load())
	assert.True(t, got[0] == got[1])
	assert.Equal(t, 1, len(r.Managers()))
	assert.False(t, got[0].IsZombie())
	assert.True(t, got[0].Service() != nil)
}
