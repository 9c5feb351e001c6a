package lateral

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/pkg/store"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1"
	cfg.ListenPort = 0
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.SocketTimeout = time.Second

	return cfg
}

func newTestRegistry(t *testing.T, st store.Store, opts ...RegistryOption) *Registry {
	t.Helper()

	r, err := NewRegistry(st, opts...)
	assert.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = r.Shutdown(ctx)
	})

	return r
}

// startPeer runs a receiving node and returns its store and endpoint.
func startPeer(t *testing.T) (*store.InMemory, cluster.Endpoint) {
	t.Helper()

	st := store.NewInMemory()
	r := newTestRegistry(t, st)

	l, err := r.EnsureListener(context.Background(), testConfig())
	assert.NoError(t, err)

	ep, err := cluster.ParseEndpoint(l.Addr())
	assert.NoError(t, err)

	return st, ep
}

// freePort returns a loopback port nobody listens on.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	return port
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}

		time.Sleep(5 * time.Millisecond)
	}

	return cond()
}

func TestManager_ZombieFallbackNeverFails(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewInMemory())

	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.Receive = false

	m := r.Manager(ctx, cluster.NewEndpoint("127.0.0.1", 1), cfg)
	assert.True(t, m.IsZombie())
	assert.Equal(t, cluster.EndpointZombie, m.State())

	nw := m.RegionAdapter(ctx, "users")
	nw.Update(ctx, "k", []byte("v"))
	nw.Remove(ctx, "k")
	nw.RemoveAll(ctx)

	v, found := nw.Get(ctx, "k")
	assert.False(t, found)
	assert.Nil(t, v)
	assert.Nil(t, nw.GetKeySet(ctx))
	assert.Equal(t, 0, len(nw.GetMatching(ctx, ".*")))

	assert.Equal(t, []string{"127.0.0.1:1"}, r.Monitor().Failed())
	assert.True(t, r.Monitor().Running())
	assert.Equal(t, 3, m.Stats().ZombieQueue)
	assert.Equal(t, "zombie", m.Stats().State)

	// same endpoint, same manager
	assert.True(t, r.Manager(ctx, cluster.NewEndpoint("127.0.0.1", 1), cfg) == m)
}

func TestManager_RepairReplaysQueue(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewInMemory())

	cfg := testConfig()
	cfg.Receive = false

	port := freePort(t)
	ep := cluster.NewEndpoint("127.0.0.1", port)

	m := r.Manager(ctx, ep, cfg)
	assert.True(t, m.IsZombie())

	nw := m.RegionAdapter(ctx, "users")
	nw.Update(ctx, "k", []byte("v"))

	// still down: the pass absorbs the failure
	assert.Equal(t, 0, r.Monitor().RepairAll(ctx))
	assert.True(t, m.IsZombie())

	peerStore := store.NewInMemory()

	l, err := transport.NewListener(peerStore, transport.WithListenAddress(ep.String()))
	assert.NoError(t, err)
	assert.NoError(t, l.Start(ctx))

	defer l.Shutdown(ctx)

	assert.Equal(t, 1, r.Monitor().RepairAll(ctx))
	assert.False(t, m.IsZombie())
	assert.Equal(t, 0, len(r.Monitor().Failed()))

	ok := waitFor(2*time.Second, func() bool {
		v, found, _ := peerStore.LocalGet(ctx, "users", "k")

		return found && string(v) == "v"
	})
	assert.True(t, ok)

	attempts, repaired := r.Monitor().Stats()
	assert.Equal(t, uint64(2), attempts)
	assert.Equal(t, uint64(1), repaired)
	assert.Equal(t, uint64(1), m.Stats().Repairs)
}

func TestManager_LostConnectionBecomesZombie(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewInMemory())

	cfg := testConfig()
	cfg.Receive = false

	peerStore := store.NewInMemory()

	l, err := transport.NewListener(peerStore, transport.WithListenAddress("127.0.0.1:0"))
	assert.NoError(t, err)
	assert.NoError(t, l.Start(ctx))

	ep, _ := cluster.ParseEndpoint(l.Addr())

	m := r.Manager(ctx, ep, cfg)
	assert.False(t, m.IsZombie())

	nw := m.RegionAdapter(ctx, "users")

	sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, l.Shutdown(sctx))

	// the read fails on the dead socket, is absorbed, and swaps the slot
	_, found := nw.Get(ctx, "k")
	assert.False(t, found)
	assert.True(t, m.IsZombie())
	assert.Equal(t, uint64(1), nw.Stats().Errors)
	assert.Equal(t, []string{ep.String()}, r.Monitor().Failed())
}

func TestManager_RegionAdapterStartsListener(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewInMemory())

	_, peer := startPeer(t)

	cfg := testConfig()
	cfg.ListenPort = freePort(t)

	m := r.Manager(ctx, peer, cfg)

	a := m.RegionAdapter(ctx, "users")
	b := m.RegionAdapter(ctx, "users")
	assert.True(t, a == b)

	l, ok := r.Listeners().Get(cfg.ListenPort)
	assert.True(t, ok)
	assert.Equal(t, transport.StateListening, l.State())
	assert.Equal(t, r.ID(), l.ID())
	assert.Equal(t, []string{"users"}, m.Regions())
}

func TestRegistry_NilStore(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)
}
