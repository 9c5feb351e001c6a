package lateralcache

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/lateral"
	"github.com/hyp3rd/lateralcache/pkg/store"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

type profile struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func testConfig() lateral.Config {
	cfg := lateral.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1"
	cfg.ListenPort = 0
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.SocketTimeout = time.Second

	return cfg
}

func newTestCache(t *testing.T, st store.Store, cfg lateral.Config, opts ...Option) *Cache {
	t.Helper()

	c, err := New(context.Background(), st, cfg, opts...)
	assert.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = c.Stop(ctx)
	})

	return c
}

func peerOf(c *Cache) string {
	return "127.0.0.1:" + strconv.Itoa(c.ListenPort())
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

func TestCache_ReplicatesToPeer(t *testing.T) {
	ctx := context.Background()

	remoteStore := store.NewInMemory()
	remote := newTestCache(t, remoteStore, testConfig())

	cfg := testConfig()
	cfg.PeerEndpoints = peerOf(remote)
	local := newTestCache(t, store.NewInMemory(), cfg, WithSerializer("json"))

	users, err := local.Region(ctx, "users")
	assert.NoError(t, err)

	assert.NoError(t, users.Put(ctx, "ada", profile{Name: "Ada", Score: 7}))

	assert.True(t, waitFor(2*time.Second, func() bool {
		_, ok, _ := remoteStore.LocalGet(ctx, "users", "ada")

		return ok
	}))

	var got profile

	ok, err := users.Get(ctx, "ada", &got)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada", got.Name)

	assert.NoError(t, users.Remove(ctx, "ada"))
	assert.True(t, waitFor(2*time.Second, func() bool {
		_, ok, _ := remoteStore.LocalGet(ctx, "users", "ada")

		return !ok
	}))
}

func TestCache_GetFallsBackToPeers(t *testing.T) {
	ctx := context.Background()

	remote := newTestCache(t, store.NewInMemory(), testConfig())

	remoteRegion, err := remote.Region(ctx, "sessions")
	assert.NoError(t, err)
	assert.NoError(t, remoteRegion.Put(ctx, "s1", "token"))

	cfg := testConfig()
	cfg.PeerEndpoints = peerOf(remote)
	localStore := store.NewInMemory()
	local := newTestCache(t, localStore, cfg)

	sessions, err := local.Region(ctx, "sessions")
	assert.NoError(t, err)

	var token string

	ok, err := sessions.Get(ctx, "s1", &token)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token", token)

	// a remote hit is kept locally
	_, ok, err = localStore.LocalGet(ctx, "sessions", "s1")
	assert.NoError(t, err)
	assert.True(t, ok)

	keys, err := sessions.AllKeys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"s1"}, keys)

	matching, err := sessions.GetMatching(ctx, "^s")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(matching))
}

func TestCache_UnreachablePeerNeverFails(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.PeerEndpoints = "127.0.0.1:1"
	cfg.Receive = false

	c := newTestCache(t, store.NewInMemory(), cfg, WithRegions("orders"))

	orders, err := c.Region(ctx, "orders")
	assert.NoError(t, err)

	assert.NoError(t, orders.Put(ctx, "o1", 42))
	assert.NoError(t, orders.Remove(ctx, "o1"))
	assert.NoError(t, orders.RemoveAll(ctx))

	var v int

	ok, err := orders.Get(ctx, "o1", &v)
	assert.NoError(t, err)
	assert.False(t, ok)

	peers := c.Peers()
	assert.Equal(t, 1, len(peers.Managers))
	assert.Equal(t, "zombie", peers.Managers[0].State)
	assert.Equal(t, []string{"orders"}, c.Regions())
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil, testConfig())
	assert.True(t, errors.Is(err, sentinel.ErrNilStore))

	_, err = New(ctx, store.NewInMemory(), testConfig(), WithSerializer("xml"))
	assert.True(t, errors.Is(err, sentinel.ErrSerializerNotFound))

	cfg := testConfig()
	cfg.SocketTimeout = 0
	_, err = New(ctx, store.NewInMemory(), cfg)
	assert.True(t, errors.Is(err, sentinel.ErrInvalidConfig))

	c := newTestCache(t, store.NewInMemory(), testConfig())
	_, err = c.Region(ctx, "")
	assert.True(t, errors.Is(err, sentinel.ErrParamCannotBeEmpty))
}

func TestCache_RegionCreationDoesNotHoldCacheLock(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{}, 4)
	release := make(chan struct{})

	var dials atomic.Int32

	dial := func(context.Context, string, string) (net.Conn, error) {
		dials.Add(1)
		entered <- struct{}{}
		<-release

		return nil, errors.New("peer unreachable")
	}

	cfg := testConfig()
	cfg.PeerEndpoints = "127.0.0.1:1"
	cfg.Receive = false

	c := newTestCache(t, store.NewInMemory(), cfg,
		WithRegistryOptions(lateral.WithSenderOptions(transport.WithDialer(dial))))

	results := make(chan *Region, 2)

	go func() {
		r, _ := c.Region(ctx, "orders")
		results <- r
	}()

	<-entered

	go func() {
		r, _ := c.Region(ctx, "orders")
		results <- r
	}()

	start := time.Now()

	assert.Equal(t, 0, len(c.Regions()))

	_, ok := c.lookupRegion("orders")
	assert.False(t, ok)
	assert.True(t, time.Since(start) < time.Second)

	close(release)

	first, second := <-results, <-results
	assert.True(t, first != nil)
	assert.True(t, first == second)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, []string{"orders"}, c.Regions())
}
