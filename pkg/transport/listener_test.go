package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/wire"
	"github.com/hyp3rd/lateralcache/pkg/store"
)

var allowAll = Policy{AllowGet: true, AllowPut: true}

func TestListener_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	assert.Equal(t, StateListening, l.State())

	svc, err := DialService(ctx, endpointOf(t, l), 42, allowAll)
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	assert.NoError(t, svc.Update(ctx, "r", "k", []byte("v")))

	ok := waitFor(t, 2*time.Second, func() bool {
		v, found, _ := st.LocalGet(ctx, "r", "k")

		return found && string(v) == "v"
	})
	assert.True(t, ok)

	v, found, err := svc.Get(ctx, "r", "k")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(v))

	// a miss still gets an answer
	_, found, err = svc.Get(ctx, "r", "missing")
	assert.NoError(t, err)
	assert.False(t, found)

	keys, err := svc.GetKeySet(ctx, "r")
	assert.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	matches, err := svc.GetMatching(ctx, "r", "^k$")
	assert.NoError(t, err)
	assert.Equal(t, "v", string(matches["k"]))

	assert.NoError(t, svc.Remove(ctx, "r", "k"))

	ok = waitFor(t, 2*time.Second, func() bool {
		_, found, _ := st.LocalGet(ctx, "r", "k")

		return !found
	})
	assert.True(t, ok)

	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.Puts)
	assert.Equal(t, uint64(1), stats.Removes)
	assert.Equal(t, uint64(3), stats.Gets)
}

func TestListener_RemoveAll(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	_ = st.LocalPut(ctx, "r", "a", []byte("1"))
	_ = st.LocalPut(ctx, "r", "b", []byte("2"))
	_ = st.LocalPut(ctx, "other", "a", []byte("3"))

	svc, err := DialService(ctx, endpointOf(t, l), 42, allowAll)
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	assert.NoError(t, svc.RemoveAll(ctx, "r"))

	// the keyset read is ordered after the clear on the same connection
	keys, err := svc.GetKeySet(ctx, "r")
	assert.NoError(t, err)
	assert.Equal(t, 0, len(keys))

	_, found, _ := st.LocalGet(ctx, "other", "a")
	assert.True(t, found)
}

func TestListener_SelfEchoIgnored(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()

	l, err := NewListener(st, WithListenerID(7))
	assert.NoError(t, err)
	assert.Equal(t, int64(7), l.ID())

	_ = st.LocalPut(ctx, "r", "k", []byte("old"))

	for _, msg := range []*wire.Message{
		wire.NewUpdate("r", "k", []byte("new"), 7),
		wire.NewRemove("r", "k", 7),
		wire.NewRemoveAll("r", 7),
	} {
		resp, err := l.apply(ctx, msg)
		assert.NoError(t, err)
		assert.Nil(t, resp)
	}

	resp, err := l.apply(ctx, wire.NewGet("r", "k", 7))
	assert.NoError(t, err)
	assert.False(t, resp.Found)

	v, found, _ := st.LocalGet(ctx, "r", "k")
	assert.True(t, found)
	assert.Equal(t, "old", string(v))

	stats := l.Stats()
	assert.Equal(t, uint64(0), stats.Puts)
	assert.Equal(t, uint64(0), stats.Gets)
	assert.Equal(t, uint64(0), stats.Removes)
	assert.Equal(t, uint64(4), stats.SelfEchoes)
}

func TestListener_SelfEchoOverNetwork(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	svc, err := DialService(ctx, endpointOf(t, l), l.ID(), allowAll)
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	assert.NoError(t, svc.Update(ctx, "r", "k", []byte("v")))

	assert.True(t, waitFor(t, 2*time.Second, func() bool { return l.Stats().SelfEchoes == 1 }))

	_, found, _ := st.LocalGet(ctx, "r", "k")
	assert.False(t, found)
}

func TestListener_HashFilter(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		filter      bool
		removeValue string
		wantKept    bool
	}{
		{name: "same hash filtered", filter: true, removeValue: "v", wantKept: true},
		{name: "filter disabled", filter: false, removeValue: "v", wantKept: false},
		{name: "different hash", filter: true, removeValue: "other", wantKept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewInMemory()

			l, err := NewListener(st, WithFilterRemoveByHash(tt.filter))
			assert.NoError(t, err)

			_ = st.LocalPut(ctx, "r", "k", []byte("v"))

			_, err = l.apply(ctx, wire.NewHashedRemove("r", "k", []byte(tt.removeValue), 1))
			assert.NoError(t, err)

			_, found, _ := st.LocalGet(ctx, "r", "k")
			assert.Equal(t, tt.wantKept, found)

			// a filtered remove is not counted as a remove
			stats := l.Stats()
			if tt.wantKept {
				assert.Equal(t, uint64(0), stats.Removes)
				assert.Equal(t, uint64(1), stats.Filtered)
			} else {
				assert.Equal(t, uint64(1), stats.Removes)
				assert.Equal(t, uint64(0), stats.Filtered)
			}
		})
	}

	// a REMOVE without hash always removes
	st := store.NewInMemory()
	l, _ := NewListener(st, WithFilterRemoveByHash(true))
	_ = st.LocalPut(ctx, "r", "k", []byte("v"))

	_, err := l.apply(ctx, wire.NewRemove("r", "k", 1))
	assert.NoError(t, err)

	_, found, _ := st.LocalGet(ctx, "r", "k")
	assert.False(t, found)
}

func TestListener_ConcurrentGetsCorrelate(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	for i := range 20 {
		_ = st.LocalPut(ctx, "r", fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	svc, err := DialService(ctx, endpointOf(t, l), 42, allowAll)
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		mismatch int
	)

	for g := range 8 {
		wg.Add(1)

		go func(g int) {
			defer wg.Done()

			for j := range 25 {
				i := (g*7 + j) % 20

				v, found, err := svc.Get(ctx, "r", fmt.Sprintf("key-%d", i))
				if err != nil || !found || string(v) != fmt.Sprintf("value-%d", i) {
					mu.Lock()
					mismatch++
					mu.Unlock()
				}
			}
		}(g)
	}

	wg.Wait()

	assert.Equal(t, 0, mismatch)
	assert.Equal(t, uint64(200), svc.Sender().Stats().Received)
}

func TestListener_CorruptFrameClosesConnection(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	conn, err := net.Dial("tcp", l.Addr())
	assert.NoError(t, err)

	defer conn.Close()

	_, err = conn.Write([]byte{0, 0, 0, 3, 0xff, 0xff, 0xff})
	assert.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)

	// the listener keeps serving other peers
	svc, err := DialService(ctx, endpointOf(t, l), 42, allowAll)
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	_, found, err := svc.Get(ctx, "r", "k")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestListener_ShutdownLifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()

	l, err := NewListener(st, WithListenAddress("127.0.0.1:0"), WithMaxConnections(2))
	assert.NoError(t, err)
	assert.Equal(t, StateStopped, l.State())

	assert.NoError(t, l.Start(ctx))
	assert.Equal(t, StateListening, l.State())

	addr := l.Addr()

	// an idle peer holding its connection open
	conn, err := net.Dial("tcp", addr)
	assert.NoError(t, err)

	defer conn.Close()

	assert.True(t, waitFor(t, 2*time.Second, func() bool { return l.Stats().ActiveConns == 1 }))

	sctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, l.Shutdown(sctx))
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 0, l.Stats().ActiveConns)

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)

	// stopping twice is harmless
	assert.NoError(t, l.Shutdown(ctx))
}

func TestNewListener_NilStore(t *testing.T) {
	_, err := NewListener(nil)
	assert.Error(t, err)
}

// failingListener fails every Accept until it has failed n times, then reports closed.
type failingListener struct {
	mu    sync.Mutex
	n     int
	calls []time.Time
}

func (f *failingListener) Accept() (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, time.Now())
	if len(f.calls) > f.n {
		return nil, net.ErrClosed
	}

	return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
}

func (*failingListener) Close() error   { return nil }
func (*failingListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestNextAcceptDelay(t *testing.T) {
	assert.Equal(t, minAcceptDelay, nextAcceptDelay(0))
	assert.Equal(t, 10*time.Millisecond, nextAcceptDelay(5*time.Millisecond))
	assert.Equal(t, maxAcceptDelay, nextAcceptDelay(800*time.Millisecond))
	assert.Equal(t, maxAcceptDelay, nextAcceptDelay(maxAcceptDelay))
}

func TestListener_AcceptErrorsBackOff(t *testing.T) {
	l, err := NewListener(store.NewInMemory())
	assert.NoError(t, err)

	l.state.Store(int32(StateListening))

	ln := &failingListener{n: 4}

	l.acceptWG.Add(1)

	start := time.Now()
	l.acceptLoop(ln, nil)

	// 5 + 10 + 20 + 40 ms of pauses between the five calls
	assert.True(t, time.Since(start) >= 75*time.Millisecond)
	assert.Equal(t, 5, len(ln.calls))
	assert.True(t, ln.calls[4].Sub(ln.calls[3]) >= 40*time.Millisecond)
}
