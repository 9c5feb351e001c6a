package transport

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/store"
)

// countingConn counts the writes reaching the socket.
type countingConn struct {
	net.Conn

	writes *atomic.Int64
}

func (c countingConn) Write(p []byte) (int, error) {
	c.writes.Add(1)

	return c.Conn.Write(p)
}

func countingDialer(writes *atomic.Int64) SenderOption {
	return WithDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer

		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		return countingConn{Conn: conn, writes: writes}, nil
	})
}

func TestTCPService_AllowGetDisabled(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	_ = st.LocalPut(ctx, "r", "k", []byte("v"))

	var writes atomic.Int64

	svc, err := DialService(ctx, endpointOf(t, l), 42, Policy{AllowPut: true}, countingDialer(&writes))
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	_, found, err := svc.Get(ctx, "r", "k")
	assert.NoError(t, err)
	assert.False(t, found)

	matches, err := svc.GetMatching(ctx, "r", ".*")
	assert.NoError(t, err)
	assert.Equal(t, 0, len(matches))

	multi, err := svc.GetMultiple(ctx, "r", []string{"k"})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(multi))

	assert.Equal(t, int64(0), writes.Load())
	assert.Equal(t, uint64(0), svc.Sender().Stats().Sent)
	assert.Equal(t, uint64(0), l.Stats().Gets)
}

func TestTCPService_PutDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	var writes atomic.Int64

	svc, err := DialService(ctx, endpointOf(t, l), 42, Policy{AllowGet: true}, countingDialer(&writes))
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	assert.NoError(t, svc.Update(ctx, "r", "k", []byte("v")))
	assert.Equal(t, int64(0), writes.Load())
}

func TestTCPService_IssueRemoveOnPut(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st, WithFilterRemoveByHash(true))

	_ = st.LocalPut(ctx, "r", "same", []byte("v"))
	_ = st.LocalPut(ctx, "r", "stale", []byte("old"))

	svc, err := DialService(ctx, endpointOf(t, l), 42, Policy{AllowGet: true, AllowPut: true, IssueRemoveOnPut: true})
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	assert.NoError(t, svc.Update(ctx, "r", "same", []byte("v")))
	assert.NoError(t, svc.Update(ctx, "r", "stale", []byte("new")))

	// the reads are served after both removes on the same connection
	_, sameFound, err := svc.Get(ctx, "r", "same")
	assert.NoError(t, err)
	assert.True(t, sameFound)

	_, staleFound, err := svc.Get(ctx, "r", "stale")
	assert.NoError(t, err)
	assert.False(t, staleFound)

	stats := l.Stats()
	assert.Equal(t, uint64(0), stats.Puts)
	assert.Equal(t, uint64(1), stats.Removes)
	assert.Equal(t, uint64(1), stats.Filtered)
}

func TestTCPService_GetMultipleIsSequential(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	l := startListener(t, st)

	_ = st.LocalPut(ctx, "r", "a", []byte("1"))
	_ = st.LocalPut(ctx, "r", "b", []byte("2"))

	svc, err := DialService(ctx, endpointOf(t, l), 42, allowAll)
	assert.NoError(t, err)

	defer svc.Dispose(ctx, "r")

	out, err := svc.GetMultiple(ctx, "r", []string{"a", "b", "c"})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(out))
	assert.Equal(t, "2", string(out["b"]))
	assert.Equal(t, uint64(3), svc.Sender().Stats().Received)
}

func TestTCPService_DisposeClosesSender(t *testing.T) {
	ctx := context.Background()
	l := startListener(t, store.NewInMemory())

	svc, err := DialService(ctx, endpointOf(t, l), 42, allowAll)
	assert.NoError(t, err)

	assert.NoError(t, svc.Dispose(ctx, "r"))
	assert.False(t, svc.Sender().Alive())

	err = svc.Remove(ctx, "other-region", "k")
	assert.True(t, errors.Is(err, sentinel.ErrSenderClosed))
	assert.True(t, errors.Is(err, sentinel.ErrSend))

	var opErr *OpError
	assert.True(t, errors.As(err, &opErr))
	assert.Equal(t, "send", opErr.Op)
}

func TestDial_Unreachable(t *testing.T) {
	start := time.Now()

	_, err := Dial(context.Background(), cluster.NewEndpoint("127.0.0.1", 1), WithConnectTimeout(50*time.Millisecond))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrConnect))
	assert.True(t, time.Since(start) < 2*time.Second)
}

func TestSender_InvalidatedAfterPeerGone(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()

	l, err := NewListener(st, WithListenAddress("127.0.0.1:0"))
	assert.NoError(t, err)
	assert.NoError(t, l.Start(ctx))

	sender, err := Dial(ctx, endpointOf(t, l), WithSocketTimeout(200*time.Millisecond))
	assert.NoError(t, err)

	defer sender.Close()

	sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, l.Shutdown(sctx))

	svc := NewTCPService(sender, 42, allowAll)

	// the peer closed the socket: the read fails and the connection is dropped
	_, _, err = svc.Get(ctx, "r", "k")
	assert.Error(t, err)
	assert.False(t, sender.Alive())
	assert.Equal(t, uint64(1), sender.Stats().Errors)

	err = svc.Update(ctx, "r", "k", []byte("v"))
	assert.True(t, errors.Is(err, sentinel.ErrSenderClosed))
}
