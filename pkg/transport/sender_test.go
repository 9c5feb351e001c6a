package transport

import (
	"context"
	"net"
	"testing"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/wire"
)

func TestSender_DiscardsBufferedStaleReply(t *testing.T) {
	ctx := context.Background()
	codec := wire.NewCodec()

	client, server := net.Pipe()

	go func() {
		defer server.Close()

		// the first request gets its answer followed by an unsolicited one in a single write
		if _, err := codec.ReadMessage(server); err != nil {
			return
		}

		first, _ := codec.Marshal(&wire.Response{Found: true, Value: []byte("first")})
		stale, _ := codec.Marshal(&wire.Response{Found: true, Value: []byte("stale")})

		if _, err := server.Write(append(first, stale...)); err != nil {
			return
		}

		if _, err := codec.ReadMessage(server); err != nil {
			return
		}

		_ = codec.WriteResponse(server, &wire.Response{Found: true, Value: []byte("second")})
	}()

	s, err := Dial(ctx, cluster.NewEndpoint("127.0.0.1", 1),
		WithDialer(func(context.Context, string, string) (net.Conn, error) { return client, nil }))
	assert.NoError(t, err)

	defer s.Close()

	resp, err := s.SendAndReceive(ctx, wire.NewGet("r", "a", 1))
	assert.NoError(t, err)
	assert.Equal(t, "first", string(resp.Value))

	resp, err = s.SendAndReceive(ctx, wire.NewGet("r", "b", 1))
	assert.NoError(t, err)
	assert.Equal(t, "second", string(resp.Value))
	assert.True(t, s.Stats().Drained > 0)
	assert.True(t, s.Alive())
}
