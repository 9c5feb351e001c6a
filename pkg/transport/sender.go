// Package transport moves lateral cache operations between peers over TCP: the outbound
// Sender and the remote service built on it, the zombie stand-in used while a peer is
// unreachable, and the Listener applying inbound operations to the local store.
package transport

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/internal/wire"
)

// SenderStats is a snapshot of a Sender's counters.
type SenderStats struct {
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Errors   uint64 `json:"errors"`
	Drained  uint64 `json:"drained"`
}

// Sender owns one outbound connection to a remote listener. Send and SendAndReceive
// share one lock, so a response is always read by the caller whose request solicited it.
type Sender struct {
	endpoint       cluster.Endpoint
	connectTimeout time.Duration
	socketTimeout  time.Duration
	codec          *wire.Codec
	logger         *zap.Logger
	dialer         func(ctx context.Context, network, addr string) (net.Conn, error)

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	sent     atomic.Uint64
	received atomic.Uint64
	errs     atomic.Uint64
	drained  atomic.Uint64
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithConnectTimeout bounds the initial dial.
func WithConnectTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithSocketTimeout bounds every write and every response read.
func WithSocketTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.socketTimeout = d
		}
	}
}

// WithSenderLogger sets the logger.
func WithSenderLogger(logger *zap.Logger) SenderOption {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCodec replaces the frame codec.
func WithCodec(c *wire.Codec) SenderOption {
	return func(s *Sender) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithDialer replaces the function used to open the connection.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) SenderOption {
	return func(s *Sender) {
		if dial != nil {
			s.dialer = dial
		}
	}
}

// Dial connects to endpoint. It fails with an error matching sentinel.ErrConnect when the
// dial does not complete within the connect timeout.
func Dial(ctx context.Context, endpoint cluster.Endpoint, opts ...SenderOption) (*Sender, error) {
	s := &Sender{
		endpoint:       endpoint,
		connectTimeout: constants.DefaultConnectTimeout,
		socketTimeout:  constants.DefaultSocketTimeout,
		codec:          wire.NewCodec(),
		logger:         zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dialer == nil {
		d := &net.Dialer{Timeout: s.connectTimeout}
		s.dialer = d.DialContext
	}

	if endpoint.Port <= 0 {
		return nil, connectError(endpoint.String(), sentinel.ErrInvalidEndpoint)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.dialer(dialCtx, constants.TransportTCP, endpoint.String())
	if err != nil {
		return nil, connectError(endpoint.String(), err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
	}

	s.conn = conn
	s.reader = bufio.NewReader(conn)

	s.logger.Debug("lateral sender connected", zap.String("endpoint", endpoint.String()))

	return s, nil
}

// Endpoint returns the remote endpoint.
func (s *Sender) Endpoint() cluster.Endpoint { return s.endpoint }

// Alive reports whether the connection is still usable.
func (s *Sender) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn != nil
}

// Send writes msg without waiting for a reply. Any I/O error invalidates the connection.
func (s *Sender) Send(ctx context.Context, msg *wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return sendError("send", s.endpoint.String(), sentinel.ErrSenderClosed)
	}

	err := s.write(ctx, msg)
	if err != nil {
		return err
	}

	s.sent.Add(1)

	return nil
}

// SendAndReceive writes msg then blocks for exactly one response. Bytes the reader already
// buffered from an earlier exchange are discarded first; bytes still unread in the socket
// are not. A read failure, including a timeout, invalidates the connection, so a late reply
// never outlives the request it answers.
func (s *Sender) SendAndReceive(ctx context.Context, msg *wire.Message) (*wire.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, sendError("send-receive", s.endpoint.String(), sentinel.ErrSenderClosed)
	}

	if n := s.reader.Buffered(); n > 0 {
		_, _ = s.reader.Discard(n)
		s.drained.Add(uint64(n))
		s.logger.Warn("discarded stale bytes before request",
			zap.String("endpoint", s.endpoint.String()), zap.Int("bytes", n))
	}

	err := s.write(ctx, msg)
	if err != nil {
		return nil, err
	}

	s.sent.Add(1)

	_ = s.conn.SetReadDeadline(s.deadline(ctx))

	resp, err := s.codec.ReadResponse(s.reader)
	if err != nil {
		s.invalidate()

		return nil, sendError("receive", s.endpoint.String(), err)
	}

	_ = s.conn.SetReadDeadline(time.Time{})

	s.received.Add(1)

	return resp, nil
}

// Close closes the connection. Subsequent sends fail with sentinel.ErrSenderClosed.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.reader = nil

	return err
}

// Stats returns a snapshot of the counters.
func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Sent:     s.sent.Load(),
		Received: s.received.Load(),
		Errors:   s.errs.Load(),
		Drained:  s.drained.Load(),
	}
}

// write must be called with mu held.
func (s *Sender) write(ctx context.Context, msg *wire.Message) error {
	frame, err := s.codec.Marshal(msg)
	if err != nil {
		// nothing reached the socket; the connection stays usable
		return sendError("encode", s.endpoint.String(), err)
	}

	_ = s.conn.SetWriteDeadline(s.deadline(ctx))

	_, err = s.conn.Write(frame)
	if err != nil {
		s.invalidate()

		return sendError("send", s.endpoint.String(), err)
	}

	return nil
}

// deadline is the earlier of the context deadline and now + socket timeout.
func (s *Sender) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.socketTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}

	return d
}

func (s *Sender) invalidate() {
	s.errs.Add(1)

	if s.conn != nil {
		_ = s.conn.Close()
	}

	s.conn = nil
	s.reader = nil

	s.logger.Info("lateral connection invalidated", zap.String("endpoint", s.endpoint.String()))
}
