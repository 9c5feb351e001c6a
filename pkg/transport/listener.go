package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/internal/telemetry/attrs"
	"github.com/hyp3rd/lateralcache/internal/wire"
	"github.com/hyp3rd/lateralcache/internal/workers"
	"github.com/hyp3rd/lateralcache/pkg/store"
)

// counters are logged every logInterval operations of a kind.
const logInterval = 100

// bounds of the pause after a failed accept.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// State is the lifecycle state of a Listener.
type State int32

// Listener states.
const (
	StateStopped State = iota
	StateListening
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	}

	return "unknown"
}

// ListenerStats is a snapshot of the listener counters.
type ListenerStats struct {
	Puts        uint64 `json:"puts"`
	Gets        uint64 `json:"gets"`
	Removes     uint64 `json:"removes"`
	SelfEchoes  uint64 `json:"selfEchoes"`
	Filtered    uint64 `json:"filtered"`
	Accepted    uint64 `json:"accepted"`
	ActiveConns int    `json:"activeConnections"`
}

// Listener accepts peer connections and applies the operations they carry to the local store.
type Listener struct {
	address        string
	id             int64
	store          store.Store
	codec          *wire.Codec
	logger         *zap.Logger
	meter          metric.Meter
	filterByHash   bool
	maxConnections int

	state    atomic.Int32
	mu       sync.Mutex
	ln       net.Listener
	pool     *workers.Pool
	conns    map[net.Conn]struct{}
	acceptWG sync.WaitGroup

	puts       atomic.Uint64
	gets       atomic.Uint64
	removes    atomic.Uint64
	selfEchoes atomic.Uint64
	filtered   atomic.Uint64
	accepted   atomic.Uint64

	messages metric.Int64Counter
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenAddress sets the bind address (host:port; port 0 picks a free one).
func WithListenAddress(addr string) ListenerOption {
	return func(l *Listener) { l.address = addr }
}

// WithListenerID overrides the generated identity.
func WithListenerID(id int64) ListenerOption {
	return func(l *Listener) {
		if id != 0 {
			l.id = id
		}
	}
}

// WithFilterRemoveByHash enables the content hash remove filter.
func WithFilterRemoveByHash(enabled bool) ListenerOption {
	return func(l *Listener) { l.filterByHash = enabled }
}

// WithMaxConnections caps concurrent connection handlers. 0 means unbounded.
func WithMaxConnections(n int) ListenerOption {
	return func(l *Listener) { l.maxConnections = n }
}

// WithListenerLogger sets the logger.
func WithListenerLogger(logger *zap.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMeter records per-message counters on meter.
func WithMeter(meter metric.Meter) ListenerOption {
	return func(l *Listener) {
		if meter != nil {
			l.meter = meter
		}
	}
}

// NewListener builds a stopped listener over st.
func NewListener(st store.Store, opts ...ListenerOption) (*Listener, error) {
	if st == nil {
		return nil, sentinel.ErrNilStore
	}

	l := &Listener{
		address: ":" + strconv.Itoa(constants.DefaultListenPort),
		id:      cluster.NewListenerID(),
		store:   st,
		codec:   wire.NewCodec(),
		logger:  zap.NewNop(),
		meter:   noop.NewMeterProvider().Meter("lateralcache"),
		conns:   make(map[net.Conn]struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	messages, err := l.meter.Int64Counter("lateral.listener.messages")
	if err != nil {
		return nil, ewrap.Wrap(err, "create listener counter")
	}

	l.messages = messages

	return l, nil
}

// ID returns the identity used for self echo suppression.
func (l *Listener) ID() int64 { return l.id }

// State returns the lifecycle state.
func (l *Listener) State() State { return State(l.state.Load()) }

// Addr returns the bound address, or the configured one when not listening.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		return l.ln.Addr().String()
	}

	return l.address
}

// Start binds the address and runs the accept loop in the background.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.State() != StateStopped {
		return nil
	}

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, constants.TransportTCP, l.address)
	if err != nil {
		return ewrap.Wrapf(err, "listen on %s", l.address)
	}

	l.ln = ln
	l.pool = workers.New(l.maxConnections, workers.WithErrorHandler(func(err error) {
		l.logger.Error("connection handler failed", zap.Error(err))
	}))
	l.state.Store(int32(StateListening))

	l.acceptWG.Add(1)

	go l.acceptLoop(ln, l.pool)

	l.logger.Info("lateral listener started",
		zap.String("addr", ln.Addr().String()), zap.Int64("listenerID", l.id))

	return nil
}

// Shutdown closes the listening socket, then waits for in-flight handlers. Handlers still
// running when ctx is done have their connections closed.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()

	if l.State() != StateListening {
		l.mu.Unlock()

		return nil
	}

	l.state.Store(int32(StateDraining))

	ln, pool := l.ln, l.pool
	l.mu.Unlock()

	err := ln.Close()
	l.acceptWG.Wait()

	done := make(chan struct{})

	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		l.closeConns()
		<-done
	}

	l.mu.Lock()
	l.ln = nil
	l.state.Store(int32(StateStopped))
	l.mu.Unlock()

	l.logger.Info("lateral listener stopped", zap.Int64("listenerID", l.id))

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return ewrap.Wrap(err, "close listener")
	}

	return nil
}

// Stats returns a snapshot of the counters.
func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	active := len(l.conns)
	l.mu.Unlock()

	return ListenerStats{
		Puts:        l.puts.Load(),
		Gets:        l.gets.Load(),
		Removes:     l.removes.Load(),
		SelfEchoes:  l.selfEchoes.Load(),
		Filtered:    l.filtered.Load(),
		Accepted:    l.accepted.Load(),
		ActiveConns: active,
	}
}

func (l *Listener) acceptLoop(ln net.Listener, pool *workers.Pool) {
	defer l.acceptWG.Done()

	var delay time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.State() != StateListening {
				return
			}

			delay = nextAcceptDelay(delay)
			l.logger.Warn("accept failed, retrying", zap.Duration("delay", delay), zap.Error(err))
			time.Sleep(delay)

			continue
		}

		delay = 0

		l.accepted.Add(1)
		l.track(conn)

		err = pool.Go(context.Background(), func() error { return l.handle(conn) })
		if err != nil {
			l.untrack(conn)
			_ = conn.Close()
		}
	}
}

// nextAcceptDelay doubles the pause after a failed accept, from minAcceptDelay up to maxAcceptDelay.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}

	return min(prev*2, maxAcceptDelay)
}

func (l *Listener) track(conn net.Conn) {
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

func (l *Listener) closeConns() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for c := range l.conns {
		_ = c.Close()
	}
}

// handle decodes messages from one connection until it ends.
func (l *Listener) handle(conn net.Conn) error {
	defer func() {
		l.untrack(conn)
		_ = conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)
	ctx := context.Background()

	for {
		msg, err := l.codec.ReadMessage(reader)
		if err != nil {
			if isConnectionEnd(err) {
				l.logger.Info("peer connection closed", zap.String("remote", remote), zap.Error(err))

				return nil
			}

			l.logger.Error("dropping peer connection", zap.String("remote", remote), zap.Error(err))

			return nil
		}

		resp, err := l.apply(ctx, msg)
		if err != nil {
			l.logger.Error("apply lateral message",
				zap.String("command", msg.Command.String()),
				zap.String("region", msg.Region),
				zap.Error(err))
		}

		if resp == nil {
			continue
		}

		err = l.codec.WriteResponse(conn, resp)
		if err != nil {
			l.logger.Info("write response failed", zap.String("remote", remote), zap.Error(err))

			return nil
		}
	}
}

// apply runs msg against the local store. It returns a response for read commands, and
// always one for them, even when the store failed.
func (l *Listener) apply(ctx context.Context, msg *wire.Message) (*wire.Response, error) {
	if msg.SenderID == l.id {
		l.selfEchoes.Add(1)
		l.logger.Debug("discarding self echo", zap.String("region", msg.Region), zap.String("key", msg.Key))

		var resp *wire.Response
		if msg.Command.IsRead() {
			resp = &wire.Response{}
		}

		return resp, nil
	}

	switch msg.Command {
	case wire.CommandUpdate:
		l.count(&l.puts, "put")
		l.record(ctx, msg, "applied")

		return nil, l.store.LocalPut(ctx, msg.Region, msg.Key, msg.Value)

	case wire.CommandRemove:
		if l.suppressRemove(ctx, msg) {
			l.filtered.Add(1)
			l.record(ctx, msg, "filtered")

			return nil, nil
		}

		l.count(&l.removes, "remove")
		l.record(ctx, msg, "applied")

		_, err := l.store.LocalRemove(ctx, msg.Region, msg.Key)

		return nil, err

	case wire.CommandRemoveAll:
		l.record(ctx, msg, "applied")

		return nil, l.store.LocalRemoveAll(ctx, msg.Region)

	case wire.CommandGet:
		l.count(&l.gets, "get")
		l.record(ctx, msg, "applied")

		value, ok, err := l.store.LocalGet(ctx, msg.Region, msg.Key)
		if err != nil || !ok {
			return &wire.Response{}, err
		}

		return &wire.Response{Found: true, Value: value}, nil

	case wire.CommandGetMatching:
		l.count(&l.gets, "get")
		l.record(ctx, msg, "applied")

		pattern, err := regexp.Compile(msg.Key)
		if err != nil {
			return &wire.Response{}, ewrap.Wrapf(err, "compile pattern %q", msg.Key)
		}

		entries, err := l.store.LocalGetMatching(ctx, msg.Region, pattern)
		if err != nil {
			return &wire.Response{}, err
		}

		return &wire.Response{Found: len(entries) > 0, Entries: entries}, nil

	case wire.CommandGetKeySet:
		l.record(ctx, msg, "applied")

		keys, err := l.store.LocalGetKeySet(ctx, msg.Region)
		if err != nil {
			return &wire.Response{}, err
		}

		return &wire.Response{Found: true, Keys: keys}, nil
	}

	return nil, ewrap.Wrap(sentinel.ErrUnknownCommand, msg.Command.String())
}

// suppressRemove reports whether a hashed REMOVE targets a local value with the same
// content hash. Colliding hashes of different values also suppress the remove.
func (l *Listener) suppressRemove(ctx context.Context, msg *wire.Message) bool {
	hash, ok := msg.Hash()
	if !ok || !l.filterByHash {
		return false
	}

	value, found, err := l.store.LocalGet(ctx, msg.Region, msg.Key)
	if err != nil || !found {
		return false
	}

	return wire.ContentHash(value) == hash
}

func (l *Listener) count(c *atomic.Uint64, kind string) {
	n := c.Add(1)
	if n%logInterval == 0 {
		l.logger.Info("lateral listener counter", zap.String("kind", kind), zap.Uint64("count", n))
	}
}

func (l *Listener) record(ctx context.Context, msg *wire.Message, outcome string) {
	l.messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrs.AttrCommand, msg.Command.String()),
		attribute.String(attrs.AttrRegion, msg.Region),
		attribute.String(attrs.AttrOutcome, outcome),
	))
}

// isConnectionEnd reports a normal end of a peer stream.
func isConnectionEnd(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
