package discovery

import (
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/shamaton/msgpack/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/constants"
)

const maxPacketSize = 64 << 10

// PacketType tells receivers what a discovery packet means.
type PacketType uint8

// Packet types.
const (
	// PacketRequest asks every peer to announce itself now.
	PacketRequest PacketType = iota + 1
	// PacketPassive is the periodic announcement of a service.
	PacketPassive
	// PacketRemove retracts a service on shutdown.
	PacketRemove
)

type packet struct {
	Type    PacketType `msgpack:"type"`
	Origin  int64      `msgpack:"origin"`
	Service Service    `msgpack:"service"`
}

// UDPService announces the local lateral listener over UDP multicast (or unicast when the
// group address is not a multicast address) and tracks the services other nodes announce.
type UDPService struct {
	group    *net.UDPAddr
	local    Service
	regions  func() []string
	listener Listener
	interval time.Duration
	maxIdle  time.Duration
	logger   *zap.Logger
	id       int64

	members *cluster.Membership

	mu       sync.Mutex
	services map[string]Service
	recv     *net.UDPConn
	send     *net.UDPConn
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// UDPOption configures a UDPService.
type UDPOption func(*UDPService)

// WithInterval sets the announcement period.
func WithInterval(d time.Duration) UDPOption {
	return func(s *UDPService) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxIdle sets how long a silent service is kept before it is reported gone.
func WithMaxIdle(d time.Duration) UDPOption {
	return func(s *UDPService) {
		if d > 0 {
			s.maxIdle = d
		}
	}
}

// WithRegions sets the function listing the regions announced for the local service.
func WithRegions(fn func() []string) UDPOption {
	return func(s *UDPService) { s.regions = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) UDPOption {
	return func(s *UDPService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewUDPService creates a discovery service on groupAddr:groupPort announcing local and
// reporting peers to listener.
func NewUDPService(groupAddr string, groupPort int, local Service, listener Listener, opts ...UDPOption) (*UDPService, error) {
	ip := net.ParseIP(groupAddr)
	if ip == nil {
		return nil, ewrap.Newf("invalid discovery address %q", groupAddr)
	}

	if listener == nil {
		return nil, ewrap.New("nil discovery listener")
	}

	if local.Transport == "" {
		local.Transport = constants.TransportTCP
	}

	s := &UDPService{
		group:    &net.UDPAddr{IP: ip, Port: groupPort},
		local:    local,
		listener: listener,
		interval: constants.DefaultDiscoveryInterval,
		maxIdle:  constants.DefaultDiscoveryMaxIdle,
		logger:   zap.NewNop(),
		id:       cluster.NewListenerID(),
		members:  cluster.NewMembership(),
		services: make(map[string]Service),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start binds the sockets, asks peers to announce themselves and starts the loops.
func (s *UDPService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	var (
		recv *net.UDPConn
		err  error
	)

	if s.group.IP.IsMulticast() {
		recv, err = net.ListenMulticastUDP("udp", nil, s.group)
	} else {
		recv, err = net.ListenUDP("udp", &net.UDPAddr{IP: s.group.IP, Port: s.group.Port})
	}

	if err != nil {
		return ewrap.Wrapf(err, "listen discovery %s", s.group.String())
	}

	send, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		_ = recv.Close()

		return ewrap.Wrap(err, "open discovery sender")
	}

	s.recv, s.send = recv, send

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(2)

	go s.receiveLoop(loopCtx)
	go s.announceLoop(loopCtx)

	s.logger.Info("discovery started",
		zap.String("group", s.group.String()), zap.String("service", s.local.Endpoint().String()))

	s.broadcast(PacketRequest)
	s.broadcast(PacketPassive)

	return nil
}

// Shutdown retracts the local service and stops the loops.
func (s *UDPService) Shutdown(context.Context) error {
	s.mu.Lock()

	if s.cancel == nil {
		s.mu.Unlock()

		return nil
	}

	s.mu.Unlock()

	s.broadcast(PacketRemove)

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	recvErr := s.recv.Close()
	sendErr := s.send.Close()
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	return multierr.Combine(recvErr, sendErr)
}

// Services returns the known remote services.
func (s *UDPService) Services() []Service {
	out := make([]Service, 0, s.members.Len())

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.members.List() {
		if svc, ok := s.services[p.Endpoint.String()]; ok {
			svc.LastHeard = p.LastSeen
			out = append(out, svc)
		}
	}

	return out
}

// Version returns the epoch of the known services table.
func (s *UDPService) Version() uint64 { return s.members.Version() }

func (s *UDPService) localService() Service {
	svc := s.local

	if s.regions != nil {
		svc.Regions = s.regions()
	}

	return svc
}

func (s *UDPService) broadcast(t PacketType) {
	data, err := msgpack.Marshal(&packet{Type: t, Origin: s.id, Service: s.localService()})
	if err != nil {
		s.logger.Error("encode discovery packet", zap.Error(err))

		return
	}

	s.mu.Lock()
	send := s.send
	s.mu.Unlock()

	if send == nil {
		return
	}

	_, err = send.WriteToUDP(data, s.group)
	if err != nil {
		s.logger.Debug("send discovery packet", zap.Error(err))
	}
}

func (s *UDPService) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	buf := make([]byte, maxPacketSize)

	for {
		n, from, err := s.recv.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}

			s.logger.Warn("read discovery packet", zap.Error(err))

			continue
		}

		var p packet

		err = msgpack.Unmarshal(buf[:n], &p)
		if err != nil {
			s.logger.Debug("ignoring malformed discovery packet", zap.Stringer("from", from), zap.Error(err))

			continue
		}

		s.handlePacket(ctx, &p)
	}
}

func (s *UDPService) announceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.broadcast(PacketPassive)
			s.cleanup(ctx, now)
		}
	}
}

func (s *UDPService) handlePacket(ctx context.Context, p *packet) {
	if p.Origin == s.id {
		return
	}

	switch p.Type {
	case PacketRequest:
		s.broadcast(PacketPassive)
	case PacketPassive:
		s.upsert(ctx, p.Service)
	case PacketRemove:
		s.remove(ctx, p.Service)
	default:
		s.logger.Debug("unknown discovery packet type", zap.Int("type", int(p.Type)))
	}
}

func (s *UDPService) upsert(ctx context.Context, svc Service) {
	ep := svc.Endpoint()
	if ep.Port <= 0 {
		return
	}

	s.members.Upsert(ep)

	s.mu.Lock()
	prev, known := s.services[ep.String()]
	changed := !known || !slices.Equal(prev.Regions, svc.Regions) || prev.Transport != svc.Transport
	s.services[ep.String()] = svc
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.Info("discovered lateral service",
		zap.String("endpoint", ep.String()), zap.Strings("regions", svc.Regions))
	s.listener.PeerAppeared(ctx, svc)
}

func (s *UDPService) remove(ctx context.Context, svc Service) {
	ep := svc.Endpoint()

	s.members.Remove(ep)

	s.mu.Lock()
	known, ok := s.services[ep.String()]
	delete(s.services, ep.String())
	s.mu.Unlock()

	if !ok {
		known = svc
	}

	s.logger.Info("lateral service removed", zap.String("endpoint", ep.String()))
	s.listener.PeerGone(ctx, known)
}

// cleanup reports as gone every service silent for longer than maxIdle.
func (s *UDPService) cleanup(ctx context.Context, now time.Time) {
	for _, p := range s.members.PruneIdle(now, s.maxIdle) {
		key := p.Endpoint.String()

		s.mu.Lock()
		svc, ok := s.services[key]
		delete(s.services, key)
		s.mu.Unlock()

		if !ok {
			continue
		}

		s.logger.Info("lateral service idle, removing",
			zap.String("endpoint", key), zap.String("idle", now.Sub(p.LastSeen).String()))
		s.listener.PeerGone(ctx, svc)
	}
}
