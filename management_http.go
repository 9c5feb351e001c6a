package lateralcache

import (
	"context"
	"net"
	"time"

	"github.com/goccy/go-json"
	fiber "github.com/gofiber/fiber/v3"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/lateral"
)

// ManagementHTTPOption configures the management HTTP server.
type ManagementHTTPOption func(*ManagementHTTPServer)

// ManagementHTTPServer holds Fiber app and settings.
type ManagementHTTPServer struct {
	addr         string
	app          *fiber.App
	readTimeout  time.Duration
	writeTimeout time.Duration
	authFunc     func(fiber.Ctx) error
	ln           net.Listener
	started      bool
}

// WithMgmtAuth sets an auth function (return error to block).
func WithMgmtAuth(fn func(fiber.Ctx) error) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.authFunc = fn }
}

// WithMgmtReadTimeout sets read timeout.
func WithMgmtReadTimeout(d time.Duration) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.readTimeout = d }
}

// WithMgmtWriteTimeout sets write timeout.
func WithMgmtWriteTimeout(d time.Duration) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.writeTimeout = d }
}

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// managementCache is what the handlers need from the cache.
type managementCache interface {
	GetStats() Stats
	Peers() PeersSnapshot
	Config() lateral.Config
	Regions() []string
	RepairPeers(ctx context.Context) int
	lookupRegion(name string) (*Region, bool)
}

// NewManagementHTTPServer builds an HTTP server holder (lazy start).
func NewManagementHTTPServer(addr string, opts ...ManagementHTTPOption) *ManagementHTTPServer {
	srv := &ManagementHTTPServer{
		addr:         addr,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.app = fiber.New(fiber.Config{
		ReadTimeout:  srv.readTimeout,
		WriteTimeout: srv.writeTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return srv
}

// Start launches listener (idempotent).
func (s *ManagementHTTPServer) Start(ctx context.Context, mc managementCache) error {
	if s.started {
		return nil
	}

	s.mountRoutes(ctx, mc)

	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return ewrap.Wrap(err, "mgmt listen")
	}

	s.ln = ln

	go func() {
		// serve errors after Shutdown are expected
		_ = s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	s.started = true

	return nil
}

// Address returns the bound address (useful when passing ":0" for ephemeral port). Empty if not started yet.
func (s *ManagementHTTPServer) Address() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *ManagementHTTPServer) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}

	ch := make(chan error, 1)

	go func() {
		ch <- s.app.Shutdown()
	}()

	select {
	case <-ctx.Done():
		return sentinel.ErrMgmtHTTPShutdownTimeout
	case err := <-ch:
		s.started = false

		return err
	}
}

func (s *ManagementHTTPServer) mountRoutes(ctx context.Context, mc managementCache) {
	useAuth := s.wrapAuth
	s.registerBasic(useAuth, mc)
	s.registerRegions(useAuth, mc)
	s.registerControl(ctx, useAuth, mc)
}

// wrapAuth returns an auth-wrapped handler if authFunc provided.
func (s *ManagementHTTPServer) wrapAuth(handler fiber.Handler) fiber.Handler { //nolint:ireturn
	if s.authFunc == nil {
		return handler
	}

	return func(fiberCtx fiber.Ctx) error {
		authErr := s.authFunc(fiberCtx)
		if authErr != nil {
			return authErr
		}

		return handler(fiberCtx)
	}
}

func (s *ManagementHTTPServer) registerBasic(useAuth func(fiber.Handler) fiber.Handler, mc managementCache) {
	s.app.Get("/health", useAuth(func(fiberCtx fiber.Ctx) error { return fiberCtx.SendString("ok") }))
	s.app.Get("/stats", useAuth(func(fiberCtx fiber.Ctx) error { return fiberCtx.JSON(mc.GetStats()) }))
	s.app.Get("/config", useAuth(func(fiberCtx fiber.Ctx) error {
		cfg := mc.Config()

		return fiberCtx.JSON(fiber.Map{
			"peerEndpoints":          cfg.PeerEndpoints,
			"listenPort":             cfg.ListenPort,
			"connectTimeout":         cfg.ConnectTimeout.String(),
			"socketTimeout":          cfg.SocketTimeout.String(),
			"allowGet":               cfg.AllowGet,
			"allowPut":               cfg.AllowPut,
			"issueRemoveOnPut":       cfg.IssueRemoveOnPut,
			"filterRemoveByHashCode": cfg.FilterRemoveByHashCode,
			"discoveryEnabled":       cfg.DiscoveryEnabled,
			"zombieQueueMaxSize":     cfg.ZombieQueueMaxSize,
			"recoveryInterval":       cfg.RecoveryInterval.String(),
			"transport":              cfg.Transport,
		})
	}))
	s.app.Get("/peers", useAuth(func(fiberCtx fiber.Ctx) error { return fiberCtx.JSON(mc.Peers()) }))
}

func (s *ManagementHTTPServer) registerRegions(useAuth func(fiber.Handler) fiber.Handler, mc managementCache) {
	s.app.Get("/regions", useAuth(func(fiberCtx fiber.Ctx) error {
		return fiberCtx.JSON(fiber.Map{"regions": mc.Regions()})
	}))
	s.app.Get("/regions/:region/keys", useAuth(func(fiberCtx fiber.Ctx) error {
		name := fiberCtx.Params("region")

		region, ok := mc.lookupRegion(name)
		if !ok {
			return fiberCtx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown region"})
		}

		local, err := region.Keys(fiberCtx.Context())
		if err != nil {
			return fiberCtx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		body := fiber.Map{"region": name, "local": local}
		if fiberCtx.Query("remote") == "true" {
			body["remote"] = region.RemoteKeys(fiberCtx.Context())
		}

		return fiberCtx.JSON(body)
	}))
}

func (s *ManagementHTTPServer) registerControl(
	ctx context.Context,
	useAuth func(fiber.Handler) fiber.Handler,
	mc managementCache,
) {
	s.app.Post("/repair", useAuth(func(fiberCtx fiber.Ctx) error {
		return fiberCtx.JSON(fiber.Map{"repaired": mc.RepairPeers(ctx)})
	}))
	s.app.Post("/regions/:region/clear", useAuth(func(fiberCtx fiber.Ctx) error {
		region, ok := mc.lookupRegion(fiberCtx.Params("region"))
		if !ok {
			return fiberCtx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown region"})
		}

		clearErr := region.RemoveAll(ctx)
		if clearErr != nil {
			return clearErr
		}

		return fiberCtx.SendStatus(fiber.StatusOK)
	}))
}
