// Command lateralcache runs a cache node replicating its regions to lateral peers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	fiber "github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hyp3rd/lateralcache"
	"github.com/hyp3rd/lateralcache/internal/config"
	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/pkg/lateral"
	"github.com/hyp3rd/lateralcache/pkg/middleware"
	"github.com/hyp3rd/lateralcache/pkg/store"
	"github.com/hyp3rd/lateralcache/pkg/store/redis"
	"github.com/hyp3rd/lateralcache/pkg/store/rediscluster"
	"github.com/hyp3rd/lateralcache/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	defer func() { _ = logger.Sync() }()

	err = run(cfg, logger)
	if err != nil {
		logger.Error("lateralcache stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := newStore(cfg)
	if err != nil {
		return err
	}

	meter := otel.Meter("github.com/hyp3rd/lateralcache")
	tracer := otel.Tracer("github.com/hyp3rd/lateralcache")

	// apply middleware in the same order as you want to execute them
	registryOpts := []lateral.RegistryOption{
		lateral.WithMeter(meter),
		lateral.WithServiceMiddleware(
			func(next transport.Service) transport.Service {
				return middleware.NewLoggingMiddleware(next, logger.Named("peer"))
			},
			func(next transport.Service) transport.Service {
				return middleware.NewOTelTracingMiddleware(next, tracer)
			},
			func(next transport.Service) transport.Service {
				svc, mwErr := middleware.NewOTelMetricsMiddleware(next, meter)
				if mwErr != nil {
					logger.Warn("metrics middleware disabled", zap.Error(mwErr))

					return next
				}

				return svc
			},
		),
	}

	opts := []lateralcache.Option{
		lateralcache.WithLogger(logger),
		lateralcache.WithSerializer(cfg.Serializer),
		lateralcache.WithRegions(cfg.Regions...),
		lateralcache.WithRegistryOptions(registryOpts...),
	}

	if cfg.Management.Address != "" {
		opts = append(opts, lateralcache.WithManagementHTTP(cfg.Management.Address, managementOptions(cfg)...))
	}

	cache, err := lateralcache.New(ctx, st, cfg.Lateral, opts...)
	if err != nil {
		return err
	}

	logger.Info("lateralcache started",
		zap.Int("listenPort", cache.ListenPort()),
		zap.Strings("regions", cache.Regions()),
		zap.String("peers", cfg.Lateral.PeerEndpoints),
		zap.String("management", cache.ManagementHTTPAddress()),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("lateralcache stopping")

	return cache.Stop(shutdownCtx)
}

func newStore(cfg config.Config) (store.Store, error) { //nolint:ireturn
	switch cfg.Store.Type {
	case constants.RedisStore:
	case constants.RedisClusterStore:
		rdb, err := rediscluster.New(
			rediscluster.WithAddrs(cfg.Store.Redis.Addrs...),
			rediscluster.WithCredentials(cfg.Store.Redis.Username, cfg.Store.Redis.Password),
		)
		if err != nil {
			return nil, err
		}

		return store.NewRedis(rdb, store.WithKeyPrefix(cfg.Store.Redis.KeyPrefix))
	default:
		return store.NewInMemory(), nil
	}

	rdb, err := redis.New(
		redis.WithAddr(cfg.Store.Redis.Addr),
		redis.WithCredentials(cfg.Store.Redis.Username, cfg.Store.Redis.Password),
		redis.WithDB(cfg.Store.Redis.DB),
	)
	if err != nil {
		return nil, err
	}

	return store.NewRedis(rdb, store.WithKeyPrefix(cfg.Store.Redis.KeyPrefix))
}

func managementOptions(cfg config.Config) []lateralcache.ManagementHTTPOption {
	if cfg.Management.AuthToken == "" {
		return nil
	}

	want := "Bearer " + cfg.Management.AuthToken

	return []lateralcache.ManagementHTTPOption{
		lateralcache.WithMgmtAuth(func(fiberCtx fiber.Ctx) error {
			if fiberCtx.Get(fiber.HeaderAuthorization) != want {
				return fiber.ErrUnauthorized
			}

			return nil
		}),
	}
}
