// Package config loads the daemon configuration: YAML file values over defaults, then
// LATERAL_* environment overrides, then validation.
package config

import (
	"time"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
	"github.com/hyp3rd/lateralcache/pkg/lateral"
)

// Config is the daemon configuration.
type Config struct {
	Lateral         lateral.Config   `yaml:"lateral"`
	Regions         []string         `yaml:"regions"`
	Serializer      string           `yaml:"serializer"`
	Store           StoreConfig      `yaml:"store"`
	Management      ManagementConfig `yaml:"management"`
	Log             LogConfig        `yaml:"log"`
	ShutdownTimeout time.Duration    `yaml:"shutdownTimeout"`
}

// StoreConfig selects the local store.
type StoreConfig struct {
	// Type is "in-memory", "redis" or "redis-cluster".
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis local store. Addrs seeds the cluster client of the
// redis-cluster store; Addr is the single node address of the redis store.
type RedisConfig struct {
	Addr      string   `yaml:"addr"`
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"keyPrefix"`
}

// ManagementConfig configures the management HTTP server. An empty Address disables it.
type ManagementConfig struct {
	Address   string `yaml:"address"`
	AuthToken string `yaml:"authToken"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		Lateral:    lateral.DefaultConfig(),
		Serializer: constants.DefaultSerializer,
		Store: StoreConfig{
			Type:  constants.InMemoryStore,
			Redis: RedisConfig{KeyPrefix: constants.RedisKeyPrefix},
		},
		Log:             LogConfig{Level: "info"},
		ShutdownTimeout: constants.DefaultShutdownTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := c.Lateral.Validate()
	if err != nil {
		return err
	}

	switch c.Store.Type {
	case constants.InMemoryStore:
	case constants.RedisStore:
		if c.Store.Redis.Addr == "" {
			return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "store.redis.addr")
		}
	case constants.RedisClusterStore:
		if len(c.Store.Redis.Addrs) == 0 {
			return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "store.redis.addrs")
		}
	default:
		return ewrap.Wrapf(sentinel.ErrInvalidConfig, "unknown store type %q", c.Store.Type)
	}

	if c.Serializer == "" {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "serializer")
	}

	if c.ShutdownTimeout <= 0 {
		return ewrap.Wrap(sentinel.ErrInvalidConfig, "shutdownTimeout must be positive")
	}

	_, err = zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return ewrap.Wrapf(sentinel.ErrInvalidConfig, "log level %q", c.Log.Level)
	}

	return nil
}

// Logger builds the zap logger described by Log.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, ewrap.Wrapf(sentinel.ErrInvalidConfig, "log level %q", c.Log.Level)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, ewrap.Wrap(err, "build logger")
	}

	return logger, nil
}
