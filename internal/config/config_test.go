package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lateral.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)

	assert.Equal(t, constants.DefaultListenPort, cfg.Lateral.ListenPort)
	assert.Equal(t, constants.InMemoryStore, cfg.Store.Type)
	assert.Equal(t, constants.DefaultSerializer, cfg.Serializer)
	assert.True(t, cfg.Lateral.AllowGet)
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := writeConfig(t, `
lateral:
  peerEndpoints: "10.0.0.1:1110,10.0.0.2:1110"
  listenPort: 1200
  socketTimeout: 3s
  allowGet: false
regions: [users, sessions]
store:
  type: redis
  redis:
    addr: "127.0.0.1:6379"
management:
  address: "127.0.0.1:8081"
`)

	cfg, err := Load(path)
	assert.NoError(t, err)

	assert.Equal(t, 1200, cfg.Lateral.ListenPort)
	assert.Equal(t, 3*time.Second, cfg.Lateral.SocketTimeout)
	// untouched attributes keep their defaults
	assert.Equal(t, constants.DefaultConnectTimeout, cfg.Lateral.ConnectTimeout)
	assert.True(t, cfg.Lateral.AllowPut)
	assert.False(t, cfg.Lateral.AllowGet)
	assert.Equal(t, []string{"users", "sessions"}, cfg.Regions)
	assert.Equal(t, constants.RedisStore, cfg.Store.Type)
	assert.Equal(t, constants.RedisKeyPrefix, cfg.Store.Redis.KeyPrefix)
	assert.Equal(t, "127.0.0.1:8081", cfg.Management.Address)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "lateral:\n  listenPort: 1200\n")

	t.Setenv("LATERAL_LISTEN_PORT", "1300")
	t.Setenv("LATERAL_SOCKET_TIMEOUT_MS", "250")
	t.Setenv("LATERAL_ISSUE_REMOVE_ON_PUT", "true")
	t.Setenv("LATERAL_REGIONS", "a, b,,c")

	cfg, err := Load(path)
	assert.NoError(t, err)

	assert.Equal(t, 1300, cfg.Lateral.ListenPort)
	assert.Equal(t, 250*time.Millisecond, cfg.Lateral.SocketTimeout)
	assert.True(t, cfg.Lateral.IssueRemoveOnPut)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Regions)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "lateral: ["))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store:\n  type: redis\n"))
	assert.True(t, errors.Is(err, sentinel.ErrParamCannotBeEmpty))

	_, err = Load(writeConfig(t, "store:\n  type: redis-cluster\n"))
	assert.True(t, errors.Is(err, sentinel.ErrParamCannotBeEmpty))

	_, err = Load(writeConfig(t, "store:\n  type: disk\n"))
	assert.True(t, errors.Is(err, sentinel.ErrInvalidConfig))

	_, err = Load(writeConfig(t, "lateral:\n  peerEndpoints: \"nohost\"\n"))
	assert.True(t, errors.Is(err, sentinel.ErrInvalidEndpoint))

	t.Setenv("LATERAL_LISTEN_PORT", "eleven")

	_, err = Load("")
	assert.Error(t, err)
}

func TestConfig_Logger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "debug"

	logger, err := cfg.Logger()
	assert.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Log.Level = "loud"
	_, err = cfg.Logger()
	assert.True(t, errors.Is(err, sentinel.ErrInvalidConfig))
}
