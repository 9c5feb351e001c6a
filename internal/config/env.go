package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
)

const envPrefix = "LATERAL_"

type envSetter func(cfg *Config, value string) error

func setString(field func(*Config) *string) envSetter {
	return func(cfg *Config, value string) error {
		*field(cfg) = value

		return nil
	}
}

func setInt(field func(*Config) *int) envSetter {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}

		*field(cfg) = n

		return nil
	}
}

func setBool(field func(*Config) *bool) envSetter {
	return func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		*field(cfg) = b

		return nil
	}
}

// setMillis reads a whole number of milliseconds, the unit of the *_MS variables.
func setMillis(field func(*Config) *time.Duration) envSetter {
	return func(cfg *Config, value string) error {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}

		*field(cfg) = time.Duration(ms) * time.Millisecond

		return nil
	}
}

func setList(field func(*Config) *[]string) envSetter {
	return func(cfg *Config, value string) error {
		var out []string

		for part := range strings.SplitSeq(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}

		*field(cfg) = out

		return nil
	}
}

var envSetters = map[string]envSetter{
	"PEER_ENDPOINTS":            setString(func(c *Config) *string { return &c.Lateral.PeerEndpoints }),
	"LISTEN_ADDRESS":            setString(func(c *Config) *string { return &c.Lateral.ListenAddress }),
	"LISTEN_PORT":               setInt(func(c *Config) *int { return &c.Lateral.ListenPort }),
	"CONNECT_TIMEOUT_MS":        setMillis(func(c *Config) *time.Duration { return &c.Lateral.ConnectTimeout }),
	"SOCKET_TIMEOUT_MS":         setMillis(func(c *Config) *time.Duration { return &c.Lateral.SocketTimeout }),
	"ALLOW_GET":                 setBool(func(c *Config) *bool { return &c.Lateral.AllowGet }),
	"ALLOW_PUT":                 setBool(func(c *Config) *bool { return &c.Lateral.AllowPut }),
	"ISSUE_REMOVE_ON_PUT":       setBool(func(c *Config) *bool { return &c.Lateral.IssueRemoveOnPut }),
	"FILTER_REMOVE_BY_HASHCODE": setBool(func(c *Config) *bool { return &c.Lateral.FilterRemoveByHashCode }),
	"RECEIVE":                   setBool(func(c *Config) *bool { return &c.Lateral.Receive }),
	"DISCOVERY_ENABLED":         setBool(func(c *Config) *bool { return &c.Lateral.DiscoveryEnabled }),
	"DISCOVERY_ADDRESS":         setString(func(c *Config) *string { return &c.Lateral.DiscoveryAddress }),
	"DISCOVERY_PORT":            setInt(func(c *Config) *int { return &c.Lateral.DiscoveryPort }),
	"ZOMBIE_QUEUE_MAX_SIZE":     setInt(func(c *Config) *int { return &c.Lateral.ZombieQueueMaxSize }),
	"RECOVERY_INTERVAL_MS":      setMillis(func(c *Config) *time.Duration { return &c.Lateral.RecoveryInterval }),
	"MAX_CONNECTIONS":           setInt(func(c *Config) *int { return &c.Lateral.MaxConnections }),
	"REGIONS":                   setList(func(c *Config) *[]string { return &c.Regions }),
	"SERIALIZER":                setString(func(c *Config) *string { return &c.Serializer }),
	"STORE":                     setString(func(c *Config) *string { return &c.Store.Type }),
	"REDIS_ADDR":                setString(func(c *Config) *string { return &c.Store.Redis.Addr }),
	"REDIS_ADDRS":               setList(func(c *Config) *[]string { return &c.Store.Redis.Addrs }),
	"REDIS_USERNAME":            setString(func(c *Config) *string { return &c.Store.Redis.Username }),
	"REDIS_PASSWORD":            setString(func(c *Config) *string { return &c.Store.Redis.Password }),
	"REDIS_DB":                  setInt(func(c *Config) *int { return &c.Store.Redis.DB }),
	"MGMT_ADDRESS":              setString(func(c *Config) *string { return &c.Management.Address }),
	"MGMT_AUTH_TOKEN":           setString(func(c *Config) *string { return &c.Management.AuthToken }),
	"LOG_LEVEL":                 setString(func(c *Config) *string { return &c.Log.Level }),
	"SHUTDOWN_TIMEOUT_MS":       setMillis(func(c *Config) *time.Duration { return &c.ShutdownTimeout }),
}

// ApplyEnvOverrides applies the LATERAL_* environment variables to cfg.
// Unknown LATERAL_* variables are ignored.
func ApplyEnvOverrides(cfg *Config) error {
	for name, set := range envSetters {
		value, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}

		err := set(cfg, value)
		if err != nil {
			return ewrap.Wrapf(err, "env %s%s", envPrefix, name)
		}
	}

	return nil
}
