package rediscluster

import (
	"errors"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/lateralcache/internal/constants"
	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

func TestNew_RequiresAddrs(t *testing.T) {
	_, err := New()
	assert.True(t, errors.Is(err, sentinel.ErrParamCannotBeEmpty))
}

func TestApplyOptions(t *testing.T) {
	opt := &redis.ClusterOptions{ReadTimeout: constants.RedisClientReadTimeout}

	ApplyOptions(opt,
		WithAddrs("10.0.0.1:7000", "10.0.0.2:7000"),
		WithCredentials("u", "p"),
		WithTimeouts(0, time.Second),
	)

	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, opt.Addrs)
	assert.Equal(t, "u", opt.Username)
	assert.Equal(t, "p", opt.Password)
	assert.Equal(t, constants.RedisClientReadTimeout, opt.ReadTimeout)
	assert.Equal(t, time.Second, opt.WriteTimeout)
}

func TestNew_BuildsClient(t *testing.T) {
	client, err := New(WithAddrs("127.0.0.1:7000"))
	assert.NoError(t, err)
	assert.NotNil(t, client)

	_ = client.Close()
}
