package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/lateralcache/internal/sentinel"
)

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New()
	assert.True(t, errors.Is(err, sentinel.ErrParamCannotBeEmpty))
}

func TestNew_AppliesOptions(t *testing.T) {
	cli, err := New(
		WithAddr("127.0.0.1:6379"),
		WithDB(3),
		WithCredentials("u", "p"),
		WithTimeouts(time.Second, 0, 2*time.Second),
		WithPool(4, 1),
	)
	assert.NoError(t, err)

	defer cli.Close()

	opt := cli.Options()
	assert.Equal(t, "127.0.0.1:6379", opt.Addr)
	assert.Equal(t, 3, opt.DB)
	assert.Equal(t, "u", opt.Username)
	assert.Equal(t, time.Second, opt.DialTimeout)
	assert.Equal(t, 2*time.Second, opt.WriteTimeout)
	assert.Equal(t, 4, opt.PoolSize)
	assert.Equal(t, 1, opt.MinIdleConns)
}
