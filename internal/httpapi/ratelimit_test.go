package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRedis counts INCRs but fails every EXPIRE, for exercising the
// ttl failure path without a server.
type flakyRedis struct {
	redis.Cmdable
	count   int64
	deleted bool
}

func (f *flakyRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.count++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(f.count)
	return cmd
}

func (f *flakyRedis) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetErr(errors.New("expire failed"))
	return cmd
}

func (f *flakyRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.deleted = true
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestUserLimiter_DropsCounterWhenTTLFails(t *testing.T) {
	rdb := &flakyRedis{}
	l := newUserLimiter(rdb, zerolog.Nop())

	err := l.Allow(context.Background(), "u1", "approve")
	require.NoError(t, err, "a ttl failure must not block the action")
	assert.True(t, rdb.deleted, "a counter that cannot expire must be dropped, not kept forever")
}
