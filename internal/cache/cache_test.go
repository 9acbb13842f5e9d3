package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "doussel:"), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "property:1", `{"id":"1"}`, time.Minute))
	assert.True(t, mr.Exists("doussel:property:1"))

	val, err := c.Get(ctx, "property:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, val)

	require.NoError(t, c.Delete(ctx, "property:1"))
	_, err = c.Get(ctx, "property:1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNoopCache(t *testing.T) {
	var c CacheInterface = NoopCache{}
	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
}
