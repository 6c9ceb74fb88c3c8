package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/cratestack/pkg/cache"
)

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := cache.NewRedisCacheFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}), cache.WithPrefix("test:"))
	defer c.Close()
	ctx := context.Background()

	_, hit, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	data, hit, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("v"), data)
	assert.True(t, mr.Exists("test:k"))

	require.NoError(t, c.Delete(ctx, "k"))
	_, hit, _ = c.Get(ctx, "k")
	assert.False(t, hit)
}

func TestRedisCacheTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := cache.NewRedisCacheFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "brief", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)
	_, hit, err := c.Get(ctx, "brief")
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c, err := cache.NewRedisCache(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	assert.True(t, mr.Exists("cratestack:k"))

	_, err = cache.NewRedisCache(context.Background(), "not a url")
	assert.Error(t, err)
}
