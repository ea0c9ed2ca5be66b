package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/content-ops/config"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	return New(rdb, 5*time.Second), mr
}

type payload struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	var miss payload
	require.False(t, c.GetJSON(ctx, "stats", &miss))

	c.SetJSON(ctx, "stats", &payload{Name: "wechat", Count: 7})

	var hit payload
	require.True(t, c.GetJSON(ctx, "stats", &hit))
	require.Equal(t, "wechat", hit.Name)
	require.Equal(t, int64(7), hit.Count)
}

func TestCacheTTLExpiry(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	c.SetJSON(ctx, "stats", &payload{Count: 1})
	mr.FastForward(6 * time.Second)

	var out payload
	require.False(t, c.GetJSON(ctx, "stats", &out))
}

func TestCacheDelete(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	c.SetJSON(ctx, "a", &payload{Count: 1})
	c.SetJSON(ctx, "b", &payload{Count: 2})
	c.Delete(ctx, "a", "b")

	var out payload
	require.False(t, c.GetJSON(ctx, "a", &out))
	require.False(t, c.GetJSON(ctx, "b", &out))
}

func TestCacheCorruptValueIsMiss(t *testing.T) {
	c, mr := setupCache(t)
	require.NoError(t, mr.Set("stats", "not-json{"))

	var out payload
	require.False(t, c.GetJSON(context.Background(), "stats", &out))
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
