package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*JSON, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewJSON(client, "test", time.Minute), mr
}

func TestFetchCachesLoaderResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "cash"}, nil
	}
	key, err := c.BuildKey(ctx, "account", "CASH")
	require.NoError(t, err)
	require.Equal(t, "test:account:CASH:1", key)

	var got payload
	require.NoError(t, c.Fetch(ctx, key, &got, loader))
	require.NoError(t, c.Fetch(ctx, key, &got, loader))
	require.Equal(t, "cash", got.Name)
	require.Equal(t, 1, calls)
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")
	var got payload
	err := c.Fetch(ctx, "k", &got, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, c.Fetch(ctx, "k", &got, func(context.Context) (any, error) { return payload{Name: "ok"}, nil }))
	require.Equal(t, "ok", got.Name)
}

func TestBumpChangesKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	before, err := c.BuildKey(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.BuildKey(ctx, "a")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilClientPassesThrough(t *testing.T) {
	c := NewJSON(nil, "test", time.Minute)
	var got payload
	require.NoError(t, c.Fetch(context.Background(), "k", &got, func(context.Context) (any, error) {
		return payload{Name: "direct"}, nil
	}))
	require.Equal(t, "direct", got.Name)
	require.NoError(t, c.Bump(context.Background()))
}

func TestFetchFallsBackWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	var got payload
	err := c.Fetch(context.Background(), "k", &got, func(context.Context) (any, error) {
		return payload{Name: "db"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "db", got.Name)
}
