package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/personnel-engine/personnel"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	cache := NewFromClient(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { cache.Close() })
	return cache, srv
}

func TestCache_SetGet(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte(`{"a":1}`), time.Hour))

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))
	assert.Equal(t, time.Hour, srv.TTL("k"))
}

func TestCache_MissingKey(t *testing.T) {
	cache, _ := newTestCache(t)

	got, ok, err := cache.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCache_Expiry(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))

	srv.FastForward(time.Minute)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ServerDown(t *testing.T) {
	cache, srv := newTestCache(t)
	srv.Close()

	assert.Error(t, cache.Ping(context.Background()))
	_, _, err := cache.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not a url")
	assert.Error(t, err)
}

func TestWarningFeed_OverRedis(t *testing.T) {
	// GIVEN: A warning feed backed by Redis
	// WHEN: Publishing and reading back
	// THEN: The list round-trips and the key carries the feed TTL

	cache, srv := newTestCache(t)
	ctx := context.Background()
	feed := personnel.NewWarningFeed(cache, "feed:test", 2*time.Hour)

	warnings := []personnel.Warning{{
		Identifier: "01JH8Q2V7CK3M4N5T6V4B1C9D0", Label: "INT-T6V4-B1C9-D0",
		Name: "Mary", EndDate: "2025-07-04", DaysRemaining: 3,
	}}
	require.NoError(t, feed.Publish(ctx, warnings))

	got, err := feed.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, warnings, got)
	assert.Equal(t, 2*time.Hour, srv.TTL("feed:test"))
}
