package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewStore(NewRedisClient(mr.Addr(), "", 0), time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.Get(ctx, "https://example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "https://example.com", models.Result{URL: "https://example.com", Title: "Example", Markdown: "# hi"}))
	got, ok, err := store.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "# hi", got.Markdown)
	assert.True(t, got.Cached)

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "https://example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewStore(NewRedisClient(mr.Addr(), "", 0), time.Minute)
	require.NoError(t, mr.Set(key("https://bad"), "not-json"))
	_, _, err := store.Get(context.Background(), "https://bad")
	assert.Error(t, err)
}
