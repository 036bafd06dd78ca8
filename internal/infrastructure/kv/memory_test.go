package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(time.Minute + time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreSetNX(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// An expired key can be claimed again.
	now = now.Add(2 * time.Minute)
	ok, err = store.SetNX(ctx, "lock", "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreExpire(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	ok, err := store.Expire(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(30 * time.Minute)
	_, err = store.Get(ctx, "k")
	assert.NoError(t, err)

	ok, err = store.Expire(ctx, "missing", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}
