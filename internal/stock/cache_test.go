package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	key := VariantKey{ProductID: 9, WithSymbol: true}

	_, ok := cache.Get(ctx, key)
	require.False(t, ok)

	row := Row{ProductID: 9, WithSymbol: true, PieceQty: 3, WeightQty: 1.5, LastAppliedAt: time.Now().UTC().Truncate(time.Second)}
	cache.Set(ctx, key, row)

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, row.PieceQty, got.PieceQty)
	require.Equal(t, row.WeightQty, got.WeightQty)

	require.NoError(t, cache.Invalidate(ctx, key))
	_, ok = cache.Get(ctx, key)
	require.False(t, ok)
}

func TestCacheInvalidatedByApply(t *testing.T) {
	cache := newTestCache(t)
	repo := newMemoryRepo()
	svc := NewService(repo, cache, nil)
	ctx := context.Background()
	key := VariantKey{ProductID: 5}

	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{Piece: 2}))
	row, err := svc.GetRow(ctx, key)
	require.NoError(t, err)
	require.InDelta(t, 2, row.PieceQty, 0.0001)

	// A later write must not serve the cached snapshot.
	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{Piece: 3}))
	row, err = svc.GetRow(ctx, key)
	require.NoError(t, err)
	require.InDelta(t, 5, row.PieceQty, 0.0001)
}
