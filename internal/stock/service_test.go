package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbook-app/stockbook/internal/platform/db"
)

type memoryRepo struct {
	rows    map[VariantKey]Row
	applies int
	failOn  *VariantKey
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[VariantKey]Row)}
}

var errBoom = errors.New("boom")

func (r *memoryRepo) ApplyDelta(ctx context.Context, key VariantKey, delta Delta) error {
	if r.failOn != nil && *r.failOn == key {
		return errBoom
	}
	row, ok := r.rows[key]
	if !ok {
		row = Row{ProductID: key.ProductID, WithSymbol: key.WithSymbol}
	}
	row.PieceQty += delta.Piece
	row.WeightQty += delta.Weight
	row.LastAppliedAt = time.Now()
	r.rows[key] = row
	r.applies++
	return nil
}

func (r *memoryRepo) ApplyDeltaIn(ctx context.Context, q db.Querier, key VariantKey, delta Delta) error {
	return r.ApplyDelta(ctx, key, delta)
}

func (r *memoryRepo) GetRow(ctx context.Context, key VariantKey) (Row, error) {
	if row, ok := r.rows[key]; ok {
		return row, nil
	}
	return Row{}, ErrRowNotFound
}

func (r *memoryRepo) ListRows(ctx context.Context, productID int64) ([]Row, error) {
	var out []Row
	for _, row := range r.rows {
		if productID == 0 || row.ProductID == productID {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestApplyDeltaUpsertsAndIncrements(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	key := VariantKey{ProductID: 7}

	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{Piece: 10}))
	row, err := svc.GetRow(ctx, key)
	require.NoError(t, err)
	require.InDelta(t, 10, row.PieceQty, 0.0001)

	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{Piece: -4, Weight: 2.5}))
	row, err = svc.GetRow(ctx, key)
	require.NoError(t, err)
	require.InDelta(t, 6, row.PieceQty, 0.0001)
	require.InDelta(t, 2.5, row.WeightQty, 0.0001)
}

func TestApplyDeltaSkipsZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	require.NoError(t, svc.ApplyDelta(context.Background(), VariantKey{ProductID: 1}, Delta{}))
	require.Zero(t, repo.applies)
}

func TestNegativeQuantitiesAllowed(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	key := VariantKey{ProductID: 3, WithSymbol: true}

	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{Piece: -15}))
	row, err := svc.GetRow(ctx, key)
	require.NoError(t, err)
	require.InDelta(t, -15, row.PieceQty, 0.0001)
}

func TestGetRowMissingReadsAsZero(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	row, err := svc.GetRow(context.Background(), VariantKey{ProductID: 42})
	require.NoError(t, err)
	require.Equal(t, int64(42), row.ProductID)
	require.Zero(t, row.PieceQty)
	require.Zero(t, row.WeightQty)
}

func TestApplyDeltasIndependentPerKey(t *testing.T) {
	repo := newMemoryRepo()
	bad := VariantKey{ProductID: 2}
	repo.failOn = &bad
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	deltas := map[VariantKey]Delta{
		{ProductID: 1}: {Piece: 5},
		bad:            {Piece: 3},
	}
	err := svc.ApplyDeltas(ctx, deltas)
	require.Error(t, err)
	require.ErrorIs(t, err, errBoom)

	// The failing key must not block the other increment.
	row, err := svc.GetRow(ctx, VariantKey{ProductID: 1})
	require.NoError(t, err)
	require.InDelta(t, 5, row.PieceQty, 0.0001)
}

func TestDeltaArithmetic(t *testing.T) {
	d := Delta{Piece: -10}
	require.Equal(t, Delta{Piece: 10}, d.Negate())
	require.Equal(t, Delta{Piece: 4}, Delta{Piece: -6}.Sub(d))
	require.True(t, Delta{}.IsZero())
	require.False(t, Delta{Weight: 0.1}.IsZero())
}
