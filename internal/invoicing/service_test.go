package invoicing

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbook-app/stockbook/internal/platform/db"
	"github.com/stockbook-app/stockbook/internal/stock"
)

type memoryRepo struct {
	invoices map[int64]Invoice
	sequence int64
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]Invoice)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, q db.Querier) error) error {
	return fn(ctx, nil)
}

func (r *memoryRepo) NextNumber(ctx context.Context, q db.Querier) (int64, error) {
	r.sequence++
	return r.sequence, nil
}

func (r *memoryRepo) Insert(ctx context.Context, q db.Querier, inv Invoice) (int64, error) {
	r.nextID++
	inv.ID = r.nextID
	r.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, q db.Querier, inv Invoice) (int64, error) {
	if _, ok := r.invoices[inv.ID]; !ok {
		return 0, nil
	}
	r.invoices[inv.ID] = inv
	return 1, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (r *memoryRepo) Delete(ctx context.Context, q db.Querier, id int64) error {
	if _, ok := r.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(r.invoices, id)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if filter.Type == "" || inv.Type == filter.Type {
			out = append(out, inv)
		}
	}
	return out, nil
}

type fakeLedger struct {
	rows    map[stock.VariantKey]stock.Delta
	applies int
	fail    bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[stock.VariantKey]stock.Delta)}
}

var errLedgerDown = errors.New("ledger down")

func (l *fakeLedger) ApplyDelta(ctx context.Context, key stock.VariantKey, delta stock.Delta) error {
	if l.fail {
		return errLedgerDown
	}
	l.rows[key] = l.rows[key].Add(delta)
	l.applies++
	return nil
}

type fakeRetry struct {
	enqueued []stock.VariantKey
}

func (r *fakeRetry) EnqueueLedgerRetry(ctx context.Context, key stock.VariantKey, delta stock.Delta, reason string) error {
	r.enqueued = append(r.enqueued, key)
	return nil
}

func newTestService(repo *memoryRepo, ledger *fakeLedger, retry RetryEnqueuer) *Service {
	return NewService(repo, ledger, nil, retry, nil, slog.New(slog.DiscardHandler))
}

func saleInput(productID int64, pieces float64) CreateInput {
	return CreateInput{
		Type: TypeSale,
		Items: []Item{{
			ProductID:       productID,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    pieces,
			RateWithout:     5,
		}},
	}
}

func TestCreateAssignsSequentialNumbersAndAppliesEffect(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, ledger, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, saleInput(1, 10))
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Number)
	require.Equal(t, stock.Delta{Piece: -10}, ledger.rows[stock.VariantKey{ProductID: 1}])

	second, err := svc.Create(ctx, saleInput(1, 2))
	require.NoError(t, err)
	require.Equal(t, int64(2), second.Number)
	require.Equal(t, stock.Delta{Piece: -12}, ledger.rows[stock.VariantKey{ProductID: 1}])
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeLedger(), nil)

	_, err := svc.Create(context.Background(), CreateInput{Type: "refund"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateAppliesOnlyTheDiff(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, ledger, nil)
	ctx := context.Background()
	key := stock.VariantKey{ProductID: 1}

	inv, err := svc.Create(ctx, saleInput(1, 10))
	require.NoError(t, err)
	require.Equal(t, stock.Delta{Piece: -10}, ledger.rows[key])

	updated, err := svc.Update(ctx, inv.ID, UpdateInput{
		Items: []Item{{
			ProductID:       1,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    6,
			RateWithout:     5,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, inv.Number, updated.Number)

	// -6 - (-10) = +4, so the ledger lands on -6, not -16.
	require.Equal(t, stock.Delta{Piece: -6}, ledger.rows[key])
}

func TestNoOpUpdateMovesNothing(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, ledger, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, saleInput(1, 10))
	require.NoError(t, err)
	applied := ledger.applies

	for i := 0; i < 3; i++ {
		_, err = svc.Update(ctx, inv.ID, UpdateInput{Items: inv.Items})
		require.NoError(t, err)
	}
	require.Equal(t, applied, ledger.applies)
	require.Equal(t, stock.Delta{Piece: -10}, ledger.rows[stock.VariantKey{ProductID: 1}])
}

func TestDeleteReversesEffectExactly(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, ledger, nil)
	ctx := context.Background()
	key := stock.VariantKey{ProductID: 1}

	inv, err := svc.Create(ctx, saleInput(1, 10))
	require.NoError(t, err)
	require.Equal(t, stock.Delta{Piece: -10}, ledger.rows[key])

	require.NoError(t, svc.Delete(ctx, inv.ID))
	require.Equal(t, stock.Delta{}, ledger.rows[key])

	_, err = svc.Get(ctx, inv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingInvoiceFails(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeLedger(), nil)

	err := svc.Delete(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateWithVanishedOldAppliesFullNewEffect(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, ledger, nil)
	ctx := context.Background()

	// Old snapshot gone: the diff degenerates to the full new effect.
	_, err := svc.Update(ctx, 42, UpdateInput{
		Type: TypeSale,
		Items: []Item{{
			ProductID:       1,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    3,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, stock.Delta{Piece: -3}, ledger.rows[stock.VariantKey{ProductID: 1}])
}

func TestLedgerFailureDoesNotRollBackInvoice(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newFakeLedger()
	ledger.fail = true
	retry := &fakeRetry{}
	svc := newTestService(repo, ledger, retry)
	ctx := context.Background()

	inv, err := svc.Create(ctx, saleInput(1, 10))
	require.NoError(t, err)

	// The document stands and the increment went to the retry queue.
	_, err = svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, []stock.VariantKey{{ProductID: 1}}, retry.enqueued)
}

func TestCreateComputesTotals(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeLedger(), nil)

	inv, err := svc.Create(context.Background(), CreateInput{
		Type: TypeSale,
		Items: []Item{{
			ProductID:       1,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    10,
			RateWithout:     5,
			RateTypeWith:    RateTypeWeight,
			WeightWith:      2,
			RateWith:        7.5,
		}},
		XLItems: []XLItem{{
			ProductID: 1,
			RateType:  RateTypePiece,
			Piece:     4,
			Rate:      3,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "50", inv.TotalWithout.String())
	require.Equal(t, "15", inv.TotalWith.String())
	require.Equal(t, "12", inv.XLTotal.String())
	require.Equal(t, "77", inv.GrandTotal.String())
}
