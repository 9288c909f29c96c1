package receiving

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbook-app/stockbook/internal/invoicing"
	"github.com/stockbook-app/stockbook/internal/platform/db"
	"github.com/stockbook-app/stockbook/internal/stock"
)

type passthroughRunner struct{}

func (passthroughRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, q db.Querier) error) error {
	return fn(ctx, nil)
}

func (passthroughRunner) Transactional() bool { return false }

type memoryItemRepo struct {
	items  map[int64]PurchaseItem
	nextID int64
}

func newMemoryItemRepo() *memoryItemRepo {
	return &memoryItemRepo{items: make(map[int64]PurchaseItem)}
}

func (r *memoryItemRepo) put(item PurchaseItem) PurchaseItem {
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item
}

func (r *memoryItemRepo) CreateBatch(ctx context.Context, q db.Querier, items []PurchaseItem) error {
	for _, item := range items {
		r.put(item)
	}
	return nil
}

func (r *memoryItemRepo) Get(ctx context.Context, id int64) (PurchaseItem, error) {
	item, ok := r.items[id]
	if !ok {
		return PurchaseItem{}, ErrNotFound
	}
	return item, nil
}

func (r *memoryItemRepo) GetForUpdate(ctx context.Context, q db.Querier, id int64) (PurchaseItem, error) {
	return r.Get(ctx, id)
}

func (r *memoryItemRepo) SetInProduction(ctx context.Context, q db.Querier, id int64, runID int64) error {
	item, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	item.Status = StatusInProduction
	item.ProductionRunID = &runID
	r.items[id] = item
	return nil
}

func (r *memoryItemRepo) SaveTransition(ctx context.Context, q db.Querier, item PurchaseItem) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrNotFound
	}
	r.items[item.ID] = item
	return nil
}

func (r *memoryItemRepo) List(ctx context.Context, filter ListFilter) ([]PurchaseItem, error) {
	var out []PurchaseItem
	for _, item := range r.items {
		if filter.Status == "" || item.Status == filter.Status {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeTxLedger struct {
	rows    map[stock.VariantKey]stock.Delta
	applies int
	fail    bool
}

func newFakeTxLedger() *fakeTxLedger {
	return &fakeTxLedger{rows: make(map[stock.VariantKey]stock.Delta)}
}

var errIncrement = errors.New("increment failed")

func (l *fakeTxLedger) ApplyDeltaIn(ctx context.Context, q db.Querier, key stock.VariantKey, delta stock.Delta) error {
	if l.fail {
		return errIncrement
	}
	l.rows[key] = l.rows[key].Add(delta)
	l.applies++
	return nil
}

type fakeRuns struct {
	synced []int64
}

func (f *fakeRuns) SyncCompleted(ctx context.Context, q db.Querier, runID int64) error {
	f.synced = append(f.synced, runID)
	return nil
}

type fakeStarter struct {
	started int64
	runID   int64
}

func (f *fakeStarter) StartForItem(ctx context.Context, productID int64, hasSymbol bool, qty stock.Delta, itemID int64) (int64, error) {
	f.started++
	f.runID = 700 + f.started
	return f.runID, nil
}

func newItemService(repo *memoryItemRepo, ledger *fakeTxLedger, runs RunSyncer, starter RunStarter) *Service {
	return NewService(repo, passthroughRunner{}, ledger, runs, starter, nil, slog.New(slog.DiscardHandler))
}

func pendingItem(repo *memoryItemRepo, productID int64, piece float64) PurchaseItem {
	return repo.put(PurchaseItem{
		InvoiceNumber: 1,
		InvoiceItemID: "a|without",
		ProductID:     productID,
		Piece:         piece,
		Status:        StatusPending,
	})
}

func TestMarkNoProductionAppliesOnce(t *testing.T) {
	repo := newMemoryItemRepo()
	ledger := newFakeTxLedger()
	svc := newItemService(repo, ledger, nil, nil)
	ctx := context.Background()
	item := pendingItem(repo, 1, 5)
	key := stock.VariantKey{ProductID: 1}

	first, err := svc.MarkNoProduction(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNoProduction, first.Status)
	require.NotNil(t, first.InventoryAppliedAt)
	require.Equal(t, stock.Delta{Piece: 5}, ledger.rows[key])

	second, err := svc.MarkNoProduction(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, 1, ledger.applies)
	require.Equal(t, stock.Delta{Piece: 5}, ledger.rows[key])
}

func TestMarkProducedTwiceIncrementsOnce(t *testing.T) {
	repo := newMemoryItemRepo()
	ledger := newFakeTxLedger()
	svc := newItemService(repo, ledger, nil, nil)
	ctx := context.Background()
	item := pendingItem(repo, 2, 3)

	_, err := svc.MarkProduced(ctx, item.ID)
	require.NoError(t, err)
	_, err = svc.MarkProduced(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 1, ledger.applies)
}

func TestConflictingTerminalStatesRejected(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := newItemService(repo, newFakeTxLedger(), nil, nil)
	ctx := context.Background()
	item := pendingItem(repo, 1, 5)

	_, err := svc.MarkNoProduction(ctx, item.ID)
	require.NoError(t, err)

	_, err = svc.MarkProduced(ctx, item.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestLedgerFailureAbortsTransition(t *testing.T) {
	repo := newMemoryItemRepo()
	ledger := newFakeTxLedger()
	ledger.fail = true
	svc := newItemService(repo, ledger, nil, nil)
	ctx := context.Background()
	item := pendingItem(repo, 1, 5)

	_, err := svc.MarkProduced(ctx, item.ID)
	require.Error(t, err)

	// Status and marker must not advance without the ledger effect.
	stored, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Nil(t, stored.InventoryAppliedAt)
}

func TestMarkProducedSyncsLinkedRunWithoutSecondIncrement(t *testing.T) {
	repo := newMemoryItemRepo()
	ledger := newFakeTxLedger()
	runs := &fakeRuns{}
	svc := newItemService(repo, ledger, runs, nil)
	ctx := context.Background()

	runID := int64(42)
	item := repo.put(PurchaseItem{
		ProductID:       1,
		Piece:           5,
		Status:          StatusInProduction,
		ProductionRunID: &runID,
	})

	_, err := svc.MarkProduced(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{42}, runs.synced)
	require.Equal(t, 1, ledger.applies)
}

func TestMarkNoProductionClearsRunLink(t *testing.T) {
	repo := newMemoryItemRepo()
	runs := &fakeRuns{}
	svc := newItemService(repo, newFakeTxLedger(), runs, nil)
	ctx := context.Background()

	runID := int64(7)
	item := repo.put(PurchaseItem{
		ProductID:       1,
		Weight:          2.5,
		Status:          StatusInProduction,
		ProductionRunID: &runID,
	})

	updated, err := svc.MarkNoProduction(ctx, item.ID)
	require.NoError(t, err)
	require.Nil(t, updated.ProductionRunID)
	require.Equal(t, []int64{7}, runs.synced)
}

func TestStartProductionLinksRun(t *testing.T) {
	repo := newMemoryItemRepo()
	starter := &fakeStarter{}
	svc := newItemService(repo, newFakeTxLedger(), nil, starter)
	ctx := context.Background()
	item := pendingItem(repo, 1, 5)

	updated, err := svc.StartProduction(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProduction, updated.Status)
	require.NotNil(t, updated.ProductionRunID)
	require.Equal(t, starter.runID, *updated.ProductionRunID)

	// Repeat is a no-op and must not open a second run.
	again, err := svc.StartProduction(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, updated.ID, again.ID)
	require.Equal(t, int64(1), starter.started)
}

func TestStartProductionRejectsTerminalItems(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := newItemService(repo, newFakeTxLedger(), nil, &fakeStarter{})
	ctx := context.Background()
	item := pendingItem(repo, 1, 5)

	_, err := svc.MarkNoProduction(ctx, item.ID)
	require.NoError(t, err)

	_, err = svc.StartProduction(ctx, item.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestExtractItemsSplitsSubLines(t *testing.T) {
	inv := invoicing.Invoice{
		ID:     9,
		Number: 120,
		Type:   invoicing.TypePurchase,
		Items: []invoicing.Item{{
			ID:           "line-1",
			ProductID:    1,
			PieceWithout: 4,
			WeightWith:   2.5,
		}},
		XLItems: []invoicing.XLItem{{
			ID:        "xl-1",
			ProductID: 2,
			Piece:     3,
		}},
	}

	items := ExtractItems(inv)
	require.Len(t, items, 3)

	require.Equal(t, "line-1|without", items[0].InvoiceItemID)
	require.False(t, items[0].HasSymbol)
	require.Equal(t, stock.Delta{Piece: 4}, items[0].AddQuantity())

	require.Equal(t, "line-1|with", items[1].InvoiceItemID)
	require.True(t, items[1].HasSymbol)
	require.Equal(t, stock.Delta{Weight: 2.5}, items[1].AddQuantity())

	require.Equal(t, "xl-1|xl", items[2].InvoiceItemID)
	require.False(t, items[2].HasSymbol)
	require.Equal(t, int64(120), items[2].InvoiceNumber)
}

func TestExtractItemsSkipsEmptySubLines(t *testing.T) {
	inv := invoicing.Invoice{
		Number: 1,
		Type:   invoicing.TypePurchase,
		Items: []invoicing.Item{
			{ID: "a", ProductID: 1, PieceWithout: 2},
			{ID: "b", ProductID: 0, PieceWithout: 9},
			{ID: "c", ProductID: 3},
		},
	}

	items := ExtractItems(inv)
	require.Len(t, items, 1)
	require.Equal(t, "a|without", items[0].InvoiceItemID)
}

func TestAddQuantityFallbackChain(t *testing.T) {
	require.Equal(t, stock.Delta{Piece: 5}, PurchaseItem{Piece: 5, WeightWithout: 9}.AddQuantity())
	require.Equal(t, stock.Delta{Weight: 2}, PurchaseItem{Weight: 2}.AddQuantity())
	require.Equal(t, stock.Delta{Piece: 7}, PurchaseItem{PieceWithout: 7, PieceWith: 8}.AddQuantity())
	require.Equal(t, stock.Delta{Weight: 1.5}, PurchaseItem{WeightWith: 1.5}.AddQuantity())
	require.Equal(t, stock.Delta{}, PurchaseItem{}.AddQuantity())
}

func TestTransitionTable(t *testing.T) {
	require.True(t, StatusPending.CanTransition(StatusInProduction))
	require.True(t, StatusPending.CanTransition(StatusProduced))
	require.True(t, StatusInProduction.CanTransition(StatusNoProduction))
	require.False(t, StatusProduced.CanTransition(StatusNoProduction))
	require.False(t, StatusNoProduction.CanTransition(StatusProduced))
	require.True(t, StatusProduced.IsTerminal())
	require.True(t, StatusNoProduction.IsTerminal())
	require.False(t, StatusPending.IsTerminal())
}
