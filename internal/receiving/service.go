package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockbook-app/stockbook/internal/invoicing"
	"github.com/stockbook-app/stockbook/internal/platform/db"
	"github.com/stockbook-app/stockbook/internal/shared"
	"github.com/stockbook-app/stockbook/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	CreateBatch(ctx context.Context, q db.Querier, items []PurchaseItem) error
	Get(ctx context.Context, id int64) (PurchaseItem, error)
	GetForUpdate(ctx context.Context, q db.Querier, id int64) (PurchaseItem, error)
	SetInProduction(ctx context.Context, q db.Querier, id int64, runID int64) error
	SaveTransition(ctx context.Context, q db.Querier, item PurchaseItem) error
	List(ctx context.Context, filter ListFilter) ([]PurchaseItem, error)
}

// LedgerPort is the transaction-scoped stock increment.
type LedgerPort interface {
	ApplyDeltaIn(ctx context.Context, q db.Querier, key stock.VariantKey, delta stock.Delta) error
}

// RunSyncer marks a linked production run completed without a ledger write.
// The increment for the goods belongs to the purchase item's own guarded
// apply; syncing the run is a status write only.
type RunSyncer interface {
	SyncCompleted(ctx context.Context, q db.Querier, runID int64) error
}

// RunStarter opens a production run for one item's product and quantity.
type RunStarter interface {
	StartForItem(ctx context.Context, productID int64, hasSymbol bool, qty stock.Delta, itemID int64) (int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the purchase item state machine. Terminal transitions run
// inside the runner so the ledger increment, the applied marker and the
// status write commit or roll back together; a failed increment aborts the
// whole transition, unlike the invoice path.
type Service struct {
	repo    RepositoryPort
	runner  db.TxRunner
	ledger  LedgerPort
	runs    RunSyncer
	starter RunStarter
	audit   AuditPort
	logger  *slog.Logger
}

// NewService constructs receiving service.
func NewService(repo RepositoryPort, runner db.TxRunner, ledger LedgerPort, runs RunSyncer, starter RunStarter, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, runner: runner, ledger: ledger, runs: runs, starter: starter, audit: audit, logger: logger}
}

// CreateFromInvoice extracts receivable units from a purchase invoice's
// sub-lines and inserts them on the invoice's own transaction. Sub-lines with
// no quantity are skipped.
func (s *Service) CreateFromInvoice(ctx context.Context, q db.Querier, inv invoicing.Invoice) error {
	items := ExtractItems(inv)
	if len(items) == 0 {
		return nil
	}
	return s.repo.CreateBatch(ctx, q, items)
}

// ExtractItems splits each invoice item into its without-symbol and
// with-symbol receivable units and maps xl items to the base variant. The
// sub-line identity "<parentID>|without" / "|with" / "|xl" is stable across
// re-extraction.
func ExtractItems(inv invoicing.Invoice) []PurchaseItem {
	var out []PurchaseItem
	add := func(itemID string, suffix string, productID int64, hasSymbol bool, piece, weight float64) {
		if productID == 0 || (piece <= 0 && weight <= 0) {
			return
		}
		out = append(out, PurchaseItem{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			InvoiceItemID: itemID + "|" + suffix,
			ProductID:     productID,
			HasSymbol:     hasSymbol,
			Piece:         piece,
			Weight:        weight,
			Status:        StatusPending,
		})
	}
	for _, it := range inv.Items {
		add(it.ID, "without", it.ProductID, false, it.PieceWithout, it.WeightWithout)
		add(it.ID, "with", it.ProductID, true, it.PieceWith, it.WeightWith)
	}
	for _, xl := range inv.XLItems {
		add(xl.ID, "xl", xl.ProductID, false, xl.Piece, xl.Weight)
	}
	return out
}

// StartProduction opens a production run for the item and links it. Calling
// it on an item already in production returns the current record unchanged.
func (s *Service) StartProduction(ctx context.Context, id int64) (PurchaseItem, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return PurchaseItem{}, err
	}
	if item.Status != StatusPending {
		if item.Status == StatusInProduction {
			return item, nil
		}
		return PurchaseItem{}, fmt.Errorf("%w: cannot start production from %s", ErrInvalidState, item.Status)
	}
	if s.starter == nil {
		return PurchaseItem{}, errors.New("receiving: production integration not configured")
	}
	runID, err := s.starter.StartForItem(ctx, item.ProductID, item.HasSymbol, item.AddQuantity(), item.ID)
	if err != nil {
		return PurchaseItem{}, err
	}
	return s.MarkInProduction(ctx, id, runID)
}

// MarkInProduction links the run and moves the item to in_production. Items
// already past pending are left untouched.
func (s *Service) MarkInProduction(ctx context.Context, id int64, runID int64) (PurchaseItem, error) {
	var item PurchaseItem
	err := s.runner.RunInTx(ctx, func(ctx context.Context, q db.Querier) error {
		cur, err := s.repo.GetForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if cur.Status != StatusPending {
			item = cur
			return nil
		}
		if err := s.repo.SetInProduction(ctx, q, id, runID); err != nil {
			return err
		}
		cur.Status = StatusInProduction
		cur.ProductionRunID = &runID
		item = cur
		return nil
	})
	if err != nil {
		return PurchaseItem{}, err
	}
	s.recordAudit(ctx, "ITEM_START_PRODUCTION", item.ID, map[string]any{"run_id": runID})
	return item, nil
}

// MarkProduced moves the item to produced, applying its ledger increment
// exactly once.
func (s *Service) MarkProduced(ctx context.Context, id int64) (PurchaseItem, error) {
	return s.markTerminal(ctx, id, StatusProduced)
}

// MarkNoProduction moves the item straight to stock without production.
func (s *Service) MarkNoProduction(ctx context.Context, id int64) (PurchaseItem, error) {
	return s.markTerminal(ctx, id, StatusNoProduction)
}

// ProduceLinked is MarkProduced for callers that only carry the item id, used
// by the production workflow when a finished run is linked to an item.
func (s *Service) ProduceLinked(ctx context.Context, id int64) error {
	_, err := s.MarkProduced(ctx, id)
	return err
}

// markTerminal is the single guarded entry point into the ledger for
// purchase items. Inside the transaction it re-reads the item, rejects
// illegal moves, applies the increment only while InventoryAppliedAt is
// still null, writes the target status, and syncs a linked run.
func (s *Service) markTerminal(ctx context.Context, id int64, target Status) (PurchaseItem, error) {
	var item PurchaseItem
	err := s.runner.RunInTx(ctx, func(ctx context.Context, q db.Querier) error {
		cur, err := s.repo.GetForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if cur.Status == target {
			item = cur
			return nil
		}
		if !cur.Status.CanTransition(target) {
			return fmt.Errorf("%w: purchase item %d cannot move from %s to %s", ErrInvalidState, id, cur.Status, target)
		}

		if cur.InventoryAppliedAt == nil {
			if err := s.ledger.ApplyDeltaIn(ctx, q, cur.VariantKey(), cur.AddQuantity()); err != nil {
				return fmt.Errorf("%w: item %d: %v", shared.ErrLedgerApply, id, err)
			}
			now := time.Now().UTC()
			cur.InventoryAppliedAt = &now
		}

		runID := cur.ProductionRunID
		cur.Status = target
		if target == StatusNoProduction {
			cur.ProductionRunID = nil
		}
		if err := s.repo.SaveTransition(ctx, q, cur); err != nil {
			return err
		}
		if runID != nil && s.runs != nil {
			if err := s.runs.SyncCompleted(ctx, q, *runID); err != nil {
				return err
			}
		}
		item = cur
		return nil
	})
	if err != nil {
		return PurchaseItem{}, err
	}
	s.recordAudit(ctx, "ITEM_"+actionName(target), item.ID, map[string]any{"status": target})
	return item, nil
}

// Get loads one purchase item.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseItem, error) {
	return s.repo.Get(ctx, id)
}

// List returns purchase items.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseItem, error) {
	return s.repo.List(ctx, filter)
}

func actionName(target Status) string {
	if target == StatusProduced {
		return "PRODUCED"
	}
	return "NO_PRODUCTION"
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "purchase_item",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
