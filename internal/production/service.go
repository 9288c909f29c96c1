package production

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockbook-app/stockbook/internal/platform/db"
	"github.com/stockbook-app/stockbook/internal/shared"
	"github.com/stockbook-app/stockbook/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, run Run) (int64, error)
	Get(ctx context.Context, id int64) (Run, error)
	GetForUpdate(ctx context.Context, q db.Querier, id int64) (Run, error)
	SaveSteps(ctx context.Context, q db.Querier, id int64, steps []Step) error
	MarkCompleted(ctx context.Context, q db.Querier, id int64) (int64, error)
	List(ctx context.Context, filter ListFilter) ([]Run, error)
}

// LedgerPort is the transaction-scoped stock increment.
type LedgerPort interface {
	ApplyDeltaIn(ctx context.Context, q db.Querier, key stock.VariantKey, delta stock.Delta) error
}

// LinkedItems routes the finish of a linked run through the purchase item's
// guarded apply, so both workflows share one applied-marker for the same
// physical goods.
type LinkedItems interface {
	ProduceLinked(ctx context.Context, purchaseItemID int64) error
}

// CatalogPort supplies the product's manufacturing step template.
type CatalogPort interface {
	StepTemplate(ctx context.Context, productID int64) ([]string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the production workflow.
type Service struct {
	repo    RepositoryPort
	runner  db.TxRunner
	ledger  LedgerPort
	items   LinkedItems
	catalog CatalogPort
	audit   AuditPort
	logger  *slog.Logger
}

// NewService constructs production service.
func NewService(repo RepositoryPort, runner db.TxRunner, ledger LedgerPort, items LinkedItems, catalog CatalogPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, runner: runner, ledger: ledger, items: items, catalog: catalog, audit: audit, logger: logger}
}

// SetLinkedItems wires the purchase item port after construction. The two
// services reference each other, so one side is attached late.
func (s *Service) SetLinkedItems(items LinkedItems) {
	s.items = items
}

// StartInput describes a new run.
type StartInput struct {
	ProductID      int64
	HasSymbol      bool
	Piece          float64
	Weight         float64
	BarcodeText    string
	Steps          []string
	PurchaseItemID *int64
}

// defaultSteps is used when neither the request nor the product template
// names any steps.
var defaultSteps = []string{"production"}

// Start creates a run with each step initially incomplete. Explicit request
// steps win over the product template.
func (s *Service) Start(ctx context.Context, input StartInput) (Run, error) {
	if input.ProductID == 0 {
		return Run{}, fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	if input.Piece <= 0 && input.Weight <= 0 {
		return Run{}, fmt.Errorf("%w: quantity is required", ErrValidation)
	}

	names := input.Steps
	if len(names) == 0 && s.catalog != nil {
		template, err := s.catalog.StepTemplate(ctx, input.ProductID)
		if err != nil {
			return Run{}, err
		}
		names = template
	}
	if len(names) == 0 {
		names = defaultSteps
	}
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		steps = append(steps, Step{Name: name})
	}

	run := Run{
		ProductID:      input.ProductID,
		HasSymbol:      input.HasSymbol,
		PurchaseItemID: input.PurchaseItemID,
		Piece:          input.Piece,
		Weight:         input.Weight,
		BarcodeText:    input.BarcodeText,
		Steps:          steps,
		Status:         RunStatusInProgress,
	}
	id, err := s.repo.Insert(ctx, run)
	if err != nil {
		return Run{}, err
	}
	run.ID = id
	s.recordAudit(ctx, "RUN_START", id, map[string]any{"product_id": input.ProductID, "steps": len(steps)})
	return run, nil
}

// StartForItem opens a run for one purchase item's product and quantity.
func (s *Service) StartForItem(ctx context.Context, productID int64, hasSymbol bool, qty stock.Delta, itemID int64) (int64, error) {
	run, err := s.Start(ctx, StartInput{
		ProductID:      productID,
		HasSymbol:      hasSymbol,
		Piece:          qty.Piece,
		Weight:         qty.Weight,
		PurchaseItemID: &itemID,
	})
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}

// CompleteStep stamps one step. Completing an already-stamped step keeps the
// original timestamp.
func (s *Service) CompleteStep(ctx context.Context, runID int64, index int) (Run, error) {
	var run Run
	err := s.runner.RunInTx(ctx, func(ctx context.Context, q db.Querier) error {
		cur, err := s.repo.GetForUpdate(ctx, q, runID)
		if err != nil {
			return err
		}
		if cur.Status == RunStatusCompleted {
			return fmt.Errorf("%w: run %d is already completed", ErrInvalidState, runID)
		}
		if index < 0 || index >= len(cur.Steps) {
			return fmt.Errorf("%w: step index %d out of range [0,%d)", ErrInvalidState, index, len(cur.Steps))
		}
		if cur.Steps[index].CompletedAt == nil {
			now := time.Now().UTC()
			cur.Steps[index].CompletedAt = &now
			if err := s.repo.SaveSteps(ctx, q, runID, cur.Steps); err != nil {
				return err
			}
		}
		run = cur
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// Finish closes the run. All steps must be stamped; a finished run is an
// idempotent no-op. Linked runs delegate to the purchase item's guarded
// apply; standalone runs increment the ledger directly, with the terminal
// state as the only repeat guard.
func (s *Service) Finish(ctx context.Context, runID int64) (Run, error) {
	run, err := s.repo.Get(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	if run.Status == RunStatusCompleted {
		return run, nil
	}
	if !run.AllStepsCompleted() {
		return Run{}, fmt.Errorf("%w: run %d has incomplete steps", ErrInvalidState, runID)
	}

	if run.PurchaseItemID != nil && s.items != nil {
		if err := s.items.ProduceLinked(ctx, *run.PurchaseItemID); err != nil {
			return Run{}, err
		}
		s.recordAudit(ctx, "RUN_FINISH", runID, map[string]any{"purchase_item_id": *run.PurchaseItemID})
		return s.repo.Get(ctx, runID)
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context, q db.Querier) error {
		cur, err := s.repo.GetForUpdate(ctx, q, runID)
		if err != nil {
			return err
		}
		if cur.Status == RunStatusCompleted {
			run = cur
			return nil
		}
		if !cur.AllStepsCompleted() {
			return fmt.Errorf("%w: run %d has incomplete steps", ErrInvalidState, runID)
		}
		moved, err := s.repo.MarkCompleted(ctx, q, runID)
		if err != nil {
			return err
		}
		if moved == 0 {
			run = cur
			return nil
		}
		if err := s.ledger.ApplyDeltaIn(ctx, q, cur.VariantKey(), cur.Quantity()); err != nil {
			return fmt.Errorf("%w: run %d: %v", shared.ErrLedgerApply, runID, err)
		}
		now := time.Now().UTC()
		cur.Status = RunStatusCompleted
		cur.CompletedAt = &now
		run = cur
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	s.recordAudit(ctx, "RUN_FINISH", runID, map[string]any{"product_id": run.ProductID})
	return run, nil
}

// SyncCompleted marks a run completed as a status write only, with no ledger
// effect. Missing or already-completed runs are left alone.
func (s *Service) SyncCompleted(ctx context.Context, q db.Querier, runID int64) error {
	_, err := s.repo.MarkCompleted(ctx, q, runID)
	return err
}

// Get loads one run.
func (s *Service) Get(ctx context.Context, id int64) (Run, error) {
	return s.repo.Get(ctx, id)
}

// List returns runs.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Run, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "production_run",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
