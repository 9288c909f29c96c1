package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockbook-app/stockbook/internal/platform/db"
	"github.com/stockbook-app/stockbook/internal/shared"
	"github.com/stockbook-app/stockbook/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, q db.Querier) error) error
	NextNumber(ctx context.Context, q db.Querier) (int64, error)
	Insert(ctx context.Context, q db.Querier, inv Invoice) (int64, error)
	Update(ctx context.Context, q db.Querier, inv Invoice) (int64, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	Delete(ctx context.Context, q db.Querier, id int64) error
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
}

// LedgerPort exposes the stock ledger increment.
type LedgerPort interface {
	ApplyDelta(ctx context.Context, key stock.VariantKey, delta stock.Delta) error
}

// ReceivingPort creates purchase items for the receivable sub-lines of a
// purchase invoice, inside the invoice's own transaction.
type ReceivingPort interface {
	CreateFromInvoice(ctx context.Context, q db.Querier, inv Invoice) error
}

// RetryEnqueuer hands failed ledger increments to the background retry queue.
type RetryEnqueuer interface {
	EnqueueLedgerRetry(ctx context.Context, key stock.VariantKey, delta stock.Delta, reason string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the invoice lifecycle.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	receiving ReceivingPort
	retry     RetryEnqueuer
	audit     AuditPort
	logger    *slog.Logger
}

// NewService constructs invoicing service.
func NewService(repo RepositoryPort, ledger LedgerPort, receiving ReceivingPort, retry RetryEnqueuer, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, receiving: receiving, retry: retry, audit: audit, logger: logger}
}

// CreateInput describes invoice creation.
type CreateInput struct {
	Type       Type
	Date       time.Time
	CustomerID *int64
	Items      []Item
	XLItems    []XLItem
}

// Create persists a new invoice under the next sequence number and applies its
// stock effect. A failed ledger increment does not roll the document back: it
// is logged and queued for bounded retry (the documented invoice-path policy).
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	if !input.Type.IsValid() {
		return Invoice{}, fmt.Errorf("%w: unknown invoice type %q", ErrValidation, input.Type)
	}
	inv := Invoice{
		Type:       input.Type,
		Date:       input.Date,
		CustomerID: input.CustomerID,
		Items:      input.Items,
		XLItems:    input.XLItems,
	}
	if inv.Date.IsZero() {
		inv.Date = time.Now().UTC()
	}
	assignLineIDs(&inv)
	computeTotals(&inv)

	err := s.repo.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		number, err := s.repo.NextNumber(ctx, q)
		if err != nil {
			return err
		}
		inv.Number = number
		id, err := s.repo.Insert(ctx, q, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		if inv.Type == TypePurchase && s.receiving != nil {
			if err := s.receiving.CreateFromInvoice(ctx, q, inv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.applyEffect(ctx, Effect(inv), "invoice create")
	s.recordAudit(ctx, "INVOICE_CREATE", inv.ID, map[string]any{"number": inv.Number, "type": inv.Type})
	return inv, nil
}

// UpdateInput replaces an invoice's lines wholesale.
type UpdateInput struct {
	Type       Type
	Date       time.Time
	CustomerID *int64
	Items      []Item
	XLItems    []XLItem
}

// Update persists the replacement lines and moves the ledger by exactly the
// difference between the old and new effect. Saving an invoice unchanged is a
// net zero no matter how often it happens.
//
// If the stored invoice vanished under a concurrent delete, the old effect is
// treated as empty and the update applies the full new effect. That window is
// inherited behavior, kept rather than papered over.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Invoice, error) {
	old, err := s.repo.Get(ctx, id)
	oldFound := true
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Invoice{}, err
		}
		oldFound = false
	}

	inv := old
	if !oldFound {
		if !input.Type.IsValid() {
			return Invoice{}, ErrNotFound
		}
		inv = Invoice{ID: id, Type: input.Type}
	}
	inv.Items = input.Items
	inv.XLItems = input.XLItems
	if !input.Date.IsZero() {
		inv.Date = input.Date
	}
	if input.CustomerID != nil {
		inv.CustomerID = input.CustomerID
	}
	assignLineIDs(&inv)
	computeTotals(&inv)

	err = s.repo.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		_, err := s.repo.Update(ctx, q, inv)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}

	oldEffect := map[stock.VariantKey]stock.Delta{}
	if oldFound {
		oldEffect = Effect(old)
	}
	s.applyEffect(ctx, EffectDiff(oldEffect, Effect(inv)), "invoice update")
	s.recordAudit(ctx, "INVOICE_UPDATE", inv.ID, map[string]any{"number": inv.Number})
	return inv, nil
}

// Delete reverses the invoice's stock effect and removes the record.
func (s *Service) Delete(ctx context.Context, id int64) error {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	s.applyEffect(ctx, Negate(Effect(inv)), "invoice delete")

	err = s.repo.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		return s.repo.Delete(ctx, q, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "INVOICE_DELETE", id, map[string]any{"number": inv.Number})
	return nil
}

// Get loads one invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns invoices.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	return s.repo.List(ctx, filter)
}

// applyEffect applies each entry as an independent atomic increment. Failures
// never propagate to the caller on this path: the document mutation stands,
// the miss is logged, and the idempotent-safe increment goes to the retry
// queue.
func (s *Service) applyEffect(ctx context.Context, effect map[stock.VariantKey]stock.Delta, op string) {
	for key, delta := range effect {
		if delta.IsZero() {
			continue
		}
		err := s.ledger.ApplyDelta(ctx, key, delta)
		if err == nil {
			continue
		}
		s.logger.Error("ledger apply failed",
			slog.String("op", op),
			slog.String("key", key.String()),
			slog.Float64("piece", delta.Piece),
			slog.Float64("weight", delta.Weight),
			slog.Any("error", err),
		)
		if s.retry != nil {
			if qerr := s.retry.EnqueueLedgerRetry(ctx, key, delta, op); qerr != nil {
				s.logger.Error("ledger retry enqueue failed", slog.String("key", key.String()), slog.Any("error", qerr))
			}
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}

func assignLineIDs(inv *Invoice) {
	for i := range inv.Items {
		if inv.Items[i].ID == "" {
			inv.Items[i].ID = uuid.NewString()
		}
	}
	for i := range inv.XLItems {
		if inv.XLItems[i].ID == "" {
			inv.XLItems[i].ID = uuid.NewString()
		}
	}
}
