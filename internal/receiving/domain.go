package receiving

import (
	"fmt"
	"time"

	"github.com/stockbook-app/stockbook/internal/platform/httpx"
	"github.com/stockbook-app/stockbook/internal/stock"
)

// Status is the purchase item lifecycle state.
type Status string

// Purchase item states. produced and no_production are terminal.
const (
	StatusPending      Status = "pending"
	StatusInProduction Status = "in_production"
	StatusNoProduction Status = "no_production"
	StatusProduced     Status = "produced"
)

// transitions is the allowed source -> target table. Absence means the move is
// rejected; same-state writes are handled as idempotent no-ops before lookup.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProduction: true,
		StatusNoProduction: true,
		StatusProduced:     true,
	},
	StatusInProduction: {
		StatusNoProduction: true,
		StatusProduced:     true,
	},
}

// CanTransition reports whether the move from s to target is allowed.
func (s Status) CanTransition(target Status) bool {
	return transitions[s][target]
}

// IsTerminal reports whether no further transition is defined from s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsValid reports whether s is a known state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProduction, StatusNoProduction, StatusProduced:
		return true
	}
	return false
}

// PurchaseItem is one receivable unit extracted from a purchase invoice
// sub-line, or created by the backfill script. Its ledger increment is
// deferred until the item reaches a terminal state and is applied at most
// once, gated by InventoryAppliedAt.
type PurchaseItem struct {
	ID            int64  `json:"id"`
	InvoiceID     int64  `json:"invoice_id"`
	InvoiceNumber int64  `json:"invoice_number"`
	InvoiceItemID string `json:"invoice_item_id"`
	ProductID     int64  `json:"product_id"`
	HasSymbol     bool   `json:"has_symbol"`

	Piece  float64 `json:"piece"`
	Weight float64 `json:"weight"`

	// Fallback quantity fields populated by the backfill path, which copies
	// invoice sub-line columns verbatim instead of the canonical pair.
	PieceWithout  float64 `json:"piece_without"`
	WeightWithout float64 `json:"weight_without"`
	PieceWith     float64 `json:"piece_with"`
	WeightWith    float64 `json:"weight_with"`

	Status             Status     `json:"status"`
	InventoryAppliedAt *time.Time `json:"inventory_applied_at,omitempty"`
	ProductionRunID    *int64     `json:"production_run_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VariantKey returns the ledger key this item increments.
func (p PurchaseItem) VariantKey() stock.VariantKey {
	return stock.VariantKey{ProductID: p.ProductID, WithSymbol: p.HasSymbol}
}

// AddQuantity derives the ledger increment for this item. The canonical
// piece/weight pair wins; the sub-line pairs are consulted only when it is
// empty, because different creation paths populate different fields.
func (p PurchaseItem) AddQuantity() stock.Delta {
	pairs := [][2]float64{
		{p.Piece, p.Weight},
		{p.PieceWithout, p.WeightWithout},
		{p.PieceWith, p.WeightWith},
	}
	for _, pair := range pairs {
		if pair[0] > 0 {
			return stock.Delta{Piece: pair[0]}
		}
		if pair[1] > 0 {
			return stock.Delta{Weight: pair[1]}
		}
	}
	return stock.Delta{}
}

// Package errors wrap the shared HTTP sentinels so handlers map them without
// touching package internals.
var (
	ErrNotFound     = fmt.Errorf("receiving: purchase item %w", httpx.ErrNotFound)
	ErrInvalidState = fmt.Errorf("receiving: %w", httpx.ErrInvalidState)
)
