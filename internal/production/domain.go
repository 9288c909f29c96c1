package production

import (
	"fmt"
	"time"

	"github.com/stockbook-app/stockbook/internal/platform/httpx"
	"github.com/stockbook-app/stockbook/internal/stock"
)

// RunStatus is the production run state.
type RunStatus string

// Run states. completed is terminal.
const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
)

// Step is one manufacturing step of a run. Steps may complete in any order;
// only completeness of the whole set gates finishing.
type Step struct {
	Name        string     `json:"name"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Run is one production batch for a product variant. A run started from a
// purchase item carries the back-reference; finishing such a run routes the
// ledger increment through the item's guarded apply instead of writing
// directly.
type Run struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	HasSymbol      bool      `json:"has_symbol"`
	PurchaseItemID *int64    `json:"purchase_item_id,omitempty"`
	Piece          float64   `json:"piece"`
	Weight         float64   `json:"weight"`
	BarcodeText    string    `json:"barcode_text"`
	Steps          []Step    `json:"steps"`
	Status         RunStatus `json:"status"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// VariantKey returns the ledger key this run increments.
func (r Run) VariantKey() stock.VariantKey {
	return stock.VariantKey{ProductID: r.ProductID, WithSymbol: r.HasSymbol}
}

// Quantity returns the run's ledger increment.
func (r Run) Quantity() stock.Delta {
	return stock.Delta{Piece: r.Piece, Weight: r.Weight}
}

// AllStepsCompleted reports whether every step has a completion timestamp.
func (r Run) AllStepsCompleted() bool {
	for _, step := range r.Steps {
		if step.CompletedAt == nil {
			return false
		}
	}
	return true
}

var (
	ErrNotFound     = fmt.Errorf("production: run %w", httpx.ErrNotFound)
	ErrInvalidState = fmt.Errorf("production: %w", httpx.ErrInvalidState)
	ErrValidation   = fmt.Errorf("production: %w", httpx.ErrValidation)
)
