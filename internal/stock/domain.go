// Package stock implements the stock ledger: the authoritative per-product
// quantity store. Rows are mutated exclusively through signed atomic
// increments; read-modify-write on quantities is forbidden because it races.
package stock

import (
	"fmt"
	"time"

	"github.com/stockbook-app/stockbook/internal/platform/httpx"
)

// VariantKey identifies a stock pool. The symbol variant is a second physical
// pool for the same product, so it is part of the key everywhere a ledger
// write happens.
type VariantKey struct {
	ProductID  int64
	WithSymbol bool
}

// String renders the canonical key form used for cache and retry-task keys.
func (k VariantKey) String() string {
	return fmt.Sprintf("%d:%t", k.ProductID, k.WithSymbol)
}

// Delta is a signed quantity change. Piece and weight are independent axes;
// which one carries the movement depends on the line's rate type.
type Delta struct {
	Piece  float64
	Weight float64
}

// IsZero reports whether applying the delta would be a no-op.
func (d Delta) IsZero() bool {
	return d.Piece == 0 && d.Weight == 0
}

// Negate returns the reversal of the delta.
func (d Delta) Negate() Delta {
	return Delta{Piece: -d.Piece, Weight: -d.Weight}
}

// Add returns the sum of two deltas.
func (d Delta) Add(o Delta) Delta {
	return Delta{Piece: d.Piece + o.Piece, Weight: d.Weight + o.Weight}
}

// Sub returns d minus o, the movement needed to go from effect o to effect d.
func (d Delta) Sub(o Delta) Delta {
	return Delta{Piece: d.Piece - o.Piece, Weight: d.Weight - o.Weight}
}

// Row is a stock ledger row. Quantities may go negative: oversell and
// backorder are allowed, so no non-negativity constraint exists.
type Row struct {
	ProductID     int64     `json:"product_id"`
	WithSymbol    bool      `json:"with_symbol"`
	PieceQty      float64   `json:"piece_qty"`
	WeightQty     float64   `json:"weight_qty"`
	LastAppliedAt time.Time `json:"last_applied_at"`
}

// ErrRowNotFound indicates no ledger row exists yet for the key.
var ErrRowNotFound = fmt.Errorf("stock: row %w", httpx.ErrNotFound)
