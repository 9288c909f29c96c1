// Package invoicing manages sale and purchase invoices and keeps the stock
// ledger consistent with them. The signed stock effect of an invoice is a pure
// function of its current items, which makes diff-based reconciliation
// possible: edits apply only the difference between old and new effect.
package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbook-app/stockbook/internal/platform/httpx"
)

// Type distinguishes the sign of an invoice's stock effect.
type Type string

const (
	// TypeSale decrements stock.
	TypeSale Type = "sale"
	// TypePurchase increments stock.
	TypePurchase Type = "purchase"
)

// IsValid checks the invoice type.
func (t Type) IsValid() bool {
	return t == TypeSale || t == TypePurchase
}

// Sign returns the ledger sign for the type.
func (t Type) Sign() float64 {
	if t == TypeSale {
		return -1
	}
	return 1
}

// RateType selects which quantity field drives billing and stock movement.
type RateType string

const (
	RateTypePiece  RateType = "piece"
	RateTypeWeight RateType = "weight"
)

// Item is an invoice line with two independent sub-lines: one for the plain
// product and one for its symbol variant. Each sub-line has its own
// quantities, rate, and rate type.
type Item struct {
	ID        string `json:"id"`
	ProductID int64  `json:"product_id"`

	PieceWithout    float64  `json:"piece_without"`
	WeightWithout   float64  `json:"weight_without"`
	RateWithout     float64  `json:"rate_without"`
	RateTypeWithout RateType `json:"rate_type_without"`

	PieceWith    float64  `json:"piece_with"`
	WeightWith   float64  `json:"weight_with"`
	RateWith     float64  `json:"rate_with"`
	RateTypeWith RateType `json:"rate_type_with"`
}

// XLItem is a single-line entry with one quantity, rate, and rate type.
type XLItem struct {
	ID        string   `json:"id"`
	ProductID int64    `json:"product_id"`
	Piece     float64  `json:"piece"`
	Weight    float64  `json:"weight"`
	Rate      float64  `json:"rate"`
	RateType  RateType `json:"rate_type"`
}

// Invoice is the billing document. Numbers form one store-wide sequence:
// monotonically increasing, gaps allowed after deletes, never reused.
type Invoice struct {
	ID           int64           `json:"id"`
	Number       int64           `json:"number"`
	Type         Type            `json:"type"`
	Date         time.Time       `json:"date"`
	CustomerID   *int64          `json:"customer_id,omitempty"`
	Items        []Item          `json:"items"`
	XLItems      []XLItem        `json:"xl_items"`
	TotalWithout decimal.Decimal `json:"total_without"`
	TotalWith    decimal.Decimal `json:"total_with"`
	XLTotal      decimal.Decimal `json:"xl_total"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

var (
	// ErrNotFound indicates the invoice id does not resolve.
	ErrNotFound = fmt.Errorf("invoicing: invoice %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("invoicing: %w", httpx.ErrValidation)
)
