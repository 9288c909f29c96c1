package invoicing

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ItemRequest mirrors Item for JSON input.
type ItemRequest struct {
	ID        string `json:"id"`
	ProductID int64  `json:"product_id"`

	PieceWithout    float64  `json:"piece_without" validate:"gte=0"`
	WeightWithout   float64  `json:"weight_without" validate:"gte=0"`
	RateWithout     float64  `json:"rate_without" validate:"gte=0"`
	RateTypeWithout RateType `json:"rate_type_without" validate:"omitempty,oneof=piece weight"`

	PieceWith    float64  `json:"piece_with" validate:"gte=0"`
	WeightWith   float64  `json:"weight_with" validate:"gte=0"`
	RateWith     float64  `json:"rate_with" validate:"gte=0"`
	RateTypeWith RateType `json:"rate_type_with" validate:"omitempty,oneof=piece weight"`
}

// XLItemRequest mirrors XLItem for JSON input.
type XLItemRequest struct {
	ID        string   `json:"id"`
	ProductID int64    `json:"product_id"`
	Piece     float64  `json:"piece" validate:"gte=0"`
	Weight    float64  `json:"weight" validate:"gte=0"`
	Rate      float64  `json:"rate" validate:"gte=0"`
	RateType  RateType `json:"rate_type" validate:"omitempty,oneof=piece weight"`
}

// InvoiceRequest is the payload for create and update.
type InvoiceRequest struct {
	Type       Type            `json:"type" validate:"required,oneof=sale purchase"`
	Date       time.Time       `json:"date"`
	CustomerID *int64          `json:"customer_id"`
	Items      []ItemRequest   `json:"items" validate:"dive"`
	XLItems    []XLItemRequest `json:"xl_items" validate:"dive"`
}

// Validate checks the request.
func (r InvoiceRequest) Validate() error {
	return validate.Struct(r)
}

func (r InvoiceRequest) items() []Item {
	items := make([]Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, Item{
			ID:              it.ID,
			ProductID:       it.ProductID,
			PieceWithout:    it.PieceWithout,
			WeightWithout:   it.WeightWithout,
			RateWithout:     it.RateWithout,
			RateTypeWithout: defaultRateType(it.RateTypeWithout),
			PieceWith:       it.PieceWith,
			WeightWith:      it.WeightWith,
			RateWith:        it.RateWith,
			RateTypeWith:    defaultRateType(it.RateTypeWith),
		})
	}
	return items
}

func (r InvoiceRequest) xlItems() []XLItem {
	items := make([]XLItem, 0, len(r.XLItems))
	for _, it := range r.XLItems {
		items = append(items, XLItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Piece:     it.Piece,
			Weight:    it.Weight,
			Rate:      it.Rate,
			RateType:  defaultRateType(it.RateType),
		})
	}
	return items
}

func defaultRateType(rt RateType) RateType {
	if rt == RateTypeWeight {
		return RateTypeWeight
	}
	return RateTypePiece
}
