package invoicing

import (
	"github.com/stockbook-app/stockbook/internal/stock"
)

// Effect computes the signed stock effect of an invoice: sale quantities count
// negative, purchase quantities positive, summed per stock key. It is pure and
// recomputable from the invoice's current shape alone, on both the
// pre-mutation and post-mutation snapshot. Lines without a product are skipped
// silently.
func Effect(inv Invoice) map[stock.VariantKey]stock.Delta {
	sign := inv.Type.Sign()
	effect := make(map[stock.VariantKey]stock.Delta)

	add := func(key stock.VariantKey, rateType RateType, piece, weight float64) {
		delta := effect[key]
		if rateType == RateTypeWeight {
			delta.Weight += sign * weight
		} else {
			delta.Piece += sign * piece
		}
		effect[key] = delta
	}

	for _, item := range inv.Items {
		if item.ProductID == 0 {
			continue
		}
		add(stock.VariantKey{ProductID: item.ProductID}, item.RateTypeWithout, item.PieceWithout, item.WeightWithout)
		add(stock.VariantKey{ProductID: item.ProductID, WithSymbol: true}, item.RateTypeWith, item.PieceWith, item.WeightWith)
	}
	for _, xl := range inv.XLItems {
		if xl.ProductID == 0 {
			continue
		}
		add(stock.VariantKey{ProductID: xl.ProductID}, xl.RateType, xl.Piece, xl.Weight)
	}

	for key, delta := range effect {
		if delta.IsZero() {
			delete(effect, key)
		}
	}
	return effect
}

// EffectDiff returns, per key touched by either effect, the movement that
// takes the ledger from oldEffect to newEffect. Zero diffs are omitted, so an
// unchanged invoice yields an empty map no matter how often it is saved.
func EffectDiff(oldEffect, newEffect map[stock.VariantKey]stock.Delta) map[stock.VariantKey]stock.Delta {
	diff := make(map[stock.VariantKey]stock.Delta)
	for key, newDelta := range newEffect {
		d := newDelta.Sub(oldEffect[key])
		if !d.IsZero() {
			diff[key] = d
		}
	}
	for key, oldDelta := range oldEffect {
		if _, seen := newEffect[key]; seen {
			continue
		}
		d := oldDelta.Negate()
		if !d.IsZero() {
			diff[key] = d
		}
	}
	return diff
}

// Negate reverses an effect, used when deleting an invoice.
func Negate(effect map[stock.VariantKey]stock.Delta) map[stock.VariantKey]stock.Delta {
	out := make(map[stock.VariantKey]stock.Delta, len(effect))
	for key, delta := range effect {
		out[key] = delta.Negate()
	}
	return out
}
