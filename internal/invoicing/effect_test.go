package invoicing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbook-app/stockbook/internal/stock"
)

func TestEffectSaleIsNegative(t *testing.T) {
	inv := Invoice{
		Type: TypeSale,
		Items: []Item{{
			ProductID:       1,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    10,
			RateWithout:     5,
		}},
	}

	effect := Effect(inv)
	require.Len(t, effect, 1)
	require.Equal(t, stock.Delta{Piece: -10}, effect[stock.VariantKey{ProductID: 1}])
}

func TestEffectPurchaseIsPositive(t *testing.T) {
	inv := Invoice{
		Type: TypePurchase,
		Items: []Item{{
			ProductID:       2,
			RateTypeWithout: RateTypeWeight,
			WeightWithout:   3.5,
			PieceWithout:    99, // ignored: weight drives this sub-line
		}},
	}

	effect := Effect(inv)
	require.Equal(t, stock.Delta{Weight: 3.5}, effect[stock.VariantKey{ProductID: 2}])
}

func TestEffectSplitsSymbolVariants(t *testing.T) {
	inv := Invoice{
		Type: TypePurchase,
		Items: []Item{{
			ProductID:       3,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    4,
			RateTypeWith:    RateTypePiece,
			PieceWith:       6,
		}},
	}

	effect := Effect(inv)
	require.Len(t, effect, 2)
	require.Equal(t, stock.Delta{Piece: 4}, effect[stock.VariantKey{ProductID: 3}])
	require.Equal(t, stock.Delta{Piece: 6}, effect[stock.VariantKey{ProductID: 3, WithSymbol: true}])
}

func TestEffectSumsXLItemsIntoBaseVariant(t *testing.T) {
	inv := Invoice{
		Type: TypeSale,
		Items: []Item{{
			ProductID:       4,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    2,
		}},
		XLItems: []XLItem{{
			ProductID: 4,
			RateType:  RateTypePiece,
			Piece:     3,
		}},
	}

	effect := Effect(inv)
	require.Equal(t, stock.Delta{Piece: -5}, effect[stock.VariantKey{ProductID: 4}])
}

func TestEffectSkipsBlankProductLines(t *testing.T) {
	inv := Invoice{
		Type: TypeSale,
		Items: []Item{
			{ProductID: 0, RateTypeWithout: RateTypePiece, PieceWithout: 7},
			{ProductID: 5, RateTypeWithout: RateTypePiece, PieceWithout: 1},
		},
		XLItems: []XLItem{{ProductID: 0, RateType: RateTypePiece, Piece: 2}},
	}

	effect := Effect(inv)
	require.Len(t, effect, 1)
	require.Equal(t, stock.Delta{Piece: -1}, effect[stock.VariantKey{ProductID: 5}])
}

func TestEffectDiffMovesByDifferenceOnly(t *testing.T) {
	key := stock.VariantKey{ProductID: 1}
	oldEffect := map[stock.VariantKey]stock.Delta{key: {Piece: -10}}
	newEffect := map[stock.VariantKey]stock.Delta{key: {Piece: -6}}

	diff := EffectDiff(oldEffect, newEffect)
	require.Equal(t, stock.Delta{Piece: 4}, diff[key])
}

func TestEffectDiffReversesDroppedKeys(t *testing.T) {
	dropped := stock.VariantKey{ProductID: 2}
	added := stock.VariantKey{ProductID: 3}
	oldEffect := map[stock.VariantKey]stock.Delta{dropped: {Piece: -5}}
	newEffect := map[stock.VariantKey]stock.Delta{added: {Piece: -2}}

	diff := EffectDiff(oldEffect, newEffect)
	require.Equal(t, stock.Delta{Piece: 5}, diff[dropped])
	require.Equal(t, stock.Delta{Piece: -2}, diff[added])
}

func TestEffectDiffIdenticalIsEmpty(t *testing.T) {
	key := stock.VariantKey{ProductID: 1}
	e := map[stock.VariantKey]stock.Delta{key: {Piece: -10, Weight: 2}}

	require.Empty(t, EffectDiff(e, e))
}

func TestNegateReturnsExactReversal(t *testing.T) {
	inv := Invoice{
		Type: TypeSale,
		Items: []Item{{
			ProductID:       1,
			RateTypeWithout: RateTypePiece,
			PieceWithout:    10,
			RateTypeWith:    RateTypeWeight,
			WeightWith:      2,
		}},
	}

	effect := Effect(inv)
	reversal := Negate(effect)
	for key, delta := range effect {
		require.Equal(t, stock.Delta{}, delta.Add(reversal[key]))
	}
}
