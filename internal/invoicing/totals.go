package invoicing

import "github.com/shopspring/decimal"

// computeTotals recalculates the cached totals from the current lines. The
// billing quantity of a sub-line is the one its rate type names.
func computeTotals(inv *Invoice) {
	totalWithout := decimal.Zero
	totalWith := decimal.Zero
	xlTotal := decimal.Zero

	for _, item := range inv.Items {
		totalWithout = totalWithout.Add(lineAmount(item.RateTypeWithout, item.PieceWithout, item.WeightWithout, item.RateWithout))
		totalWith = totalWith.Add(lineAmount(item.RateTypeWith, item.PieceWith, item.WeightWith, item.RateWith))
	}
	for _, xl := range inv.XLItems {
		xlTotal = xlTotal.Add(lineAmount(xl.RateType, xl.Piece, xl.Weight, xl.Rate))
	}

	inv.TotalWithout = totalWithout.Round(2)
	inv.TotalWith = totalWith.Round(2)
	inv.XLTotal = xlTotal.Round(2)
	inv.GrandTotal = totalWithout.Add(totalWith).Add(xlTotal).Round(2)
}

func lineAmount(rateType RateType, piece, weight, rate float64) decimal.Decimal {
	qty := piece
	if rateType == RateTypeWeight {
		qty = weight
	}
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(rate))
}
