package utils

import (
	"github.com/shopspring/decimal"
)

var decimalOneHundred = decimal.NewFromInt(100)

// LineAmounts are the cent-rounded amounts of one document line.
type LineAmounts struct {
	HT  decimal.Decimal `json:"montant_ht"`
	VAT decimal.Decimal `json:"montant_tva"`
	TTC decimal.Decimal `json:"montant_ttc"`
}

// RoundCents rounds half away from zero to two decimals.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CalculateLineAmounts returns HT = qty*price, VAT = HT*rate/100 and TTC = HT+VAT,
// each rounded to the cent. TTC is the sum of the rounded parts.
func CalculateLineAmounts(quantity, unitPrice, vatRate decimal.Decimal) LineAmounts {
	ht := RoundCents(quantity.Mul(unitPrice))
	vat := RoundCents(ht.Mul(vatRate).Div(decimalOneHundred))
	return LineAmounts{
		HT:  ht,
		VAT: vat,
		TTC: ht.Add(vat),
	}
}

// SumLineAmounts adds already rounded lines; the totals are never re-rounded from raw values.
func SumLineAmounts(lines []LineAmounts) LineAmounts {
	total := LineAmounts{HT: decimal.Zero, VAT: decimal.Zero, TTC: decimal.Zero}
	for _, l := range lines {
		total.HT = total.HT.Add(l.HT)
		total.VAT = total.VAT.Add(l.VAT)
		total.TTC = total.TTC.Add(l.TTC)
	}
	return total
}

// NegateAmounts forces every amount to -abs(x).
func NegateAmounts(a LineAmounts) LineAmounts {
	return LineAmounts{
		HT:  RoundCents(a.HT.Abs().Neg()),
		VAT: RoundCents(a.VAT.Abs().Neg()),
		TTC: RoundCents(a.TTC.Abs().Neg()),
	}
}

// Percentage returns amount*percent/100 rounded to the cent.
func Percentage(amount decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return RoundCents(amount.Mul(percent).Div(decimalOneHundred))
}
