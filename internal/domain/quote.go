package domain

import "math"

// Display-only quote math. These helpers mirror what a UI shows before an
// order is placed and are the only place floating point is allowed; nothing
// on the settlement path calls them.

// QuotePayout returns the projected payout for buying `amount` at the given
// basis-point price, rounded to two decimals: payout = amount / probability.
func QuotePayout(amount float64, priceBp int64) float64 {
	if amount <= 0 || priceBp <= 0 {
		return 0
	}
	prob := float64(priceBp) / float64(PriceScaleBp)
	return round2(amount / prob)
}

// QuoteProfit returns the projected profit for buying `amount` at the given
// basis-point price: profit = payout - amount, rounded to two decimals.
func QuoteProfit(amount float64, priceBp int64) float64 {
	if amount <= 0 || priceBp <= 0 {
		return 0
	}
	return round2(QuotePayout(amount, priceBp) - amount)
}

// QuoteSellProceeds returns the display proceeds for selling shareAmount
// after the fixed 0.3% fee, rounded to two decimals.
func QuoteSellProceeds(shareAmount float64) float64 {
	if shareAmount <= 0 {
		return 0
	}
	return round2(shareAmount * (1 - float64(SellFeeBp)/float64(PriceScaleBp)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
