package auction

import (
	"math"

	"github.com/shopspring/decimal"
)

// Amounts are kept at cent precision
const monetaryPrecision = 2

// MaxAmount is the largest price a NUMERIC(14,2) column holds
const MaxAmount = 999999999999.99

// normalizeAmount rounds a finite amount to cents. ok is false for NaN or Inf.
func normalizeAmount(amount float64) (float64, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	rounded, _ := decimal.NewFromFloat(amount).Round(monetaryPrecision).Float64()
	return rounded, true
}

// withinLimit reports whether a normalized amount fits the price column
func withinLimit(amount float64) bool {
	return decimal.NewFromFloat(amount).LessThanOrEqual(decimal.NewFromFloat(MaxAmount))
}

// exceeds reports whether amount beats current at cent precision
func exceeds(amount, current float64) bool {
	a := decimal.NewFromFloat(amount).Round(monetaryPrecision)
	c := decimal.NewFromFloat(current).Round(monetaryPrecision)
	return a.GreaterThan(c)
}
