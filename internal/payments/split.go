// Package payments splits job revenue and talks to the payment provider.
package payments

import "math"

// PlatformFeePercent is the marketplace share of every completed job
const PlatformFeePercent = 20

// Payout is the split of a final job price
type Payout struct {
	Amount        float64 `json:"amount"`
	PlatformFee   float64 `json:"platform_fee"`
	PlumberPayout float64 `json:"plumber_payout"`
}

// Split divides amount into the platform fee and the plumber payout. The fee
// is PlatformFeePercent of the amount rounded half up to a whole currency unit;
// the payout is the remainder in cents, so PlatformFee + PlumberPayout always
// equals Amount.
func Split(amount float64) Payout {
	cents := ToCents(amount)
	// floor(cents*percent/100/100 + 1/2) whole units, kept in cents
	fee := floorDiv(cents*PlatformFeePercent+5000, 10000) * 100

	return Payout{
		Amount:        FromCents(cents),
		PlatformFee:   FromCents(fee),
		PlumberPayout: FromCents(cents - fee),
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// ToCents converts a dollar amount to whole cents
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts whole cents back to dollars
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
