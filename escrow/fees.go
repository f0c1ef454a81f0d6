package escrow

import "math"

// DefaultFeePercent is the platform's cut of every released escrow.
const DefaultFeePercent = 5.0

// PlatformFee returns the platform's share of amount, rounded to cents.
func PlatformFee(amount, feePercent float64) float64 {
	return roundCents(amount * feePercent / 100)
}

// SellerPayout returns what the seller receives after the platform fee.
func SellerPayout(amount, feePercent float64) float64 {
	return roundCents(amount - PlatformFee(amount, feePercent))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
