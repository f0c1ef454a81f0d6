package escrow

import "time"

// Escrow mirrors the escrows table. Each order owns at most one escrow
// row; released flips false→true exactly once, and a refund deletes the
// row instead of flagging it.
type Escrow struct {
	ID         string
	OrderID    string
	Amount     float64
	Currency   string
	Released   bool
	ReleasedBy *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DefaultCurrency is used when the caller does not specify one.
const DefaultCurrency = "USD"
