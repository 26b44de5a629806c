package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentComplete PaymentStatus = "complete"
	PaymentFailed   PaymentStatus = "failed"
)

// Terminal reports whether no further payment transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentComplete || s == PaymentFailed
}

const PaymentMethodJazzCash = "jazzcash"

// Order is the slice of the store's order record this service reads and writes.
type Order struct {
	ID             int64
	Total          decimal.Decimal
	PaymentMethod  string
	TransactionRef *string
	MobileNumber   *string
	CNIC           *string
	PaymentStatus  PaymentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OrderNote struct {
	ID        int64
	OrderID   int64
	Note      string
	CreatedAt time.Time
}
