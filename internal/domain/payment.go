package domain

import (
	"time"

	"github.com/google/uuid"
)

// SuccessResponseCode is the only pp_ResponseCode JazzCash uses for a paid transaction.
const SuccessResponseCode = "000"

// PaymentRequest is the signed initiation payload sent to JazzCash through the browser.
type PaymentRequest struct {
	MerchantID       string
	TransactionRef   string
	AmountMinorUnits int64
	Timestamp        string
	BillReference    string
	Description      string
	MobileNumber     string
	CNIC             string
	SecureHash       string
	ReturnURL        string
	RedirectURL      string
}

// CallbackResult is what the reconciler extracts from an inbound callback.
type CallbackResult struct {
	TransactionRef string
	ResponseCode   string
}

func (r CallbackResult) Succeeded() bool {
	return r.ResponseCode == SuccessResponseCode
}

// CallbackOutcome classifies a callback delivery. Unmatched and conflict
// deliveries need manual reconciliation: conflict means the callback disagrees
// with the order's settled state, e.g. a success after the order expired.
type CallbackOutcome string

const (
	CallbackCompleted CallbackOutcome = "completed"
	CallbackFailed    CallbackOutcome = "failed"
	CallbackDuplicate CallbackOutcome = "duplicate"
	CallbackUnmatched CallbackOutcome = "unmatched"
	CallbackConflict  CallbackOutcome = "conflict"
	CallbackRejected  CallbackOutcome = "rejected"
)

// CallbackLog is one recorded callback delivery.
type CallbackLog struct {
	ID             uuid.UUID
	TransactionRef string
	ResponseCode   string
	OrderID        *int64
	Outcome        CallbackOutcome
	Payload        map[string]string
	ReceivedAt     time.Time
}

const (
	EventPaymentCompleted = "payment_completed"
	EventPaymentFailed    = "payment_failed"
)

// PaymentEvent is announced after an order reaches a terminal payment state.
type PaymentEvent struct {
	Type           string    `json:"type"`
	OrderID        int64     `json:"order_id"`
	TransactionRef string    `json:"transaction_ref"`
	ResponseCode   string    `json:"response_code"`
	Timestamp      time.Time `json:"timestamp"`
}
