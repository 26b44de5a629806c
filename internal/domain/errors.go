package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPayable    = errors.New("order is not in pending state")
	ErrWrongPaymentMethod = errors.New("order is not paid with jazzcash")
	ErrGatewayDisabled    = errors.New("jazzcash gateway is disabled")
	ErrInvalidAmount      = errors.New("order total must not be negative")
	ErrHashMismatch       = errors.New("callback secure hash mismatch")
	ErrSettlementConflict = errors.New("callback contradicts settled payment")
)

// ValidationError is a user-correctable problem with checkout input.
// Message is safe to show on the checkout page.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// LookupError means a callback referenced a transaction no order owns.
type LookupError struct {
	TransactionRef string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no order for transaction reference %q", e.TransactionRef)
}

// ProcessorFailure is a declined or failed payment reported by JazzCash.
type ProcessorFailure struct {
	TransactionRef string
	ResponseCode   string
}

func (e *ProcessorFailure) Error() string {
	return fmt.Sprintf("jazzcash payment %s failed with response code %s", e.TransactionRef, e.ResponseCode)
}
