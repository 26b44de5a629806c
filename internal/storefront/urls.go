// Package storefront builds the shopper-facing URLs the store owns.
package storefront

import (
	"fmt"
	"strings"

	"jazzcash-gateway/internal/config"
)

type URLs struct {
	base    string
	success string
	failure string
	cart    string
}

func NewURLs(cfg config.Store) *URLs {
	return &URLs{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		success: cfg.SuccessPath,
		failure: cfg.FailurePath,
		cart:    cfg.CartPath,
	}
}

// ReturnURL is the thank-you page of a paid order.
func (u *URLs) ReturnURL(orderID int64) string {
	return u.base + orderPath(u.success, orderID)
}

// FailureURL is where a shopper lands after a declined payment.
func (u *URLs) FailureURL(orderID int64) string {
	return u.base + orderPath(u.failure, orderID)
}

func (u *URLs) CartURL() string {
	return u.base + u.cart
}

func orderPath(pattern string, orderID int64) string {
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, orderID)
	}
	return strings.TrimRight(pattern, "/") + fmt.Sprintf("/%d", orderID)
}
