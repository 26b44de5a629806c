package storefront_test

import (
	"testing"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/storefront"

	"github.com/stretchr/testify/assert"
)

func TestURLs(t *testing.T) {
	u := storefront.NewURLs(config.Store{
		BaseURL:     "https://shop.example/",
		SuccessPath: "/checkout/order-received/%d",
		FailurePath: "/checkout/order-failed",
		CartPath:    "/cart",
	})

	assert.Equal(t, "https://shop.example/checkout/order-received/42", u.ReturnURL(42))
	assert.Equal(t, "https://shop.example/checkout/order-failed/42", u.FailureURL(42))
	assert.Equal(t, "https://shop.example/cart", u.CartURL())
}
