package app

import (
	"time"

	"go.uber.org/zap"
)

// NewCheckoutServiceWithClock pins the clock used for session expirations.
func NewCheckoutServiceWithClock(gateway PaymentGateway, creds Credentials, opts CheckoutOptions, logger *zap.Logger, now func() time.Time) *CheckoutService {
	s := NewCheckoutService(gateway, creds, opts, logger)
	s.now = now
	return s
}
