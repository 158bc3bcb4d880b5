// Package payments is the boundary to the external payment provider. The bid
// workflow only sees the Provider interface; the PayPal implementation lives
// behind it so tests can swap in a fake.
package payments

import (
	"context"
)

// Order is the provider-side handle for a payment that has been created but
// not yet captured.
type Order struct {
	ID     string
	Status string
}

// Capture is the result of capturing an approved order.
type Capture struct {
	OrderID string
	Status  string
	PayerID string
}

// Order statuses reported by the provider.
const (
	OrderCreated   = "CREATED"
	OrderApproved  = "APPROVED"
	OrderCompleted = "COMPLETED"
	OrderVoided    = "VOIDED"
)

type Provider interface {
	// CreateOrder registers an order for the given amount with the provider
	// and returns its handle. The payer approves it out-of-band.
	CreateOrder(ctx context.Context, amount int, currency string) (Order, error)

	// CaptureOrder captures an approved order. A provider-side decline or
	// cancellation is returned as ErrPaymentDeclined from pkg/errors.
	CaptureOrder(ctx context.Context, orderID string) (Capture, error)
}
