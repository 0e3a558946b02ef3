package paymentlinks

import (
	"context"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/pkg/razorpay"
)

// Gateway creates hosted payment links.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, req razorpay.PaymentLinkRequest) (*razorpay.PaymentLink, error)
}

// Clients hands out the store and gateway once their credentials check out.
type Clients interface {
	Store(ctx context.Context) (bookings.Repository, error)
	Gateway(ctx context.Context) (Gateway, error)
}
