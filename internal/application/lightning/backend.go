package lightning

import (
	"context"
	"errors"
	"time"
)

// ErrOffersUnsupported is returned by backends that cannot mint BOLT12
// offers. Callers probe with OffersSupported before relying on them.
var ErrOffersUnsupported = errors.New("backend does not support bolt12 offers")

// Invoice is the backend's view of a freshly created BOLT11 invoice.
type Invoice struct {
	Bolt11      string
	PaymentHash string
}

// PaymentState is the backend's view of an invoice at poll time. The
// preimage is only populated once the payment settled.
type PaymentState struct {
	Settled  bool
	Pending  bool
	Preimage string
}

// Backend abstracts a Lightning node or custodial API. Implementations
// live under internal/infrastructure.
type Backend interface {
	// Name identifies the backend in logs and invoice metadata.
	Name() string

	// CreateInvoice mints a BOLT11 invoice for the given amount.
	CreateInvoice(ctx context.Context, amountSats int64, memo string, expiry time.Duration) (*Invoice, error)

	// PaymentState looks up the settlement state of an invoice by its
	// payment hash.
	PaymentState(ctx context.Context, paymentHash string) (*PaymentState, error)
}

// Offer is a reusable BOLT12 payment code.
type Offer struct {
	Bolt12      string
	Description string
}

// OfferBackend is an optional capability. Backends without native
// BOLT12 support simply do not implement it.
type OfferBackend interface {
	Backend

	// CreateOffer mints a reusable BOLT12 offer. Returns
	// ErrOffersUnsupported when the underlying node has offers
	// disabled.
	CreateOffer(ctx context.Context, description string) (*Offer, error)
}
