package bitcoin

import (
	"context"
	"time"

	"bitpos/internal/domain/payment"
)

// Provider invoice states as reported by BTCPay-compatible backends.
const (
	ProviderStatusNew        = "New"
	ProviderStatusProcessing = "Processing"
	ProviderStatusSettled    = "Settled"
	ProviderStatusExpired    = "Expired"
	ProviderStatusInvalid    = "Invalid"
)

// CreateInvoiceRequest carries everything a provider needs to open an
// on-chain checkout.
type CreateInvoiceRequest struct {
	OrderID       string
	Description   string
	AmountBTC     float64
	Fiat          float64
	FiatCurrency  string
	Confirmations int
	Expiry        time.Duration
}

// ProviderInvoice is the provider's view of a freshly opened checkout.
// Providers that quote their own rate set AmountBTC and Rate; zero
// values mean the locally computed quote stands.
type ProviderInvoice struct {
	InvoiceID   string
	Address     string
	CheckoutURL string
	AmountBTC   float64
	Rate        float64
}

// InvoiceState is a poll-time snapshot of a provider invoice.
type InvoiceState struct {
	Status        string
	Confirmations int
}

// Provider abstracts a Bitcoin on-chain payment processor.
// Implementations live under internal/infrastructure.
type Provider interface {
	// Name identifies the provider in logs and payment records.
	Name() string

	// CreateInvoice opens a checkout and returns the deposit address.
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*ProviderInvoice, error)

	// InvoiceState fetches the current state of a checkout by the
	// provider's invoice ID.
	InvoiceState(ctx context.Context, invoiceID string) (*InvoiceState, error)
}

// MapProviderStatus translates a provider invoice state into the shared
// payment status vocabulary. Unknown states map to pending so an
// unrecognized provider value never terminates a live checkout; ok is
// false so callers can log the gap.
func MapProviderStatus(providerStatus string) (payment.Status, bool) {
	switch providerStatus {
	case ProviderStatusNew:
		return payment.StatusPending, true
	case ProviderStatusProcessing:
		return payment.StatusProcessing, true
	case ProviderStatusSettled:
		return payment.StatusCompleted, true
	case ProviderStatusExpired:
		return payment.StatusExpired, true
	case ProviderStatusInvalid:
		return payment.StatusFailed, true
	default:
		return payment.StatusPending, false
	}
}
