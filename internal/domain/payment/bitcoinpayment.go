package payment

import (
	"fmt"
	"sync"
	"time"

	"bitpos/internal/shared/id"
)

// DefaultBitcoinExpiry is the checkout window for an on-chain invoice.
const DefaultBitcoinExpiry = 30 * time.Minute

// BitcoinPayment tracks one on-chain invoice from creation to a terminal
// state. Confirmations are monotonically non-decreasing until terminal.
// The watcher and HTTP handlers share the record, so transitions and
// mutable getters hold the record mutex.
type BitcoinPayment struct {
	mu sync.Mutex

	id                    string
	orderID               string
	provider              string
	providerInvoiceID     string
	address               string
	amountBTC             float64
	amountSats            int64
	amountFiat            float64
	currency              string
	exchangeRate          float64
	confirmations         int
	requiredConfirmations int
	status                Status
	expiresAt             time.Time
	createdAt             time.Time

	version int
}

type NewBitcoinPaymentParams struct {
	OrderID               string
	Provider              string
	ProviderInvoiceID     string
	Address               string
	AmountBTC             float64
	AmountSats            int64
	AmountFiat            float64
	Currency              string
	ExchangeRate          float64
	RequiredConfirmations int
	Expiry                time.Duration
}

func NewBitcoinPayment(p NewBitcoinPaymentParams) (*BitcoinPayment, error) {
	if p.OrderID == "" {
		return nil, fmt.Errorf("order ID is required")
	}
	if p.Address == "" {
		return nil, fmt.Errorf("destination address is required")
	}
	if p.AmountSats <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if p.RequiredConfirmations <= 0 {
		p.RequiredConfirmations = 1
	}
	if p.Expiry <= 0 {
		p.Expiry = DefaultBitcoinExpiry
	}

	now := time.Now().UTC()
	return &BitcoinPayment{
		id:                    id.MustGenerateWithPrefix(id.PrefixBitcoinPayment, id.DefaultLength),
		orderID:               p.OrderID,
		provider:              p.Provider,
		providerInvoiceID:     p.ProviderInvoiceID,
		address:               p.Address,
		amountBTC:             p.AmountBTC,
		amountSats:            p.AmountSats,
		amountFiat:            p.AmountFiat,
		currency:              p.Currency,
		exchangeRate:          p.ExchangeRate,
		requiredConfirmations: p.RequiredConfirmations,
		status:                StatusPending,
		expiresAt:             now.Add(p.Expiry),
		createdAt:             now,
	}, nil
}

// Transition moves the payment to next. Terminal states are sticky;
// re-applying the current status is a no-op.
func (p *BitcoinPayment) Transition(next Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !next.IsValid() {
		return fmt.Errorf("invalid status %q", next)
	}
	if p.status == next {
		return nil
	}
	if p.status.IsTerminal() {
		return fmt.Errorf("cannot transition from terminal status %s to %s", p.status, next)
	}
	p.status = next
	p.version++
	return nil
}

// SetConfirmations enforces monotonicity: a lower count than previously
// observed is ignored, and terminal payments are never updated.
func (p *BitcoinPayment) SetConfirmations(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status.IsTerminal() {
		return
	}
	if n > p.confirmations {
		p.confirmations = n
	}
}

// IsExpired reports whether the checkout window elapsed before a
// terminal state was reached.
func (p *BitcoinPayment) IsExpired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().UTC().After(p.expiresAt) && !p.status.IsTerminal()
}

func (p *BitcoinPayment) ID() string                 { return p.id }
func (p *BitcoinPayment) OrderID() string            { return p.orderID }
func (p *BitcoinPayment) Provider() string           { return p.provider }
func (p *BitcoinPayment) ProviderInvoiceID() string  { return p.providerInvoiceID }
func (p *BitcoinPayment) Address() string            { return p.address }
func (p *BitcoinPayment) AmountBTC() float64         { return p.amountBTC }
func (p *BitcoinPayment) AmountSats() int64          { return p.amountSats }
func (p *BitcoinPayment) AmountFiat() float64        { return p.amountFiat }
func (p *BitcoinPayment) Currency() string           { return p.currency }
func (p *BitcoinPayment) ExchangeRate() float64      { return p.exchangeRate }
func (p *BitcoinPayment) RequiredConfirmations() int { return p.requiredConfirmations }
func (p *BitcoinPayment) ExpiresAt() time.Time       { return p.expiresAt }
func (p *BitcoinPayment) CreatedAt() time.Time       { return p.createdAt }

func (p *BitcoinPayment) Confirmations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmations
}

func (p *BitcoinPayment) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *BitcoinPayment) Version() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}
