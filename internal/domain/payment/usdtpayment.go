package payment

import (
	"fmt"
	"sync"
	"time"

	"bitpos/internal/shared/id"
)

const (
	// USDTDecimals is the number of decimal places for USDT (6 decimals).
	USDTDecimals = 6
	// USDTUnit converts USDT to its smallest unit (1 USDT = 1,000,000).
	USDTUnit = 1_000_000

	// DefaultUSDTExpiry is the checkout window for a USDT invoice.
	DefaultUSDTExpiry = 30 * time.Minute
)

// USDTPayment tracks one stablecoin invoice. Amounts are carried in the
// token's smallest unit; floats appear only at display boundaries.
// The watcher and HTTP handlers share the record, so transitions and
// mutable getters hold the record mutex.
type USDTPayment struct {
	mu sync.Mutex

	id                    string
	orderID               string
	network               Network
	address               string
	amountRaw             uint64
	amountFiat            float64
	currency              string
	exchangeRate          float64
	confirmations         int
	requiredConfirmations int
	status                Status
	networkFee            float64
	txHash                *string
	expiresAt             time.Time
	createdAt             time.Time

	version int
}

type NewUSDTPaymentParams struct {
	OrderID               string
	Network               Network
	Address               string
	AmountRaw             uint64
	AmountFiat            float64
	Currency              string
	ExchangeRate          float64
	RequiredConfirmations int
	NetworkFee            float64
	Expiry                time.Duration
}

func NewUSDTPayment(p NewUSDTPaymentParams) (*USDTPayment, error) {
	if p.OrderID == "" {
		return nil, fmt.Errorf("order ID is required")
	}
	if !p.Network.IsValid() {
		return nil, fmt.Errorf("invalid network %q", p.Network)
	}
	if err := p.Network.ValidateAddress(p.Address); err != nil {
		return nil, fmt.Errorf("invalid receiving address: %w", err)
	}
	if p.AmountRaw == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if p.RequiredConfirmations <= 0 {
		p.RequiredConfirmations = p.Network.RequiredConfirmations()
	}
	if p.Expiry <= 0 {
		p.Expiry = DefaultUSDTExpiry
	}

	now := time.Now().UTC()
	return &USDTPayment{
		id:                    id.MustGenerateWithPrefix(id.PrefixUSDTPayment, id.DefaultLength),
		orderID:               p.OrderID,
		network:               p.Network,
		address:               p.Address,
		amountRaw:             p.AmountRaw,
		amountFiat:            p.AmountFiat,
		currency:              p.Currency,
		exchangeRate:          p.ExchangeRate,
		requiredConfirmations: p.RequiredConfirmations,
		status:                StatusPending,
		networkFee:            p.NetworkFee,
		expiresAt:             now.Add(p.Expiry),
		createdAt:             now,
	}, nil
}

// MarkCompleted settles the payment against a matched on-chain transfer.
// Idempotent once completed.
func (p *USDTPayment) MarkCompleted(txHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusCompleted {
		return nil
	}
	if p.status.IsTerminal() {
		return fmt.Errorf("cannot complete payment with terminal status %s", p.status)
	}
	if txHash == "" {
		return fmt.Errorf("transaction hash is required")
	}
	p.status = StatusCompleted
	p.txHash = &txHash
	p.version++
	return nil
}

// MarkExpired is a no-op when the payment is already terminal.
func (p *USDTPayment) MarkExpired() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status.IsTerminal() {
		return nil
	}
	p.status = StatusExpired
	p.version++
	return nil
}

func (p *USDTPayment) MarkFailed() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status.IsTerminal() {
		return fmt.Errorf("cannot fail payment with terminal status %s", p.status)
	}
	p.status = StatusFailed
	p.version++
	return nil
}

// SetConfirmations enforces monotonicity while the payment is live.
func (p *USDTPayment) SetConfirmations(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status.IsTerminal() {
		return
	}
	if n > p.confirmations {
		p.confirmations = n
	}
}

func (p *USDTPayment) IsExpired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().UTC().After(p.expiresAt) && !p.status.IsTerminal()
}

// AmountUSDT returns the token amount as a float for display purposes.
func (p *USDTPayment) AmountUSDT() float64 {
	return float64(p.amountRaw) / float64(USDTUnit)
}

func (p *USDTPayment) ID() string                 { return p.id }
func (p *USDTPayment) OrderID() string            { return p.orderID }
func (p *USDTPayment) Network() Network           { return p.network }
func (p *USDTPayment) Address() string            { return p.address }
func (p *USDTPayment) AmountRaw() uint64          { return p.amountRaw }
func (p *USDTPayment) AmountFiat() float64        { return p.amountFiat }
func (p *USDTPayment) Currency() string           { return p.currency }
func (p *USDTPayment) ExchangeRate() float64      { return p.exchangeRate }
func (p *USDTPayment) RequiredConfirmations() int { return p.requiredConfirmations }
func (p *USDTPayment) NetworkFee() float64        { return p.networkFee }
func (p *USDTPayment) ExpiresAt() time.Time       { return p.expiresAt }
func (p *USDTPayment) CreatedAt() time.Time       { return p.createdAt }

func (p *USDTPayment) Confirmations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmations
}

func (p *USDTPayment) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *USDTPayment) TxHash() *string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txHash
}

func (p *USDTPayment) Version() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// FloatToRawAmount converts a float USDT amount to the smallest unit,
// rounding to nearest.
func FloatToRawAmount(amount float64) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(amount*float64(USDTUnit) + 0.5)
}

// RawAmountToFloat converts the smallest unit back to a float amount.
func RawAmountToFloat(raw uint64) float64 {
	return float64(raw) / float64(USDTUnit)
}
