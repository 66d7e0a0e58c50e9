package payment

import (
	"fmt"
	"sync"
	"time"

	"bitpos/internal/shared/id"
)

// DefaultLightningExpiry is how long a freshly minted BOLT11 invoice
// stays payable.
const DefaultLightningExpiry = time.Hour

// LightningInvoice is a BOLT11 payment request tracked until settlement.
// The watcher goroutine mutates it while HTTP handlers read it, so every
// transition and mutable getter holds the record mutex.
type LightningInvoice struct {
	mu sync.Mutex

	id          string
	bolt11      string
	paymentHash string
	amountSats  int64
	description string
	status      Status
	backend     string
	preimage    *string
	expiresAt   time.Time
	createdAt   time.Time

	metadata map[string]interface{}
	version  int
}

func NewLightningInvoice(bolt11, paymentHash string, amountSats int64, description, backend string, expiry time.Duration, metadata map[string]interface{}) (*LightningInvoice, error) {
	if bolt11 == "" {
		return nil, fmt.Errorf("bolt11 payment request is required")
	}
	if paymentHash == "" {
		return nil, fmt.Errorf("payment hash is required")
	}
	if amountSats <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if expiry <= 0 {
		expiry = DefaultLightningExpiry
	}
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	now := time.Now().UTC()
	return &LightningInvoice{
		id:          id.MustGenerateWithPrefix(id.PrefixLightningInvoice, id.DefaultLength),
		bolt11:      bolt11,
		paymentHash: paymentHash,
		amountSats:  amountSats,
		description: description,
		status:      StatusPending,
		backend:     backend,
		expiresAt:   now.Add(expiry),
		createdAt:   now,
		metadata:    metadata,
	}, nil
}

// MarkProcessing records that the backend saw an in-flight HTLC. Some
// backends never emit this state.
func (i *LightningInvoice) MarkProcessing() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status == StatusProcessing {
		return nil
	}
	if i.status != StatusPending {
		return fmt.Errorf("cannot mark invoice processing with status %s", i.status)
	}
	i.status = StatusProcessing
	i.version++
	return nil
}

// MarkCompleted settles the invoice with the revealed preimage.
// Idempotent once completed.
func (i *LightningInvoice) MarkCompleted(preimage string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status == StatusCompleted {
		return nil
	}
	if i.status.IsTerminal() {
		return fmt.Errorf("cannot complete invoice with terminal status %s", i.status)
	}
	if preimage == "" {
		return fmt.Errorf("preimage is required to complete an invoice")
	}
	i.status = StatusCompleted
	i.preimage = &preimage
	i.version++
	return nil
}

// MarkExpired is a no-op when the invoice is already terminal.
func (i *LightningInvoice) MarkExpired() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status.IsTerminal() {
		return nil
	}
	i.status = StatusExpired
	i.version++
	return nil
}

func (i *LightningInvoice) MarkFailed(reason string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status.IsTerminal() {
		return fmt.Errorf("cannot fail invoice with terminal status %s", i.status)
	}
	i.status = StatusFailed
	i.metadata["failure_reason"] = reason
	i.version++
	return nil
}

// IsExpired reports whether the invoice passed its expiry without
// reaching a terminal state.
func (i *LightningInvoice) IsExpired() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return time.Now().UTC().After(i.expiresAt) && !i.status.IsTerminal()
}

func (i *LightningInvoice) ID() string           { return i.id }
func (i *LightningInvoice) Bolt11() string       { return i.bolt11 }
func (i *LightningInvoice) PaymentHash() string  { return i.paymentHash }
func (i *LightningInvoice) AmountSats() int64    { return i.amountSats }
func (i *LightningInvoice) Description() string  { return i.description }
func (i *LightningInvoice) Backend() string      { return i.backend }
func (i *LightningInvoice) ExpiresAt() time.Time { return i.expiresAt }
func (i *LightningInvoice) CreatedAt() time.Time { return i.createdAt }

func (i *LightningInvoice) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

func (i *LightningInvoice) Preimage() *string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.preimage
}

// Metadata returns a copy so readers never share the map with a failing
// transition.
func (i *LightningInvoice) Metadata() map[string]interface{} {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make(map[string]interface{}, len(i.metadata))
	for k, v := range i.metadata {
		out[k] = v
	}
	return out
}

func (i *LightningInvoice) Version() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.version
}
