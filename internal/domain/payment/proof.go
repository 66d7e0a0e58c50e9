package payment

import (
	"fmt"
	"time"

	"bitpos/internal/shared/id"
)

// PaymentProof is the only artifact handed to the order-settlement
// collaborator. For Lightning the preimage is the cryptographic proof;
// for on-chain methods PaymentHash carries the transaction hash and
// Preimage stays empty.
type PaymentProof struct {
	ID          string
	OrderID     string
	PaymentHash string
	Preimage    string
	AmountSats  int64
	Method      Method
	IsOffline   bool
	ReceivedAt  time.Time
	SyncedAt    *time.Time
}

// NewPaymentProof is a pure constructor: no I/O, no clock beyond the
// receivedAt stamp.
func NewPaymentProof(orderID, paymentHash, preimage string, amountSats int64, method Method, isOffline bool) (*PaymentProof, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order ID is required")
	}
	if paymentHash == "" {
		return nil, fmt.Errorf("payment hash is required")
	}
	if amountSats <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("invalid payment method %q", method)
	}

	return &PaymentProof{
		ID:          id.MustGenerateWithPrefix(id.PrefixPaymentProof, id.DefaultLength),
		OrderID:     orderID,
		PaymentHash: paymentHash,
		Preimage:    preimage,
		AmountSats:  amountSats,
		Method:      method,
		IsOffline:   isOffline,
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

// MarkSynced stamps the proof once the settlement collaborator has
// acknowledged it.
func (p *PaymentProof) MarkSynced(at time.Time) {
	t := at.UTC()
	p.SyncedAt = &t
}
