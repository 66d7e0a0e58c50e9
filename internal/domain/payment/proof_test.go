package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaymentProof(t *testing.T) {
	proof, err := NewPaymentProof("order-1", "hash1", "preimage1", 1000, MethodLightning, false)
	require.NoError(t, err)

	assert.Contains(t, proof.ID, "proof_")
	assert.Equal(t, "order-1", proof.OrderID)
	assert.Equal(t, "preimage1", proof.Preimage)
	assert.Equal(t, int64(1000), proof.AmountSats)
	assert.False(t, proof.IsOffline)
	assert.Nil(t, proof.SyncedAt)
}

func TestNewPaymentProofValidation(t *testing.T) {
	tests := []struct {
		name        string
		orderID     string
		paymentHash string
		amountSats  int64
		method      Method
	}{
		{"missing order", "", "hash", 1000, MethodLightning},
		{"missing hash", "order-1", "", 1000, MethodLightning},
		{"zero amount", "order-1", "hash", 0, MethodLightning},
		{"bad method", "order-1", "hash", 1000, Method("card")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPaymentProof(tt.orderID, tt.paymentHash, "", tt.amountSats, tt.method, false)
			assert.Error(t, err)
		})
	}
}

func TestMarkSynced(t *testing.T) {
	proof, err := NewPaymentProof("order-1", "hash1", "", 1000, MethodBitcoin, true)
	require.NoError(t, err)

	now := time.Now()
	proof.MarkSynced(now)
	require.NotNil(t, proof.SyncedAt)
	assert.Equal(t, now.UTC(), *proof.SyncedAt)
}
