package payment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoice(t *testing.T) *LightningInvoice {
	t.Helper()
	inv, err := NewLightningInvoice("lnbc1...", "abc123", 1000, "coffee", "lnbits", time.Hour, nil)
	require.NoError(t, err)
	return inv
}

func TestNewLightningInvoice(t *testing.T) {
	inv := newTestInvoice(t)

	assert.Equal(t, StatusPending, inv.Status())
	assert.Equal(t, int64(1000), inv.AmountSats())
	assert.Equal(t, "lnbits", inv.Backend())
	assert.Nil(t, inv.Preimage())
	assert.Contains(t, inv.ID(), "ln_")
	assert.WithinDuration(t, time.Now().Add(time.Hour), inv.ExpiresAt(), 5*time.Second)
}

func TestNewLightningInvoiceValidation(t *testing.T) {
	tests := []struct {
		name        string
		bolt11      string
		paymentHash string
		amountSats  int64
	}{
		{"missing bolt11", "", "hash", 1000},
		{"missing payment hash", "lnbc1...", "", 1000},
		{"zero amount", "lnbc1...", "hash", 0},
		{"negative amount", "lnbc1...", "hash", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLightningInvoice(tt.bolt11, tt.paymentHash, tt.amountSats, "", "lnbits", time.Hour, nil)
			assert.Error(t, err)
		})
	}
}

func TestLightningInvoiceLifecycle(t *testing.T) {
	inv := newTestInvoice(t)

	require.NoError(t, inv.MarkProcessing())
	assert.Equal(t, StatusProcessing, inv.Status())

	require.NoError(t, inv.MarkCompleted("deadbeef"))
	assert.Equal(t, StatusCompleted, inv.Status())
	require.NotNil(t, inv.Preimage())
	assert.Equal(t, "deadbeef", *inv.Preimage())

	// Completion is idempotent.
	require.NoError(t, inv.MarkCompleted("deadbeef"))

	// Terminal states are sticky.
	assert.NoError(t, inv.MarkExpired())
	assert.Equal(t, StatusCompleted, inv.Status())
	assert.Error(t, inv.MarkFailed("too late"))
}

func TestLightningInvoiceCompleteRequiresPreimage(t *testing.T) {
	inv := newTestInvoice(t)
	assert.Error(t, inv.MarkCompleted(""))
	assert.Equal(t, StatusPending, inv.Status())
}

func TestLightningInvoiceExpiry(t *testing.T) {
	inv, err := NewLightningInvoice("lnbc1...", "abc123", 1000, "", "lnbits", time.Millisecond, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.True(t, inv.IsExpired())

	require.NoError(t, inv.MarkExpired())
	assert.Equal(t, StatusExpired, inv.Status())

	// A terminal invoice no longer reports expired.
	assert.False(t, inv.IsExpired())
}

func TestLightningInvoiceConcurrentAccess(t *testing.T) {
	inv := newTestInvoice(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = inv.Status()
			_ = inv.Preimage()
			_ = inv.Metadata()
			_ = inv.IsExpired()
		}
	}()
	go func() {
		defer wg.Done()
		_ = inv.MarkProcessing()
		_ = inv.MarkCompleted("aabb")
	}()
	wg.Wait()

	assert.Equal(t, StatusCompleted, inv.Status())
}
