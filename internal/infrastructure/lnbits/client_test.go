package lnbits

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpos/internal/shared/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, InvoiceKey: "test-key"}, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{InvoiceKey: "k"}, logger.Nop())
	assert.Error(t, err, "base URL is required")

	_, err = NewClient(Config{BaseURL: "http://localhost"}, logger.Nop())
	assert.Error(t, err, "invoice key is required")
}

func TestCreateInvoice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payments", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req createPaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Out)
		assert.Equal(t, int64(1000), req.Amount)
		assert.Equal(t, "coffee", req.Memo)
		assert.Equal(t, int64(3600), req.Expiry)

		json.NewEncoder(w).Encode(createPaymentResponse{
			PaymentHash:    "hash1",
			PaymentRequest: "lnbc1test",
		})
	})

	inv, err := c.CreateInvoice(context.Background(), 1000, "coffee", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "lnbc1test", inv.Bolt11)
	assert.Equal(t, "hash1", inv.PaymentHash)
}

func TestCreateInvoicePrefersBolt11Field(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createPaymentResponse{
			PaymentHash: "hash1",
			Bolt11:      "lnbc1new",
		})
	})

	inv, err := c.CreateInvoice(context.Background(), 1000, "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "lnbc1new", inv.Bolt11)
}

func TestCreateInvoiceIncomplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.CreateInvoice(context.Background(), 1000, "", time.Hour)
	assert.Error(t, err)
}

func TestPaymentState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/hash1", r.URL.Path)
		w.Write([]byte(`{"paid":true,"preimage":"pre1","details":{"pending":false}}`))
	})

	state, err := c.PaymentState(context.Background(), "hash1")
	require.NoError(t, err)
	assert.True(t, state.Settled)
	assert.False(t, state.Pending)
	assert.Equal(t, "pre1", state.Preimage)
}

func TestPaymentStatePending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"paid":false,"details":{"pending":true}}`))
	})

	state, err := c.PaymentState(context.Background(), "hash1")
	require.NoError(t, err)
	assert.False(t, state.Settled)
	assert.True(t, state.Pending)
}

func TestErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid key"}`))
	})

	_, err := c.PaymentState(context.Background(), "hash1")
	assert.Error(t, err)
}
