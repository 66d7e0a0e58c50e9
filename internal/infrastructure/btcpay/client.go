package btcpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitpos/internal/application/bitcoin"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

// Config holds the Greenfield API coordinates of one BTCPay store.
type Config struct {
	ServerURL string
	APIKey    string
	StoreID   string
	Timeout   time.Duration
}

// Client implements the on-chain provider against the BTCPay Server
// Greenfield API.
type Client struct {
	serverURL string
	apiKey    string
	storeID   string
	client    *http.Client
	log       logger.Interface
}

var _ bitcoin.Provider = (*Client)(nil)

func NewClient(cfg Config, log logger.Interface) (*Client, error) {
	if cfg.ServerURL == "" || cfg.APIKey == "" || cfg.StoreID == "" {
		return nil, apperrors.NewConfigurationError("btcpay server URL, API key and store ID are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		apiKey:    cfg.APIKey,
		storeID:   cfg.StoreID,
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       log.Named("btcpay"),
	}, nil
}

func (c *Client) Name() string { return "btcpay" }

// speedPolicy maps a confirmation requirement onto BTCPay's checkout
// speed vocabulary.
func speedPolicy(confirmations int) string {
	switch confirmations {
	case 1:
		return "LowSpeed"
	case 3:
		return "MediumSpeed"
	default:
		return "HighSpeed"
	}
}

type createInvoiceRequest struct {
	Amount   string            `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Checkout struct {
		SpeedPolicy       string   `json:"speedPolicy"`
		ExpirationMinutes int      `json:"expirationMinutes"`
		PaymentMethods    []string `json:"paymentMethods"`
	} `json:"checkout"`
}

type invoiceResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkoutLink"`
}

type paymentMethodResponse struct {
	PaymentMethodID string `json:"paymentMethodId"`
	Destination     string `json:"destination"`
	Amount          string `json:"amount"`
	Rate            string `json:"rate"`
	Payments        []struct {
		ID string `json:"id"`
	} `json:"payments"`
}

func (c *Client) CreateInvoice(ctx context.Context, req bitcoin.CreateInvoiceRequest) (*bitcoin.ProviderInvoice, error) {
	payload := createInvoiceRequest{
		Amount:   strconv.FormatFloat(req.Fiat, 'f', -1, 64),
		Currency: req.FiatCurrency,
		Metadata: map[string]string{
			"orderId":  req.OrderID,
			"itemDesc": req.Description,
		},
	}
	payload.Checkout.SpeedPolicy = speedPolicy(req.Confirmations)
	payload.Checkout.ExpirationMinutes = int(req.Expiry.Minutes())
	payload.Checkout.PaymentMethods = []string{"BTC-CHAIN"}

	var inv invoiceResponse
	path := fmt.Sprintf("/api/v1/stores/%s/invoices", c.storeID)
	if err := c.do(ctx, http.MethodPost, path, payload, &inv); err != nil {
		return nil, err
	}

	address, amountBTC, rate, err := c.onChainPaymentMethod(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	return &bitcoin.ProviderInvoice{
		InvoiceID:   inv.ID,
		Address:     address,
		CheckoutURL: inv.CheckoutURL,
		AmountBTC:   amountBTC,
		Rate:        rate,
	}, nil
}

// onChainPaymentMethod extracts destination, BTC amount and rate from
// the invoice's on-chain payment method.
func (c *Client) onChainPaymentMethod(ctx context.Context, invoiceID string) (address string, amountBTC, rate float64, err error) {
	var methods []paymentMethodResponse
	path := fmt.Sprintf("/api/v1/stores/%s/invoices/%s/payment-methods", c.storeID, invoiceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &methods); err != nil {
		return "", 0, 0, err
	}

	for _, m := range methods {
		if !strings.Contains(m.PaymentMethodID, "CHAIN") {
			continue
		}
		amountBTC, _ = strconv.ParseFloat(m.Amount, 64)
		rate, _ = strconv.ParseFloat(m.Rate, 64)
		return m.Destination, amountBTC, rate, nil
	}
	return "", 0, 0, fmt.Errorf("invoice %s has no on-chain payment method", invoiceID)
}

func (c *Client) InvoiceState(ctx context.Context, invoiceID string) (*bitcoin.InvoiceState, error) {
	var inv invoiceResponse
	path := fmt.Sprintf("/api/v1/stores/%s/invoices/%s", c.storeID, invoiceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &inv); err != nil {
		return nil, err
	}

	confirmations := 0
	if inv.Status == bitcoin.ProviderStatusSettled {
		confirmations = 1
	}

	return &bitcoin.InvoiceState{
		Status:        inv.Status,
		Confirmations: confirmations,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("btcpay request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warnw("btcpay error response",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return apperrors.NewNetworkError(fmt.Sprintf("btcpay returned status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode btcpay response: %w", err)
	}
	return nil
}
