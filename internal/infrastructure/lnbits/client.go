package lnbits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bitpos/internal/application/lightning"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

// Config holds the LNbits endpoint and the wallet's invoice key. The
// invoice key can create and read invoices but cannot spend.
type Config struct {
	BaseURL    string
	InvoiceKey string
	Timeout    time.Duration
}

// Client implements the Lightning backend against the LNbits wallet
// REST API.
type Client struct {
	baseURL    string
	invoiceKey string
	client     *http.Client
	log        logger.Interface
}

var _ lightning.Backend = (*Client)(nil)

func NewClient(cfg Config, log logger.Interface) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.NewConfigurationError("lnbits base URL is required")
	}
	if cfg.InvoiceKey == "" {
		return nil, apperrors.NewConfigurationError("lnbits invoice key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		invoiceKey: cfg.InvoiceKey,
		client:     &http.Client{Timeout: cfg.Timeout},
		log:        log.Named("lnbits"),
	}, nil
}

func (c *Client) Name() string { return "lnbits" }

type createPaymentRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
	Expiry int64  `json:"expiry,omitempty"`
	Unit   string `json:"unit"`
}

type createPaymentResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Bolt11         string `json:"bolt11"`
}

func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string, expiry time.Duration) (*lightning.Invoice, error) {
	payload := createPaymentRequest{
		Out:    false,
		Amount: amountSats,
		Memo:   memo,
		Expiry: int64(expiry.Seconds()),
		Unit:   "sat",
	}

	var resp createPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments", payload, &resp); err != nil {
		return nil, err
	}

	bolt11 := resp.Bolt11
	if bolt11 == "" {
		bolt11 = resp.PaymentRequest
	}
	if bolt11 == "" || resp.PaymentHash == "" {
		return nil, fmt.Errorf("lnbits returned an incomplete invoice")
	}

	return &lightning.Invoice{
		Bolt11:      bolt11,
		PaymentHash: resp.PaymentHash,
	}, nil
}

type paymentStatusResponse struct {
	Paid     bool   `json:"paid"`
	Preimage string `json:"preimage"`
	Details  struct {
		Pending bool   `json:"pending"`
		Expiry  *int64 `json:"expiry"`
	} `json:"details"`
}

func (c *Client) PaymentState(ctx context.Context, paymentHash string) (*lightning.PaymentState, error) {
	var resp paymentStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/payments/"+paymentHash, nil, &resp); err != nil {
		return nil, err
	}

	return &lightning.PaymentState{
		Settled:  resp.Paid,
		Pending:  !resp.Paid && resp.Details.Pending,
		Preimage: resp.Preimage,
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.invoiceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("lnbits request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warnw("lnbits error response",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return apperrors.NewNetworkError(fmt.Sprintf("lnbits returned status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode lnbits response: %w", err)
	}
	return nil
}
