package blockonomics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitpos/internal/application/bitcoin"
	"bitpos/internal/domain/currency"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/id"
	"bitpos/internal/shared/logger"
)

const defaultBaseURL = "https://www.blockonomics.co"

// Config holds the Blockonomics merchant API credentials. Addresses are
// derived server-side from the xpub registered with the account.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// invoice is the client's local record of one checkout. Blockonomics
// has no invoice object, so settlement is judged from address balances.
type invoice struct {
	address      string
	expectedSats int64
	createdAt    time.Time
}

// Client implements the on-chain provider against the Blockonomics
// merchant API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Interface

	mu       sync.Mutex
	invoices map[string]*invoice
}

var _ bitcoin.Provider = (*Client)(nil)

func NewClient(cfg Config, log logger.Interface) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewConfigurationError("blockonomics API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log.Named("blockonomics"),
		invoices: make(map[string]*invoice),
	}, nil
}

func (c *Client) Name() string { return "blockonomics" }

func (c *Client) CreateInvoice(ctx context.Context, req bitcoin.CreateInvoiceRequest) (*bitcoin.ProviderInvoice, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/new_address", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Address == "" {
		return nil, fmt.Errorf("blockonomics returned an empty address")
	}

	expectedSats := decimal.NewFromFloat(req.AmountBTC).
		Mul(decimal.NewFromInt(currency.SatsPerBTC)).
		Round(0).
		IntPart()

	invoiceID := id.MustGenerateWithPrefix("bnc", id.DefaultLength)

	c.mu.Lock()
	c.invoices[invoiceID] = &invoice{
		address:      resp.Address,
		expectedSats: expectedSats,
		createdAt:    time.Now().UTC(),
	}
	c.mu.Unlock()

	return &bitcoin.ProviderInvoice{
		InvoiceID: invoiceID,
		Address:   resp.Address,
	}, nil
}

// InvoiceState judges settlement from the address balance: any
// unconfirmed balance means the payment is in flight, a confirmed
// balance covering the expected amount settles it.
func (c *Client) InvoiceState(ctx context.Context, invoiceID string) (*bitcoin.InvoiceState, error) {
	c.mu.Lock()
	inv, ok := c.invoices[invoiceID]
	c.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("unknown invoice", invoiceID)
	}

	payload := map[string]string{"addr": inv.address}
	var resp struct {
		Response []struct {
			Addr        string `json:"addr"`
			Confirmed   int64  `json:"confirmed"`
			Unconfirmed int64  `json:"unconfirmed"`
		} `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/balance", payload, &resp); err != nil {
		return nil, err
	}

	state := &bitcoin.InvoiceState{Status: bitcoin.ProviderStatusNew}
	for _, entry := range resp.Response {
		if !strings.EqualFold(entry.Addr, inv.address) {
			continue
		}
		switch {
		case entry.Confirmed >= inv.expectedSats:
			state.Status = bitcoin.ProviderStatusSettled
			state.Confirmations = 1
		case entry.Unconfirmed > 0 || entry.Confirmed > 0:
			state.Status = bitcoin.ProviderStatusProcessing
		}
	}
	return state, nil
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("blockonomics request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warnw("blockonomics error response",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return apperrors.NewNetworkError(fmt.Sprintf("blockonomics returned status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode blockonomics response: %w", err)
	}
	return nil
}
