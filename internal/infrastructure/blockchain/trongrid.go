package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bitpos/internal/application/usdt"
	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

const defaultTronGridBaseURL = "https://api.trongrid.io"

// TronGridConfig holds the TronGrid API coordinates. The API key is
// optional but raises the rate limit considerably.
type TronGridConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// TronMonitor reads confirmed TRC-20 USDT transfers through the
// TronGrid account API.
type TronMonitor struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Interface
}

var _ usdt.TransactionMonitor = (*TronMonitor)(nil)

func NewTronMonitor(cfg TronGridConfig, log logger.Interface) *TronMonitor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTronGridBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &TronMonitor{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log.Named("tron-monitor"),
	}
}

func (m *TronMonitor) Network() payment.Network { return payment.NetworkTRC }

type trc20Transfer struct {
	TransactionID  string `json:"transaction_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Value          string `json:"value"`
	BlockTimestamp int64  `json:"block_timestamp"`
}

type trc20Response struct {
	Data    []trc20Transfer `json:"data"`
	Success bool            `json:"success"`
}

// RecentTransfers lists confirmed incoming USDT transfers. TronGrid
// only returns confirmed transactions here, so a reported transfer
// already carries the network's required confirmation depth.
func (m *TronMonitor) RecentTransfers(ctx context.Context, address string, since time.Time) ([]usdt.Transfer, error) {
	q := url.Values{}
	q.Set("only_to", "true")
	q.Set("only_confirmed", "true")
	q.Set("limit", "50")
	q.Set("contract_address", payment.NetworkTRC.USDTContractAddress())
	q.Set("min_timestamp", strconv.FormatInt(since.UnixMilli(), 10))

	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", m.baseURL, address, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if m.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("trongrid request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("trongrid returned status %d", resp.StatusCode))
	}

	var body trc20Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode trongrid response: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("trongrid reported an unsuccessful query")
	}

	transfers := make([]usdt.Transfer, 0, len(body.Data))
	for _, t := range body.Data {
		amount, err := strconv.ParseUint(t.Value, 10, 64)
		if err != nil {
			m.log.Warnw("skipping transfer with unparseable value",
				"tx_hash", t.TransactionID,
				"value", t.Value,
			)
			continue
		}
		transfers = append(transfers, usdt.Transfer{
			TxHash:        t.TransactionID,
			From:          t.From,
			To:            t.To,
			Amount:        amount,
			Confirmations: payment.NetworkTRC.RequiredConfirmations(),
			Timestamp:     time.UnixMilli(t.BlockTimestamp).UTC(),
		})
	}
	return transfers, nil
}
