package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appcurrency "bitpos/internal/application/currency"
	apperrors "bitpos/internal/shared/errors"
)

const defaultMempoolBaseURL = "https://mempool.space"

// MempoolFeed reads the BTC/USD spot price from the mempool.space
// prices endpoint.
type MempoolFeed struct {
	baseURL string
	client  *http.Client
}

var _ appcurrency.BTCPriceFeed = (*MempoolFeed)(nil)

func NewMempoolFeed(baseURL string) *MempoolFeed {
	if baseURL == "" {
		baseURL = defaultMempoolBaseURL
	}
	return &MempoolFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *MempoolFeed) Name() string { return "mempool.space" }

func (f *MempoolFeed) BTCUSD(ctx context.Context) (float64, error) {
	url := f.baseURL + "/api/v1/prices"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, apperrors.NewNetworkError("mempool.space request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.NewNetworkError(fmt.Sprintf("mempool.space returned status %d", resp.StatusCode))
	}

	var body struct {
		Time int64   `json:"time"`
		USD  float64 `json:"USD"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}

	if body.USD <= 0 {
		return 0, fmt.Errorf("invalid BTC price %f", body.USD)
	}
	return body.USD, nil
}
