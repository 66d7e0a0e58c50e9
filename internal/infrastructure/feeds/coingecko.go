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

const defaultCoinGeckoBaseURL = "https://api.coingecko.com"

// CoinGeckoFeed reads the BTC/USD spot price from the CoinGecko simple
// price API. Used as the fallback behind the mempool feed.
type CoinGeckoFeed struct {
	baseURL string
	client  *http.Client
}

var _ appcurrency.BTCPriceFeed = (*CoinGeckoFeed)(nil)

func NewCoinGeckoFeed(baseURL string) *CoinGeckoFeed {
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}
	return &CoinGeckoFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *CoinGeckoFeed) Name() string { return "coingecko" }

func (f *CoinGeckoFeed) BTCUSD(ctx context.Context) (float64, error) {
	url := f.baseURL + "/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, apperrors.NewNetworkError("coingecko request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.NewNetworkError(fmt.Sprintf("coingecko returned status %d", resp.StatusCode))
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}

	price := body["bitcoin"]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("invalid BTC price %f", price)
	}
	return price, nil
}
