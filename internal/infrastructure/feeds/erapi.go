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

const defaultERAPIBaseURL = "https://open.er-api.com"

// ERAPIFeed reads fiat rates from the open.er-api.com exchange rate
// service. Rates are quoted as target units per USD.
type ERAPIFeed struct {
	baseURL string
	client  *http.Client
}

var _ appcurrency.FiatRateFeed = (*ERAPIFeed)(nil)

func NewERAPIFeed(baseURL string) *ERAPIFeed {
	if baseURL == "" {
		baseURL = defaultERAPIBaseURL
	}
	return &ERAPIFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *ERAPIFeed) Name() string { return "open.er-api.com" }

func (f *ERAPIFeed) USDRates(ctx context.Context) (map[string]float64, error) {
	url := f.baseURL + "/v6/latest/USD"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("exchange rate request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("exchange rate API returned status %d", resp.StatusCode))
	}

	var body struct {
		Result string             `json:"result"`
		Rates  map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rate response: %w", err)
	}

	if body.Result != "success" || len(body.Rates) == 0 {
		return nil, fmt.Errorf("exchange rate API returned result %q", body.Result)
	}
	return body.Rates, nil
}
