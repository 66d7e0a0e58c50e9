package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"bitpos/internal/application/usdt"
	"bitpos/internal/domain/currency"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com"

	// maxCacheAge bounds how stale a cached tether price may be before
	// a refetch is attempted.
	maxCacheAge = 5 * time.Minute

	// maxRateDeviation rejects a fresh quote that moved more than this
	// fraction from the cached one. Tether trades in a tight band, so a
	// large jump is a bad data point, not a market move.
	maxRateDeviation = 0.10
)

// Converter turns USD amounts into other fiat currencies. The currency
// engine satisfies it.
type Converter interface {
	Convert(amount float64, from, to string) float64
}

// USDTRateService quotes fiat-per-USDT rates. The tether/USD price
// comes from CoinGecko with a cached fallback and a 1:1 peg as the
// last resort; other fiat currencies pivot through the converter.
type USDTRateService struct {
	baseURL   string
	client    *http.Client
	converter Converter
	log       logger.Interface

	mu        sync.RWMutex
	cachedUSD float64
	fetchedAt time.Time
}

var _ usdt.RateService = (*USDTRateService)(nil)

func NewUSDTRateService(baseURL string, converter Converter, log logger.Interface) *USDTRateService {
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}
	return &USDTRateService{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		converter: converter,
		log:       log.Named("usdt-rate"),
	}
}

// USDTRate returns how many units of the fiat currency one USDT is
// worth. Never fails on feed trouble: the cached price, then the 1:1
// peg, backstop the live quote.
func (s *USDTRateService) USDTRate(ctx context.Context, fiatCurrency string) (float64, error) {
	if !currency.IsSupported(fiatCurrency) {
		return 0, apperrors.NewValidationError("unsupported currency", fiatCurrency)
	}

	usdPrice := s.tetherUSD(ctx)

	if fiatCurrency == currency.USD {
		return usdPrice, nil
	}

	rate := s.converter.Convert(usdPrice, currency.USD, fiatCurrency)
	if rate <= 0 {
		return 0, apperrors.NewConfigurationError("no conversion path to fiat currency", fiatCurrency)
	}
	return rate, nil
}

// tetherUSD resolves the tether/USD price: live quote when fresh data
// is due and sane, cached otherwise, 1.0 peg when nothing else exists.
func (s *USDTRateService) tetherUSD(ctx context.Context) float64 {
	s.mu.RLock()
	cached := s.cachedUSD
	age := time.Since(s.fetchedAt)
	s.mu.RUnlock()

	if cached > 0 && age < maxCacheAge {
		return cached
	}

	price, err := s.fetchTetherUSD(ctx)
	if err != nil {
		s.log.Warnw("tether price fetch failed",
			"error", err,
			"cached", cached,
		)
		if cached > 0 {
			return cached
		}
		return 1.0
	}

	if cached > 0 && math.Abs(price-cached)/cached > maxRateDeviation {
		s.log.Warnw("rejecting implausible tether price",
			"fetched", price,
			"cached", cached,
		)
		return cached
	}

	s.mu.Lock()
	s.cachedUSD = price
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return price
}

func (s *USDTRateService) fetchTetherUSD(ctx context.Context) (float64, error) {
	url := s.baseURL + "/api/v3/simple/price?ids=tether&vs_currencies=usd"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
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

	price := body["tether"]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("invalid tether price %f", price)
	}
	return price, nil
}
