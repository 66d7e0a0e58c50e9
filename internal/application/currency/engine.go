package currency

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitpos/internal/application/watcher"
	"bitpos/internal/domain/currency"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
	"bitpos/internal/shared/metrics"
)

const (
	// DefaultRefreshPeriod is how often rates are re-fetched.
	DefaultRefreshPeriod = 5 * time.Minute
	// DefaultFallbackBTCPriceUSD seeds the engine before the first
	// successful feed fetch.
	DefaultFallbackBTCPriceUSD = 100_000
)

// DefaultFallbackFiatRates is the hardcoded units-per-USD table used
// when the fiat feed has never succeeded.
var DefaultFallbackFiatRates = map[string]float64{
	currency.LAK: 20_500,
	currency.THB: 35,
}

// EngineConfig carries the refresh policy and the last-resort fallbacks.
type EngineConfig struct {
	RefreshPeriod       time.Duration
	FallbackBTCPriceUSD float64
	FallbackFiatRates   map[string]float64
}

// Engine owns the rate store and keeps the conversion graph fresh. All
// mutable state is serialized behind its mutex; the refresh loop is the
// only writer once Initialize has run.
type Engine struct {
	store     *currency.RateStore
	primary   BTCPriceFeed
	secondary BTCPriceFeed
	fiat      FiatRateFeed
	log       logger.Interface

	refreshPeriod       time.Duration
	fallbackBTCPriceUSD float64
	fallbackFiatRates   map[string]float64

	mu        sync.Mutex
	base      string
	btcPrice  float64            // last BTC/USD the engine settled on, 0 before first refresh
	fiatRates map[string]float64 // last fiat units-per-USD table
	refresh   *watcher.Watcher
}

func NewEngine(store *currency.RateStore, primary, secondary BTCPriceFeed, fiat FiatRateFeed, cfg EngineConfig, log logger.Interface) *Engine {
	if cfg.RefreshPeriod <= 0 {
		cfg.RefreshPeriod = DefaultRefreshPeriod
	}
	if cfg.FallbackBTCPriceUSD <= 0 {
		cfg.FallbackBTCPriceUSD = DefaultFallbackBTCPriceUSD
	}
	if len(cfg.FallbackFiatRates) == 0 {
		cfg.FallbackFiatRates = DefaultFallbackFiatRates
	}

	return &Engine{
		store:               store,
		primary:             primary,
		secondary:           secondary,
		fiat:                fiat,
		log:                 log.Named("currency-engine"),
		refreshPeriod:       cfg.RefreshPeriod,
		fallbackBTCPriceUSD: cfg.FallbackBTCPriceUSD,
		fallbackFiatRates:   cfg.FallbackFiatRates,
	}
}

// Initialize sets the base currency, performs an initial refresh and
// starts the periodic refresh loop. Idempotent: a repeated call restarts
// the loop instead of stacking a second timer.
func (e *Engine) Initialize(ctx context.Context, baseCurrency string) error {
	if !currency.IsSupported(baseCurrency) {
		return apperrors.NewValidationError("unsupported base currency", baseCurrency)
	}

	e.mu.Lock()
	e.base = baseCurrency
	prev := e.refresh
	e.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	e.RefreshRates(ctx)

	w := watcher.New(e.log,
		watcher.WithName("rate-refresh"),
		watcher.WithInterval(e.refreshPeriod),
		watcher.WithCheckErrorHook(func(err error) {
			metrics.WatcherCheckErrors.WithLabelValues("currency").Inc()
		}),
	)

	// The initial refresh already ran synchronously; skip the loop's
	// immediate first invocation to keep the feed cadence at one fetch
	// per period.
	first := true
	fn := func(ctx context.Context) (bool, error) {
		if first {
			first = false
			return false, nil
		}
		e.RefreshRates(ctx)
		return false, nil
	}

	if err := w.Start(ctx, fn); err != nil {
		return fmt.Errorf("failed to start rate refresh: %w", err)
	}

	e.mu.Lock()
	e.refresh = w
	e.mu.Unlock()

	e.log.Infow("currency engine initialized",
		"base_currency", baseCurrency,
		"refresh_period", e.refreshPeriod,
	)

	return nil
}

// Close stops the periodic refresh. No rate mutation happens after it
// returns.
func (e *Engine) Close() {
	e.mu.Lock()
	w := e.refresh
	e.refresh = nil
	e.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// BaseCurrency returns the configured display currency.
func (e *Engine) BaseCurrency() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base
}

// RefreshRates re-fetches the BTC and fiat prices and rebuilds the
// conversion graph. Feed failures never surface to the caller: each
// fetch falls back to the cached value, then to the hardcoded default,
// and the failure is recorded for observability.
func (e *Engine) RefreshRates(ctx context.Context) {
	btcPrice, btcFetched := e.fetchBTCPrice(ctx)
	fiatRates, fiatFetched := e.fetchFiatRates(ctx)

	if !btcFetched && !fiatFetched {
		metrics.RateRefreshFailures.Inc()
	}

	e.mu.Lock()
	e.btcPrice = btcPrice
	e.fiatRates = fiatRates
	e.mu.Unlock()

	metrics.BTCPriceUSD.Set(btcPrice)

	e.storeRates(btcPrice, fiatRates)

	e.log.Debugw("rates refreshed",
		"btc_usd", btcPrice,
		"btc_feed_live", btcFetched,
		"fiat_feed_live", fiatFetched,
	)
}

// fetchBTCPrice tries the primary feed, then the secondary, then the
// cached price, then the hardcoded default.
func (e *Engine) fetchBTCPrice(ctx context.Context) (price float64, fetched bool) {
	if e.primary != nil {
		p, err := e.primary.BTCUSD(ctx)
		if err == nil && p > 0 {
			return p, true
		}
		e.log.Warnw("primary BTC price feed failed",
			"feed", e.primary.Name(),
			"error", err,
		)
	}

	if e.secondary != nil {
		p, err := e.secondary.BTCUSD(ctx)
		if err == nil && p > 0 {
			return p, true
		}
		e.log.Warnw("secondary BTC price feed failed",
			"feed", e.secondary.Name(),
			"error", err,
		)
	}

	e.mu.Lock()
	cached := e.btcPrice
	e.mu.Unlock()

	if cached > 0 {
		return cached, false
	}
	return e.fallbackBTCPriceUSD, false
}

// fetchFiatRates tries the fiat feed, then the cached table, then the
// hardcoded fallback table.
func (e *Engine) fetchFiatRates(ctx context.Context) (rates map[string]float64, fetched bool) {
	if e.fiat != nil {
		r, err := e.fiat.USDRates(ctx)
		if err == nil && len(r) > 0 {
			return r, true
		}
		e.log.Warnw("fiat rate feed failed",
			"feed", e.fiat.Name(),
			"error", err,
		)
	}

	e.mu.Lock()
	cached := e.fiatRates
	e.mu.Unlock()

	if len(cached) > 0 {
		return cached, false
	}
	return e.fallbackFiatRates, false
}

// storeRates writes every edge of the conversion graph. BTC↔SATS is a
// definition, not a market rate, and carries the manual source.
func (e *Engine) storeRates(btcPrice float64, fiatRates map[string]float64) {
	put := func(from, to string, rate float64, source currency.RateSource) {
		if err := e.store.Put(from, to, rate, source); err != nil {
			e.log.Warnw("failed to store rate",
				"from", from,
				"to", to,
				"rate", rate,
				"error", err,
			)
		}
	}

	put(currency.BTC, currency.USD, btcPrice, currency.RateSourceAPI)
	put(currency.BTC, currency.SATS, currency.SatsPerBTC, currency.RateSourceManual)

	lakPerUSD := fiatRates[currency.LAK]
	thbPerUSD := fiatRates[currency.THB]

	if lakPerUSD > 0 {
		put(currency.USD, currency.LAK, lakPerUSD, currency.RateSourceAPI)
		put(currency.BTC, currency.LAK, btcPrice*lakPerUSD, currency.RateSourceAPI)
		put(currency.SATS, currency.LAK, btcPrice*lakPerUSD/currency.SatsPerBTC, currency.RateSourceAPI)
	}
	if thbPerUSD > 0 {
		put(currency.USD, currency.THB, thbPerUSD, currency.RateSourceAPI)
		put(currency.BTC, currency.THB, btcPrice*thbPerUSD, currency.RateSourceAPI)
		put(currency.SATS, currency.THB, btcPrice*thbPerUSD/currency.SatsPerBTC, currency.RateSourceAPI)
	}
	if lakPerUSD > 0 && thbPerUSD > 0 {
		put(currency.THB, currency.LAK, lakPerUSD/thbPerUSD, currency.RateSourceAPI)
	}

	put(currency.SATS, currency.USD, btcPrice/currency.SatsPerBTC, currency.RateSourceAPI)
}

// GetRate resolves a conversion rate: identity for equal codes, the
// direct edge when stored, otherwise a two-hop pivot through USD. No
// longer paths are attempted; an unreachable pair yields 0.
func (e *Engine) GetRate(from, to string) float64 {
	if from == to {
		return 1
	}

	if r, ok := e.store.Get(from, to); ok {
		return r.Rate
	}

	fromUSD, okFrom := e.store.Get(from, currency.USD)
	usdTo, okTo := e.store.Get(currency.USD, to)
	if okFrom && okTo {
		return fromUSD.Rate * usdTo.Rate
	}

	e.log.Warnw("no conversion path",
		"from", from,
		"to", to,
	)
	return 0
}

// Convert converts an amount between currencies; 0 means unconvertible.
func (e *Engine) Convert(amount float64, from, to string) float64 {
	return amount * e.GetRate(from, to)
}

// ToSats converts an amount to satoshis. BTC is exact integer
// multiplication via decimal arithmetic, SATS is identity; everything
// else goes through the conversion graph and rounds to nearest.
func (e *Engine) ToSats(amount float64, from string) int64 {
	switch from {
	case currency.BTC:
		return decimal.NewFromFloat(amount).
			Mul(decimal.NewFromInt(currency.SatsPerBTC)).
			Round(0).
			IntPart()
	case currency.SATS:
		return int64(math.Round(amount))
	default:
		return int64(math.Round(e.Convert(amount, from, currency.SATS)))
	}
}

// CreateMultiPrice derives a snapshot of the amount in every registry
// currency at the current rates.
func (e *Engine) CreateMultiPrice(amount float64, baseCurrency string) (currency.MultiPrice, error) {
	if !currency.IsSupported(baseCurrency) {
		return currency.MultiPrice{}, apperrors.NewValidationError("unsupported base currency", baseCurrency)
	}

	return currency.NewMultiPrice(
		amount,
		baseCurrency,
		e.Convert(amount, baseCurrency, currency.LAK),
		e.Convert(amount, baseCurrency, currency.THB),
		e.Convert(amount, baseCurrency, currency.USD),
		e.Convert(amount, baseCurrency, currency.BTC),
		e.ToSats(amount, baseCurrency),
	), nil
}

// Rates returns a snapshot of the conversion graph for the rates API.
func (e *Engine) Rates() []currency.ExchangeRate {
	return e.store.Snapshot()
}
