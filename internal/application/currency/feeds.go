package currency

import "context"

// BTCPriceFeed returns the BTC spot price in USD. Implementations live
// in infrastructure/feeds; the engine takes a primary and a secondary.
type BTCPriceFeed interface {
	// Name identifies the feed in logs.
	Name() string
	// BTCUSD returns the current BTC price in USD.
	BTCUSD(ctx context.Context) (float64, error)
}

// FiatRateFeed returns fiat rates quoted against USD (units of fiat per
// one USD).
type FiatRateFeed interface {
	Name() string
	// USDRates returns a map of currency code to units per USD.
	USDRates(ctx context.Context) (map[string]float64, error)
}
