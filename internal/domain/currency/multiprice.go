package currency

import (
	"math"
	"time"
)

// MultiPrice is a point-in-time snapshot of one base amount expressed in
// every registry currency. It is immutable after creation and is not
// re-derived when rates change; callers wanting fresh numbers ask the
// engine for a new snapshot.
type MultiPrice struct {
	LAK  float64
	THB  float64
	USD  float64
	BTC  float64
	SATS int64

	Base         float64
	BaseCurrency string
	CreatedAt    time.Time
}

// NewMultiPrice applies the per-currency rounding policy: LAK and SATS
// are whole units, THB and USD are kept to 2 decimals, BTC keeps full
// float precision.
func NewMultiPrice(base float64, baseCurrency string, lak, thb, usd, btc float64, sats int64) MultiPrice {
	return MultiPrice{
		LAK:          math.Round(lak),
		THB:          round2(thb),
		USD:          round2(usd),
		BTC:          btc,
		SATS:         sats,
		Base:         base,
		BaseCurrency: baseCurrency,
		CreatedAt:    time.Now().UTC(),
	}
}

// Amount returns the snapshot value for a currency code, ok=false for
// codes outside the registry.
func (p MultiPrice) Amount(code string) (float64, bool) {
	switch code {
	case LAK:
		return p.LAK, true
	case THB:
		return p.THB, true
	case USD:
		return p.USD, true
	case BTC:
		return p.BTC, true
	case SATS:
		return float64(p.SATS), true
	default:
		return 0, false
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
