package currency

import "time"

// RateSource records where an exchange rate came from.
type RateSource string

const (
	// RateSourceAPI marks rates fetched from a price feed.
	RateSourceAPI RateSource = "api"
	// RateSourceManual marks rates set by hand or by definition
	// (BTC/SATS is the canonical example).
	RateSourceManual RateSource = "manual"
	// RateSourceOracle marks rates supplied by an external oracle.
	RateSourceOracle RateSource = "oracle"
)

func (s RateSource) IsValid() bool {
	switch s {
	case RateSourceAPI, RateSourceManual, RateSourceOracle:
		return true
	default:
		return false
	}
}

func (s RateSource) String() string {
	return string(s)
}

// ExchangeRate is one directed edge of the conversion graph.
type ExchangeRate struct {
	From      string
	To        string
	Rate      float64
	Source    RateSource
	UpdatedAt time.Time
}

// Inverse returns the reverse edge with the reciprocal rate.
func (r ExchangeRate) Inverse() ExchangeRate {
	return ExchangeRate{
		From:      r.To,
		To:        r.From,
		Rate:      1 / r.Rate,
		Source:    r.Source,
		UpdatedAt: r.UpdatedAt,
	}
}
