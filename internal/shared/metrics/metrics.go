// Package metrics registers the prometheus collectors for the payment core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RateRefreshFailures counts full feed failures during a rate refresh
	// (primary, secondary and fiat feeds all unreachable).
	RateRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitpos",
		Subsystem: "currency",
		Name:      "rate_refresh_failures_total",
		Help:      "Number of rate refresh cycles where every price feed failed.",
	})

	// BTCPriceUSD exposes the last BTC/USD price the engine settled on,
	// whether fetched, cached or the hardcoded fallback.
	BTCPriceUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bitpos",
		Subsystem: "currency",
		Name:      "btc_price_usd",
		Help:      "Current BTC/USD price used by the conversion engine.",
	})

	// PaymentsCompleted counts payments that reached the completed state,
	// by method.
	PaymentsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitpos",
		Subsystem: "payment",
		Name:      "completed_total",
		Help:      "Number of payments settled, by method.",
	}, []string{"method"})

	// WatcherCheckErrors counts swallowed poll-cycle errors, by service.
	WatcherCheckErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitpos",
		Subsystem: "watcher",
		Name:      "check_errors_total",
		Help:      "Number of polling checks that failed and were retried.",
	}, []string{"service"})
)
