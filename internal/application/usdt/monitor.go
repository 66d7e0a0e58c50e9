package usdt

import (
	"context"
	"time"

	"bitpos/internal/domain/payment"
)

// Transfer is one observed token transfer to a monitored address.
// Amount is in the token's smallest unit.
type Transfer struct {
	TxHash        string
	From          string
	To            string
	Amount        uint64
	Confirmations int
	Timestamp     time.Time
}

// TransactionMonitor reads recent USDT transfers for an address on one
// network; implementations wrap a block explorer API.
type TransactionMonitor interface {
	// Network reports which network the monitor serves.
	Network() payment.Network

	// RecentTransfers lists incoming USDT transfers to the address,
	// newest first. since bounds how far back the scan goes.
	RecentTransfers(ctx context.Context, address string, since time.Time) ([]Transfer, error)
}

// RateService quotes fiat-per-USDT rates at invoice creation time.
type RateService interface {
	// USDTRate returns how many units of the fiat currency one USDT is
	// worth.
	USDTRate(ctx context.Context, fiatCurrency string) (float64, error)
}
