// Package manual is the no-backend on-chain fallback: payments go to a
// static merchant address and settlement is confirmed at the till.
package manual

import (
	"context"

	"bitpos/internal/application/bitcoin"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/id"
	"bitpos/internal/shared/logger"
)

// Config holds the static receiving address.
type Config struct {
	Address string
}

// Provider satisfies the on-chain provider interface without a payment
// processor. Invoices never settle on their own; the operator marks
// them paid out of band.
type Provider struct {
	address string
	log     logger.Interface
}

var _ bitcoin.Provider = (*Provider)(nil)

func NewProvider(cfg Config, log logger.Interface) (*Provider, error) {
	if cfg.Address == "" {
		return nil, apperrors.NewConfigurationError("static bitcoin address is required")
	}
	return &Provider{
		address: cfg.Address,
		log:     log.Named("manual-btc"),
	}, nil
}

func (p *Provider) Name() string { return "manual" }

func (p *Provider) CreateInvoice(ctx context.Context, req bitcoin.CreateInvoiceRequest) (*bitcoin.ProviderInvoice, error) {
	invoiceID := id.MustGenerateWithPrefix("man", id.DefaultLength)

	p.log.Infow("manual bitcoin invoice opened",
		"invoice_id", invoiceID,
		"order_id", req.OrderID,
		"address", p.address,
		"amount_btc", req.AmountBTC,
	)

	return &bitcoin.ProviderInvoice{
		InvoiceID: invoiceID,
		Address:   p.address,
	}, nil
}

// InvoiceState always reports a fresh invoice; the watcher keeps
// polling until the checkout window expires or the operator settles the
// payment manually.
func (p *Provider) InvoiceState(ctx context.Context, invoiceID string) (*bitcoin.InvoiceState, error) {
	return &bitcoin.InvoiceState{Status: bitcoin.ProviderStatusNew}, nil
}
