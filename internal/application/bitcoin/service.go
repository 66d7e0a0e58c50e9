package bitcoin

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitpos/internal/application/watcher"
	"bitpos/internal/domain/currency"
	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
	"bitpos/internal/shared/metrics"
)

// DefaultWatchInterval is the on-chain poll cadence. Block times make a
// faster cadence pointless.
const DefaultWatchInterval = 5 * time.Second

// Config tunes the checkout window, confirmation policy and watcher
// cadence.
type Config struct {
	InvoiceExpiry         time.Duration
	RequiredConfirmations int
	WatchInterval         time.Duration
	WatchErrorInterval    time.Duration
}

// PaymentCallback receives the settled payment. It is invoked at most
// once per watched payment.
type PaymentCallback func(p *payment.BitcoinPayment)

// RateSource converts fiat amounts to BTC at invoice-creation time.
type RateSource interface {
	GetRate(from, to string) float64
}

// Service drives the on-chain payment lifecycle through a
// BTCPay-compatible provider.
type Service struct {
	provider Provider
	rates    RateSource
	cfg      Config
	log      logger.Interface

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher // keyed by payment ID
}

func NewService(provider Provider, rates RateSource, cfg Config, log logger.Interface) *Service {
	if cfg.InvoiceExpiry <= 0 {
		cfg.InvoiceExpiry = payment.DefaultBitcoinExpiry
	}
	if cfg.RequiredConfirmations <= 0 {
		cfg.RequiredConfirmations = 1
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
	if cfg.WatchErrorInterval <= 0 {
		cfg.WatchErrorInterval = cfg.WatchInterval
	}

	return &Service{
		provider: provider,
		rates:    rates,
		cfg:      cfg,
		log:      log.Named("bitcoin"),
		watchers: make(map[string]*watcher.Watcher),
	}
}

// CreateInvoice opens a checkout for a fiat amount. The BTC amount is
// derived at the current rate and carried on the payment record so the
// quote survives later rate refreshes; providers that quote their own
// rate override the local one.
func (s *Service) CreateInvoice(ctx context.Context, orderID string, amountFiat float64, fiatCurrency, description string) (*payment.BitcoinPayment, error) {
	if s.provider == nil {
		return nil, apperrors.NewConfigurationError("no bitcoin provider configured")
	}
	if orderID == "" {
		return nil, apperrors.NewValidationError("order ID is required")
	}
	if amountFiat <= 0 {
		return nil, apperrors.NewValidationError("amount must be positive")
	}
	if !currency.IsSupported(fiatCurrency) {
		return nil, apperrors.NewValidationError("unsupported currency", fiatCurrency)
	}

	rate := s.rates.GetRate(fiatCurrency, currency.BTC)
	if rate <= 0 {
		return nil, apperrors.NewConfigurationError("no exchange rate available", fiatCurrency+"/BTC")
	}
	amountBTC := amountFiat * rate

	providerInvoice, err := s.provider.CreateInvoice(ctx, CreateInvoiceRequest{
		OrderID:       orderID,
		Description:   description,
		AmountBTC:     amountBTC,
		Fiat:          amountFiat,
		FiatCurrency:  fiatCurrency,
		Confirmations: s.cfg.RequiredConfirmations,
		Expiry:        s.cfg.InvoiceExpiry,
	})
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to create on-chain invoice").WithCause(err)
	}

	if providerInvoice.AmountBTC > 0 {
		amountBTC = providerInvoice.AmountBTC
	}
	if providerInvoice.Rate > 0 {
		rate = 1 / providerInvoice.Rate
	}
	amountSats := decimal.NewFromFloat(amountBTC).
		Mul(decimal.NewFromInt(currency.SatsPerBTC)).
		Round(0).
		IntPart()
	if amountSats <= 0 {
		return nil, apperrors.NewValidationError("amount rounds to zero satoshis")
	}

	p, err := payment.NewBitcoinPayment(payment.NewBitcoinPaymentParams{
		OrderID:               orderID,
		Provider:              s.provider.Name(),
		ProviderInvoiceID:     providerInvoice.InvoiceID,
		Address:               providerInvoice.Address,
		AmountBTC:             amountBTC,
		AmountSats:            amountSats,
		AmountFiat:            amountFiat,
		Currency:              fiatCurrency,
		ExchangeRate:          rate,
		RequiredConfirmations: s.cfg.RequiredConfirmations,
		Expiry:                s.cfg.InvoiceExpiry,
	})
	if err != nil {
		return nil, apperrors.NewInternalError("invalid invoice from provider").WithCause(err)
	}

	s.log.Infow("bitcoin invoice created",
		"payment_id", p.ID(),
		"order_id", orderID,
		"provider", s.provider.Name(),
		"provider_invoice_id", providerInvoice.InvoiceID,
		"address", providerInvoice.Address,
		"amount_btc", amountBTC,
		"amount_sats", amountSats,
	)

	return p, nil
}

// WatchPayment polls the provider until the payment reaches a terminal
// state. Every poll applies the mapped status; the callback fires only
// on completion, at most once. Watching the same payment ID twice
// cancels the earlier watch.
func (s *Service) WatchPayment(ctx context.Context, p *payment.BitcoinPayment, callback PaymentCallback) error {
	if s.provider == nil {
		return apperrors.NewConfigurationError("no bitcoin provider configured")
	}
	if p == nil {
		return apperrors.NewValidationError("payment is required")
	}

	w := watcher.New(s.log,
		watcher.WithName("btc-"+p.ID()),
		watcher.WithInterval(s.cfg.WatchInterval),
		watcher.WithErrorInterval(s.cfg.WatchErrorInterval),
		watcher.WithCheckErrorHook(func(err error) {
			metrics.WatcherCheckErrors.WithLabelValues("bitcoin").Inc()
		}),
	)

	// The prior watcher must be fully stopped before the replacement
	// registers, or two pollers would mutate the same payment. Stop
	// outside the registry lock: an in-flight check may be blocked on
	// dropWatcher.
	s.mu.Lock()
	prev := s.watchers[p.ID()]
	s.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	s.mu.Lock()
	s.watchers[p.ID()] = w
	s.mu.Unlock()

	fn := func(ctx context.Context) (bool, error) {
		return s.checkPayment(ctx, p, callback, w)
	}

	if err := w.Start(ctx, fn); err != nil {
		s.dropWatcher(p.ID(), w)
		return err
	}
	return nil
}

func (s *Service) checkPayment(ctx context.Context, p *payment.BitcoinPayment, callback PaymentCallback, w *watcher.Watcher) (bool, error) {
	if p.Status().IsTerminal() {
		s.dropWatcher(p.ID(), w)
		return true, nil
	}

	if p.IsExpired() {
		if err := p.Transition(payment.StatusExpired); err != nil {
			return true, err
		}
		s.log.Infow("bitcoin invoice expired",
			"payment_id", p.ID(),
			"order_id", p.OrderID(),
		)
		s.dropWatcher(p.ID(), w)
		return true, nil
	}

	state, err := s.provider.InvoiceState(ctx, p.ProviderInvoiceID())
	if err != nil {
		return false, apperrors.NewNetworkError("invoice state lookup failed").WithCause(err)
	}

	p.SetConfirmations(state.Confirmations)

	status, known := MapProviderStatus(state.Status)
	if !known {
		s.log.Warnw("unmapped provider invoice status",
			"payment_id", p.ID(),
			"provider", s.provider.Name(),
			"provider_status", state.Status,
		)
	}

	if err := p.Transition(status); err != nil {
		return true, err
	}

	switch {
	case status == payment.StatusCompleted:
		metrics.PaymentsCompleted.WithLabelValues(string(payment.MethodBitcoin)).Inc()
		s.log.Infow("bitcoin invoice settled",
			"payment_id", p.ID(),
			"order_id", p.OrderID(),
			"confirmations", p.Confirmations(),
			"amount_sats", p.AmountSats(),
		)
		s.dropWatcher(p.ID(), w)
		if callback != nil {
			callback(p)
		}
		return true, nil
	case status.IsTerminal():
		s.log.Infow("bitcoin invoice closed without settlement",
			"payment_id", p.ID(),
			"order_id", p.OrderID(),
			"status", status,
		)
		s.dropWatcher(p.ID(), w)
		return true, nil
	default:
		return false, nil
	}
}

// StopWatching cancels the watcher for a payment ID, if any.
func (s *Service) StopWatching(paymentID string) {
	s.mu.Lock()
	w, ok := s.watchers[paymentID]
	if ok {
		delete(s.watchers, paymentID)
	}
	s.mu.Unlock()

	if ok {
		w.Stop()
	}
}

// StopAll cancels every active watcher. Used on shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	ws := make([]*watcher.Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		ws = append(ws, w)
	}
	s.watchers = make(map[string]*watcher.Watcher)
	s.mu.Unlock()

	for _, w := range ws {
		w.Stop()
	}
}

func (s *Service) dropWatcher(paymentID string, expect *watcher.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watchers[paymentID]; ok && (expect == nil || w == expect) {
		delete(s.watchers, paymentID)
	}
}

// CreatePaymentProof builds a settlement proof for a completed payment.
// The deposit address is the proof's payment reference: unlike provider
// invoice ids it exists on-chain for every provider.
func (s *Service) CreatePaymentProof(p *payment.BitcoinPayment, isOffline bool) (*payment.PaymentProof, error) {
	if p == nil {
		return nil, apperrors.NewValidationError("payment is required")
	}
	if !p.Status().IsCompleted() {
		return nil, apperrors.NewValidationError("payment is not completed", string(p.Status()))
	}

	return payment.NewPaymentProof(
		p.OrderID(),
		p.Address(),
		"",
		p.AmountSats(),
		payment.MethodBitcoin,
		isOffline,
	)
}
