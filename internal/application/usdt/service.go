package usdt

import (
	"context"
	"strings"
	"sync"
	"time"

	"bitpos/internal/application/watcher"
	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
	"bitpos/internal/shared/metrics"
)

const (
	// DefaultWatchInterval is the explorer poll cadence. Explorer APIs
	// rate-limit aggressively, so this stays coarse.
	DefaultWatchInterval = 10 * time.Second

	// DefaultAmountTolerance absorbs sender-side rounding. A transfer
	// within this many USDT of the expected amount still matches.
	DefaultAmountTolerance = 0.01
)

// Config tunes the receiving addresses, matching tolerance and watcher
// cadence.
type Config struct {
	// Addresses maps each enabled network to its receiving address.
	Addresses map[payment.Network]string

	DefaultNetwork     payment.Network
	InvoiceExpiry      time.Duration
	AmountTolerance    float64
	WatchInterval      time.Duration
	WatchErrorInterval time.Duration
}

// PaymentCallback receives the settled payment. It is invoked at most
// once per watched payment.
type PaymentCallback func(p *payment.USDTPayment)

// Service drives the stablecoin payment lifecycle: invoice creation at
// the current fiat rate and transfer matching via block explorers.
type Service struct {
	monitors map[payment.Network]TransactionMonitor
	rates    RateService
	cfg      Config
	log      logger.Interface

	toleranceRaw uint64

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher // keyed by payment ID
}

func NewService(monitors []TransactionMonitor, rates RateService, cfg Config, log logger.Interface) *Service {
	if cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = payment.NetworkTRC
	}
	if cfg.InvoiceExpiry <= 0 {
		cfg.InvoiceExpiry = payment.DefaultUSDTExpiry
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = DefaultAmountTolerance
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
	if cfg.WatchErrorInterval <= 0 {
		cfg.WatchErrorInterval = cfg.WatchInterval
	}

	byNetwork := make(map[payment.Network]TransactionMonitor, len(monitors))
	for _, m := range monitors {
		byNetwork[m.Network()] = m
	}

	return &Service{
		monitors:     byNetwork,
		rates:        rates,
		cfg:          cfg,
		log:          log.Named("usdt"),
		toleranceRaw: payment.FloatToRawAmount(cfg.AmountTolerance),
		watchers:     make(map[string]*watcher.Watcher),
	}
}

// CreateInvoice opens a USDT invoice for a fiat amount on the given
// network; an empty network selects the configured default.
func (s *Service) CreateInvoice(ctx context.Context, orderID string, amountFiat float64, fiatCurrency string, network payment.Network) (*payment.USDTPayment, error) {
	if orderID == "" {
		return nil, apperrors.NewValidationError("order ID is required")
	}
	if amountFiat <= 0 {
		return nil, apperrors.NewValidationError("amount must be positive")
	}
	if network == "" {
		network = s.cfg.DefaultNetwork
	}
	if !network.IsValid() {
		return nil, apperrors.NewValidationError("unsupported network", network.String())
	}

	address, ok := s.cfg.Addresses[network]
	if !ok || address == "" {
		return nil, apperrors.NewConfigurationError("no receiving address configured", network.String())
	}
	if _, ok := s.monitors[network]; !ok {
		return nil, apperrors.NewConfigurationError("no transaction monitor configured", network.String())
	}

	rate, err := s.rates.USDTRate(ctx, fiatCurrency)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to fetch USDT rate").WithCause(err)
	}
	if rate <= 0 {
		return nil, apperrors.NewConfigurationError("invalid USDT rate", fiatCurrency)
	}

	amountUSDT := amountFiat / rate
	amountRaw := payment.FloatToRawAmount(amountUSDT)
	if amountRaw == 0 {
		return nil, apperrors.NewValidationError("amount rounds to zero")
	}

	p, err := payment.NewUSDTPayment(payment.NewUSDTPaymentParams{
		OrderID:      orderID,
		Network:      network,
		Address:      address,
		AmountRaw:    amountRaw,
		AmountFiat:   amountFiat,
		Currency:     fiatCurrency,
		ExchangeRate: rate,
		NetworkFee:   network.EstimatedFee(),
		Expiry:       s.cfg.InvoiceExpiry,
	})
	if err != nil {
		return nil, apperrors.NewValidationError("invalid payment parameters").WithCause(err)
	}

	s.log.Infow("usdt invoice created",
		"payment_id", p.ID(),
		"order_id", orderID,
		"network", network,
		"address", address,
		"amount_usdt", p.AmountUSDT(),
		"amount_fiat", amountFiat,
		"currency", fiatCurrency,
	)

	return p, nil
}

// WatchPayment polls the network's explorer until a matching transfer
// arrives or the invoice expires. A transfer matches when it postdates
// invoice creation, targets the receiving address and lands within the
// amount tolerance. The callback fires at most once. Watching the same
// payment ID twice cancels the earlier watch.
func (s *Service) WatchPayment(ctx context.Context, p *payment.USDTPayment, callback PaymentCallback) error {
	if p == nil {
		return apperrors.NewValidationError("payment is required")
	}

	monitor, ok := s.monitors[p.Network()]
	if !ok {
		return apperrors.NewConfigurationError("no transaction monitor configured", p.Network().String())
	}

	w := watcher.New(s.log,
		watcher.WithName("usdt-"+p.ID()),
		watcher.WithInterval(s.cfg.WatchInterval),
		watcher.WithErrorInterval(s.cfg.WatchErrorInterval),
		watcher.WithCheckErrorHook(func(err error) {
			metrics.WatcherCheckErrors.WithLabelValues("usdt").Inc()
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
		return s.checkPayment(ctx, monitor, p, callback, w)
	}

	if err := w.Start(ctx, fn); err != nil {
		s.dropWatcher(p.ID(), w)
		return err
	}
	return nil
}

func (s *Service) checkPayment(ctx context.Context, monitor TransactionMonitor, p *payment.USDTPayment, callback PaymentCallback, w *watcher.Watcher) (bool, error) {
	if p.Status().IsTerminal() {
		s.dropWatcher(p.ID(), w)
		return true, nil
	}

	if p.IsExpired() {
		if err := p.MarkExpired(); err != nil {
			return true, err
		}
		s.log.Infow("usdt invoice expired",
			"payment_id", p.ID(),
			"order_id", p.OrderID(),
		)
		s.dropWatcher(p.ID(), w)
		return true, nil
	}

	transfers, err := monitor.RecentTransfers(ctx, p.Address(), p.CreatedAt())
	if err != nil {
		return false, apperrors.NewNetworkError("transfer lookup failed").WithCause(err)
	}

	match, ok := s.matchTransfer(p, transfers)
	if !ok {
		return false, nil
	}

	p.SetConfirmations(match.Confirmations)

	if err := p.MarkCompleted(match.TxHash); err != nil {
		return true, err
	}

	metrics.PaymentsCompleted.WithLabelValues(string(payment.MethodUSDT)).Inc()
	s.log.Infow("usdt transfer matched",
		"payment_id", p.ID(),
		"order_id", p.OrderID(),
		"tx_hash", match.TxHash,
		"amount_raw", match.Amount,
		"expected_raw", p.AmountRaw(),
		"confirmations", match.Confirmations,
	)

	s.dropWatcher(p.ID(), w)

	if callback != nil {
		callback(p)
	}
	return true, nil
}

// matchTransfer finds the first transfer that settles the payment.
// Timestamps before invoice creation are rejected so a stale transfer
// can never settle a new invoice; address comparison is
// case-insensitive for EVM checksum variants.
func (s *Service) matchTransfer(p *payment.USDTPayment, transfers []Transfer) (Transfer, bool) {
	for _, t := range transfers {
		if t.Timestamp.Before(p.CreatedAt()) {
			continue
		}
		if !strings.EqualFold(t.To, p.Address()) {
			continue
		}
		if !amountWithinTolerance(t.Amount, p.AmountRaw(), s.toleranceRaw) {
			continue
		}
		return t, true
	}
	return Transfer{}, false
}

func amountWithinTolerance(got, want, tolerance uint64) bool {
	var diff uint64
	if got > want {
		diff = got - want
	} else {
		diff = want - got
	}
	return diff <= tolerance
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
