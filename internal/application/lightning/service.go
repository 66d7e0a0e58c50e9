package lightning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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
	// DefaultWatchInterval is the poll cadence while the backend is
	// healthy.
	DefaultWatchInterval = 2 * time.Second
	// DefaultWatchErrorInterval is the backoff cadence after a failed
	// poll.
	DefaultWatchErrorInterval = 5 * time.Second
)

// Config tunes invoice expiry and the watcher cadence.
type Config struct {
	InvoiceExpiry      time.Duration
	WatchInterval      time.Duration
	WatchErrorInterval time.Duration
}

// PaymentCallback receives the settled invoice. It is invoked at most
// once per watched invoice.
type PaymentCallback func(invoice *payment.LightningInvoice)

// Service drives the Lightning payment lifecycle: invoice creation,
// settlement polling and preimage verification.
type Service struct {
	backend Backend
	cfg     Config
	log     logger.Interface

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher // keyed by payment hash
}

func NewService(backend Backend, cfg Config, log logger.Interface) *Service {
	if cfg.InvoiceExpiry <= 0 {
		cfg.InvoiceExpiry = payment.DefaultLightningExpiry
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
	if cfg.WatchErrorInterval <= 0 {
		cfg.WatchErrorInterval = DefaultWatchErrorInterval
	}

	return &Service{
		backend:  backend,
		cfg:      cfg,
		log:      log.Named("lightning"),
		watchers: make(map[string]*watcher.Watcher),
	}
}

// CreateInvoice mints a BOLT11 invoice through the configured backend.
func (s *Service) CreateInvoice(ctx context.Context, amountSats int64, description string, metadata map[string]interface{}) (*payment.LightningInvoice, error) {
	if s.backend == nil {
		return nil, apperrors.NewConfigurationError("no lightning backend configured")
	}
	if amountSats <= 0 {
		return nil, apperrors.NewValidationError("invoice amount must be positive")
	}

	backendInvoice, err := s.backend.CreateInvoice(ctx, amountSats, description, s.cfg.InvoiceExpiry)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to create invoice").WithCause(err)
	}

	invoice, err := payment.NewLightningInvoice(
		backendInvoice.Bolt11,
		backendInvoice.PaymentHash,
		amountSats,
		description,
		s.backend.Name(),
		s.cfg.InvoiceExpiry,
		metadata,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("invalid invoice from backend").WithCause(err)
	}

	s.log.Infow("lightning invoice created",
		"invoice_id", invoice.ID(),
		"payment_hash", invoice.PaymentHash(),
		"amount_sats", amountSats,
		"backend", s.backend.Name(),
	)

	return invoice, nil
}

// CreateOffer mints a reusable BOLT12 offer when the backend supports
// them. Backends without the capability yield ErrOffersUnsupported.
func (s *Service) CreateOffer(ctx context.Context, description string) (*Offer, error) {
	if s.backend == nil {
		return nil, apperrors.NewConfigurationError("no lightning backend configured")
	}

	ob, ok := s.backend.(OfferBackend)
	if !ok {
		return nil, ErrOffersUnsupported
	}
	return ob.CreateOffer(ctx, description)
}

// WatchPayment polls the backend until the invoice settles or expires.
// Settlement verifies the revealed preimage against the payment hash
// before the callback fires; a mismatch counts as not yet paid and
// polling continues. The callback fires at most once. Watching the same
// payment hash twice cancels the earlier watch before the new one starts.
func (s *Service) WatchPayment(ctx context.Context, invoice *payment.LightningInvoice, callback PaymentCallback) error {
	if s.backend == nil {
		return apperrors.NewConfigurationError("no lightning backend configured")
	}
	if invoice == nil {
		return apperrors.NewValidationError("invoice is required")
	}

	hash := invoice.PaymentHash()

	w := watcher.New(s.log,
		watcher.WithName("ln-"+invoice.ID()),
		watcher.WithInterval(s.cfg.WatchInterval),
		watcher.WithErrorInterval(s.cfg.WatchErrorInterval),
		watcher.WithCheckErrorHook(func(err error) {
			metrics.WatcherCheckErrors.WithLabelValues("lightning").Inc()
		}),
	)

	// The prior watcher must be fully stopped before the replacement
	// registers, or two pollers would mutate the same invoice. Stop
	// outside the registry lock: an in-flight check may be blocked on
	// dropWatcher.
	s.mu.Lock()
	prev := s.watchers[hash]
	s.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	s.mu.Lock()
	s.watchers[hash] = w
	s.mu.Unlock()

	fn := func(ctx context.Context) (bool, error) {
		return s.checkInvoice(ctx, invoice, callback, w)
	}

	if err := w.Start(ctx, fn); err != nil {
		s.dropWatcher(hash, w)
		return err
	}
	return nil
}

// checkInvoice is a single poll iteration.
func (s *Service) checkInvoice(ctx context.Context, invoice *payment.LightningInvoice, callback PaymentCallback, w *watcher.Watcher) (bool, error) {
	if invoice.Status().IsTerminal() {
		s.dropWatcher(invoice.PaymentHash(), w)
		return true, nil
	}

	if invoice.IsExpired() {
		if err := invoice.MarkExpired(); err != nil {
			return true, err
		}
		s.log.Infow("lightning invoice expired",
			"invoice_id", invoice.ID(),
			"payment_hash", invoice.PaymentHash(),
		)
		s.dropWatcher(invoice.PaymentHash(), w)
		return true, nil
	}

	state, err := s.backend.PaymentState(ctx, invoice.PaymentHash())
	if err != nil {
		return false, apperrors.NewNetworkError("payment state lookup failed").WithCause(err)
	}

	if state.Pending && !state.Settled {
		if err := invoice.MarkProcessing(); err != nil {
			s.log.Warnw("cannot mark invoice processing",
				"invoice_id", invoice.ID(),
				"error", err,
			)
		}
		return false, nil
	}

	if !state.Settled {
		return false, nil
	}

	if !VerifyPreimage(state.Preimage, invoice.PaymentHash()) {
		// The invoice stays live: a mismatched preimage reads as "not
		// yet paid" and the next poll re-verifies. Only expiry or a
		// terminal backend state ends the watch.
		s.log.Errorw("preimage verification failed",
			"invoice_id", invoice.ID(),
			"payment_hash", invoice.PaymentHash(),
		)
		return false, apperrors.NewVerificationError("preimage does not match payment hash")
	}

	if err := invoice.MarkCompleted(state.Preimage); err != nil {
		return true, err
	}

	metrics.PaymentsCompleted.WithLabelValues(string(payment.MethodLightning)).Inc()
	s.log.Infow("lightning invoice settled",
		"invoice_id", invoice.ID(),
		"payment_hash", invoice.PaymentHash(),
		"amount_sats", invoice.AmountSats(),
	)

	s.dropWatcher(invoice.PaymentHash(), w)

	if callback != nil {
		callback(invoice)
	}
	return true, nil
}

// StopWatching cancels the watcher for a payment hash, if any.
func (s *Service) StopWatching(paymentHash string) {
	s.mu.Lock()
	w, ok := s.watchers[paymentHash]
	if ok {
		delete(s.watchers, paymentHash)
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

// dropWatcher removes the registry entry for a hash. When expect is
// non-nil the entry is only removed if it still points at that watcher.
func (s *Service) dropWatcher(hash string, expect *watcher.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watchers[hash]; ok && (expect == nil || w == expect) {
		delete(s.watchers, hash)
	}
}

// CreatePaymentProof builds a settlement proof for a completed invoice.
// The preimage must be present and must hash to the payment hash.
func (s *Service) CreatePaymentProof(orderID string, invoice *payment.LightningInvoice, isOffline bool) (*payment.PaymentProof, error) {
	if invoice == nil {
		return nil, apperrors.NewValidationError("invoice is required")
	}
	if !invoice.Status().IsCompleted() {
		return nil, apperrors.NewValidationError("invoice is not completed", string(invoice.Status()))
	}

	preimage := invoice.Preimage()
	if preimage == nil || *preimage == "" {
		return nil, apperrors.NewVerificationError("completed invoice has no preimage")
	}
	if !VerifyPreimage(*preimage, invoice.PaymentHash()) {
		return nil, apperrors.NewVerificationError("preimage does not match payment hash")
	}

	return payment.NewPaymentProof(
		orderID,
		invoice.PaymentHash(),
		*preimage,
		invoice.AmountSats(),
		payment.MethodLightning,
		isOffline,
	)
}

// VerifyPreimage checks that sha256(preimage) equals the payment hash.
// Both values are hex encoded; comparison is case-insensitive.
func VerifyPreimage(preimageHex, paymentHashHex string) bool {
	raw, err := hex.DecodeString(preimageHex)
	if err != nil || len(raw) == 0 {
		return false
	}
	sum := sha256.Sum256(raw)
	return strings.EqualFold(hex.EncodeToString(sum[:]), paymentHashHex)
}
