package bitcoin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpos/internal/domain/currency"
	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

type fakeProvider struct {
	mu        sync.Mutex
	status    string
	confs     int
	createErr error

	// When set, every InvoiceState call signals entered and then blocks
	// until the gate yields.
	gate    chan struct{}
	entered chan struct{}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*ProviderInvoice, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &ProviderInvoice{
		InvoiceID: "inv-1",
		Address:   "bc1qfake",
	}, nil
}

func (p *fakeProvider) InvoiceState(ctx context.Context, invoiceID string) (*InvoiceState, error) {
	if p.gate != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	status := p.status
	if status == "" {
		status = ProviderStatusNew
	}
	return &InvoiceState{Status: status, Confirmations: p.confs}, nil
}

func (p *fakeProvider) setStatus(status string, confs int) {
	p.mu.Lock()
	p.status = status
	p.confs = confs
	p.mu.Unlock()
}

type fixedRates struct{}

func (fixedRates) GetRate(from, to string) float64 {
	if from == currency.USD && to == currency.BTC {
		return 0.00001 // $100,000 per BTC
	}
	return 0
}

func newTestService(provider Provider) *Service {
	return NewService(provider, fixedRates{}, Config{
		WatchInterval:      time.Millisecond,
		WatchErrorInterval: time.Millisecond,
	}, logger.Nop())
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		want     payment.Status
		known    bool
	}{
		{ProviderStatusNew, payment.StatusPending, true},
		{ProviderStatusProcessing, payment.StatusProcessing, true},
		{ProviderStatusSettled, payment.StatusCompleted, true},
		{ProviderStatusExpired, payment.StatusExpired, true},
		{ProviderStatusInvalid, payment.StatusFailed, true},
		{"SomethingElse", payment.StatusPending, false},
		{"", payment.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			got, known := MapProviderStatus(tt.provider)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestCreateInvoice(t *testing.T) {
	svc := newTestService(&fakeProvider{})

	p, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "coffee")
	require.NoError(t, err)

	assert.Equal(t, "bc1qfake", p.Address())
	assert.Equal(t, "inv-1", p.ProviderInvoiceID())
	assert.InEpsilon(t, 0.001, p.AmountBTC(), 1e-9)
	assert.Equal(t, int64(100_000), p.AmountSats())
	assert.Equal(t, payment.StatusPending, p.Status())
}

func TestCreateInvoiceNoProvider(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestCreateInvoiceNoRate(t *testing.T) {
	svc := newTestService(&fakeProvider{})

	_, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.THB, "")
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestCreateInvoiceProviderQuoteWins(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewService(&providerWithQuote{fakeProvider: provider}, fixedRates{}, Config{
		WatchInterval: time.Millisecond,
	}, logger.Nop())

	p, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	require.NoError(t, err)

	assert.InEpsilon(t, 0.002, p.AmountBTC(), 1e-9)
	assert.Equal(t, int64(200_000), p.AmountSats())
}

type providerWithQuote struct {
	*fakeProvider
}

func (p *providerWithQuote) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*ProviderInvoice, error) {
	return &ProviderInvoice{
		InvoiceID: "inv-1",
		Address:   "bc1qfake",
		AmountBTC: 0.002,
		Rate:      50_000,
	}, nil
}

func TestWatchPaymentSettles(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider)

	p, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	require.NoError(t, err)

	var callbacks atomic.Int64
	settled := make(chan *payment.BitcoinPayment, 1)
	require.NoError(t, svc.WatchPayment(context.Background(), p, func(bp *payment.BitcoinPayment) {
		callbacks.Add(1)
		settled <- bp
	}))

	provider.setStatus(ProviderStatusProcessing, 0)
	require.Eventually(t, func() bool {
		return p.Status() == payment.StatusProcessing
	}, time.Second, time.Millisecond)

	provider.setStatus(ProviderStatusSettled, 2)

	select {
	case got := <-settled:
		assert.Equal(t, payment.StatusCompleted, got.Status())
		assert.Equal(t, 2, got.Confirmations())
	case <-time.After(time.Second):
		t.Fatal("payment did not settle")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), callbacks.Load())
}

func TestWatchPaymentInvalidStopsWithoutCallback(t *testing.T) {
	provider := &fakeProvider{}
	provider.setStatus(ProviderStatusInvalid, 0)
	svc := newTestService(provider)

	p, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	require.NoError(t, err)

	var callbacks atomic.Int64
	require.NoError(t, svc.WatchPayment(context.Background(), p, func(bp *payment.BitcoinPayment) {
		callbacks.Add(1)
	}))

	require.Eventually(t, func() bool {
		return p.Status() == payment.StatusFailed
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(0), callbacks.Load())
}

func TestWatchPaymentExpiresSilently(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewService(provider, fixedRates{}, Config{
		InvoiceExpiry: time.Millisecond,
		WatchInterval: time.Millisecond,
	}, logger.Nop())

	p, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	require.NoError(t, err)

	var callbacks atomic.Int64
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.WatchPayment(context.Background(), p, func(bp *payment.BitcoinPayment) {
		callbacks.Add(1)
	}))

	require.Eventually(t, func() bool {
		return p.Status() == payment.StatusExpired
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(0), callbacks.Load())
}

func TestCreateInvoiceProviderFailure(t *testing.T) {
	svc := newTestService(&fakeProvider{createErr: errors.New("down")})

	_, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	assert.True(t, apperrors.IsNetwork(err))
}

func TestRewatchStopsPriorWatcherFirst(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	provider := &fakeProvider{gate: gate, entered: entered}
	svc := newTestService(provider)

	p, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	require.NoError(t, err)

	require.NoError(t, svc.WatchPayment(context.Background(), p, nil))

	// Wait until the first watcher's check is blocked inside the
	// provider call.
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first watcher never polled the provider")
	}

	var callbacks atomic.Int64
	settled := make(chan struct{})
	rewatched := make(chan struct{})
	go func() {
		defer close(rewatched)
		assert.NoError(t, svc.WatchPayment(context.Background(), p, func(settledPayment *payment.BitcoinPayment) {
			callbacks.Add(1)
			close(settled)
		}))
	}()

	// The replacement must not register while the prior watcher still
	// has a check in flight.
	select {
	case <-rewatched:
		t.Fatal("rewatch returned before the prior watcher stopped")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)

	select {
	case <-rewatched:
	case <-time.After(time.Second):
		t.Fatal("rewatch did not complete after the prior watcher unblocked")
	}

	provider.setStatus(ProviderStatusSettled, 2)

	select {
	case <-settled:
	case <-time.After(time.Second):
		t.Fatal("payment did not settle")
	}
	assert.Equal(t, int64(1), callbacks.Load())
}

func TestCreatePaymentProof(t *testing.T) {
	svc := newTestService(&fakeProvider{})

	p, err := svc.CreateInvoice(context.Background(), "order-1", 100, currency.USD, "")
	require.NoError(t, err)

	// Not completed yet.
	_, err = svc.CreatePaymentProof(p, false)
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, p.Transition(payment.StatusCompleted))

	proof, err := svc.CreatePaymentProof(p, false)
	require.NoError(t, err)
	assert.Equal(t, "order-1", proof.OrderID)
	assert.Equal(t, p.Address(), proof.PaymentHash)
	assert.Equal(t, p.AmountSats(), proof.AmountSats)
	assert.Equal(t, payment.MethodBitcoin, proof.Method)
}
