package usdt

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
	"bitpos/internal/shared/logger"
)

const testTronAddress = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"

type fakeMonitor struct {
	network payment.Network

	mu        sync.Mutex
	transfers []Transfer

	// When set, every RecentTransfers call signals entered and then
	// blocks until the gate yields.
	gate    chan struct{}
	entered chan struct{}
}

func (m *fakeMonitor) Network() payment.Network { return m.network }

func (m *fakeMonitor) RecentTransfers(ctx context.Context, address string, since time.Time) ([]Transfer, error) {
	if m.gate != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out, nil
}

func (m *fakeMonitor) addTransfer(t Transfer) {
	m.mu.Lock()
	m.transfers = append(m.transfers, t)
	m.mu.Unlock()
}

type fixedRate float64

func (r fixedRate) USDTRate(ctx context.Context, fiatCurrency string) (float64, error) {
	return float64(r), nil
}

func newTestService(monitor *fakeMonitor) *Service {
	return NewService([]TransactionMonitor{monitor}, fixedRate(1), Config{
		Addresses:          map[payment.Network]string{payment.NetworkTRC: testTronAddress},
		DefaultNetwork:     payment.NetworkTRC,
		WatchInterval:      time.Millisecond,
		WatchErrorInterval: time.Millisecond,
	}, logger.Nop())
}

func TestCreateInvoice(t *testing.T) {
	svc := newTestService(&fakeMonitor{network: payment.NetworkTRC})

	p, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", "")
	require.NoError(t, err)

	assert.Equal(t, payment.NetworkTRC, p.Network())
	assert.Equal(t, testTronAddress, p.Address())
	assert.Equal(t, uint64(10_000_000), p.AmountRaw())
	assert.Equal(t, 10.0, p.AmountUSDT())
}

func TestCreateInvoiceNoAddress(t *testing.T) {
	svc := NewService([]TransactionMonitor{&fakeMonitor{network: payment.NetworkTRC}}, fixedRate(1), Config{
		DefaultNetwork: payment.NetworkTRC,
	}, logger.Nop())

	_, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", "")
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestCreateInvoiceAppliesRate(t *testing.T) {
	svc := NewService([]TransactionMonitor{&fakeMonitor{network: payment.NetworkTRC}}, fixedRate(20_500), Config{
		Addresses:      map[payment.Network]string{payment.NetworkTRC: testTronAddress},
		DefaultNetwork: payment.NetworkTRC,
	}, logger.Nop())

	// 205,000 LAK at 20,500 LAK per USDT is 10 USDT.
	p, err := svc.CreateInvoice(context.Background(), "order-1", 205_000, "LAK", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), p.AmountRaw())
}

func TestMatchTransferTolerance(t *testing.T) {
	svc := newTestService(&fakeMonitor{network: payment.NetworkTRC})

	p, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", "")
	require.NoError(t, err)

	now := time.Now().Add(time.Second)
	base := Transfer{To: testTronAddress, Timestamp: now, TxHash: "tx1"}

	tests := []struct {
		name   string
		amount uint64
		match  bool
	}{
		{"exact", 10_000_000, true},
		{"under by 0.005", 9_995_000, true},
		{"over by 0.01", 10_010_000, true},
		{"under by 0.02", 9_980_000, false},
		{"over by 0.02", 10_020_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base
			tr.Amount = tt.amount
			_, ok := svc.matchTransfer(p, []Transfer{tr})
			assert.Equal(t, tt.match, ok)
		})
	}
}

func TestMatchTransferRejectsStale(t *testing.T) {
	svc := newTestService(&fakeMonitor{network: payment.NetworkTRC})

	p, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", "")
	require.NoError(t, err)

	stale := Transfer{
		To:        testTronAddress,
		Amount:    10_000_000,
		Timestamp: p.CreatedAt().Add(-time.Minute),
	}
	_, ok := svc.matchTransfer(p, []Transfer{stale})
	assert.False(t, ok)
}

func TestMatchTransferAddressCaseInsensitive(t *testing.T) {
	monitor := &fakeMonitor{network: payment.NetworkPOL}
	address := "0xAbCd000000000000000000000000000000001234"
	svc := NewService([]TransactionMonitor{monitor}, fixedRate(1), Config{
		Addresses:      map[payment.Network]string{payment.NetworkPOL: address},
		DefaultNetwork: payment.NetworkPOL,
	}, logger.Nop())

	p, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", payment.NetworkPOL)
	require.NoError(t, err)

	tr := Transfer{
		To:        "0xABCD000000000000000000000000000000001234",
		Amount:    10_000_000,
		Timestamp: time.Now().Add(time.Second),
	}
	_, ok := svc.matchTransfer(p, []Transfer{tr})
	assert.True(t, ok)
}

func TestWatchPaymentSettlesOnMatch(t *testing.T) {
	monitor := &fakeMonitor{network: payment.NetworkTRC}
	svc := newTestService(monitor)

	p, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", "")
	require.NoError(t, err)

	var callbacks atomic.Int64
	settled := make(chan *payment.USDTPayment, 1)
	require.NoError(t, svc.WatchPayment(context.Background(), p, func(up *payment.USDTPayment) {
		callbacks.Add(1)
		settled <- up
	}))

	monitor.addTransfer(Transfer{
		TxHash:        "tx42",
		To:            testTronAddress,
		Amount:        10_000_000,
		Confirmations: 19,
		Timestamp:     time.Now().Add(time.Second),
	})

	select {
	case got := <-settled:
		assert.Equal(t, payment.StatusCompleted, got.Status())
		require.NotNil(t, got.TxHash())
		assert.Equal(t, "tx42", *got.TxHash())
		assert.Equal(t, 19, got.Confirmations())
	case <-time.After(time.Second):
		t.Fatal("payment did not settle")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), callbacks.Load())
}

func TestWatchPaymentExpiresSilently(t *testing.T) {
	monitor := &fakeMonitor{network: payment.NetworkTRC}
	svc := NewService([]TransactionMonitor{monitor}, fixedRate(1), Config{
		Addresses:      map[payment.Network]string{payment.NetworkTRC: testTronAddress},
		DefaultNetwork: payment.NetworkTRC,
		InvoiceExpiry:  time.Millisecond,
		WatchInterval:  time.Millisecond,
	}, logger.Nop())

	p, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", "")
	require.NoError(t, err)

	var callbacks atomic.Int64
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.WatchPayment(context.Background(), p, func(up *payment.USDTPayment) {
		callbacks.Add(1)
	}))

	require.Eventually(t, func() bool {
		return p.Status() == payment.StatusExpired
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(0), callbacks.Load())
}

func TestWatchPaymentNoMonitor(t *testing.T) {
	svc := newTestService(&fakeMonitor{network: payment.NetworkTRC})

	p, err := payment.NewUSDTPayment(payment.NewUSDTPaymentParams{
		OrderID:   "order-1",
		Network:   payment.NetworkETH,
		Address:   "0xAbCd000000000000000000000000000000001234",
		AmountRaw: 1_000_000,
	})
	require.NoError(t, err)

	err = svc.WatchPayment(context.Background(), p, nil)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestRewatchStopsPriorWatcherFirst(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	monitor := &fakeMonitor{network: payment.NetworkTRC, gate: gate, entered: entered}
	svc := newTestService(monitor)

	p, err := svc.CreateInvoice(context.Background(), "order-1", 10, "USD", "")
	require.NoError(t, err)

	require.NoError(t, svc.WatchPayment(context.Background(), p, nil))

	// Wait until the first watcher's check is blocked inside the
	// monitor call.
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first watcher never polled the explorer")
	}

	var callbacks atomic.Int64
	settled := make(chan struct{})
	rewatched := make(chan struct{})
	go func() {
		defer close(rewatched)
		assert.NoError(t, svc.WatchPayment(context.Background(), p, func(settledPayment *payment.USDTPayment) {
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

	monitor.addTransfer(Transfer{
		To:            testTronAddress,
		Amount:        10_000_000,
		Confirmations: 19,
		Timestamp:     time.Now().Add(time.Second),
		TxHash:        "tx1",
	})

	select {
	case <-settled:
	case <-time.After(time.Second):
		t.Fatal("payment did not settle")
	}
	assert.Equal(t, int64(1), callbacks.Load())
}
