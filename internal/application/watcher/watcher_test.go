package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpos/internal/shared/logger"
)

func TestWatcherImmediateFirstCheck(t *testing.T) {
	w := New(logger.Nop(), WithInterval(time.Hour))

	checked := make(chan struct{})
	err := w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		close(checked)
		return true, nil
	})
	require.NoError(t, err)

	select {
	case <-checked:
	case <-time.After(time.Second):
		t.Fatal("first check did not run immediately")
	}
}

func TestWatcherDoubleStart(t *testing.T) {
	w := New(logger.Nop(), WithInterval(10*time.Millisecond))

	err := w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	defer w.Stop()

	err = w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestWatcherStopBlocksUntilLoopExits(t *testing.T) {
	w := New(logger.Nop(), WithInterval(time.Millisecond))

	var checks atomic.Int64
	require.NoError(t, w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		checks.Add(1)
		return false, nil
	}))

	// Let a few checks happen, then stop.
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	after := checks.Load()

	// No check may run once Stop has returned.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, checks.Load())
	assert.Equal(t, StateStopped, w.State())
}

func TestWatcherStopIdleIsNoop(t *testing.T) {
	w := New(logger.Nop())
	w.Stop()
	assert.Equal(t, StateIdle, w.State())
}

func TestWatcherTerminalCheckStopsLoop(t *testing.T) {
	w := New(logger.Nop(), WithInterval(time.Millisecond))

	var checks atomic.Int64
	require.NoError(t, w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		checks.Add(1)
		return true, nil
	}))

	require.Eventually(t, func() bool {
		return w.State() == StateStopped
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), checks.Load())
}

func TestWatcherErrorHook(t *testing.T) {
	var hookCalls atomic.Int64
	w := New(logger.Nop(),
		WithInterval(time.Millisecond),
		WithErrorInterval(time.Millisecond),
		WithCheckErrorHook(func(err error) {
			hookCalls.Add(1)
		}),
	)

	var checks atomic.Int64
	require.NoError(t, w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		if checks.Add(1) >= 3 {
			return true, nil
		}
		return false, errors.New("transient")
	}))

	require.Eventually(t, func() bool {
		return w.State() == StateStopped
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(2), hookCalls.Load())
}

func TestWatcherContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(logger.Nop(), WithInterval(time.Millisecond))

	require.NoError(t, w.Start(ctx, func(ctx context.Context) (bool, error) {
		return false, nil
	}))

	cancel()
	require.Eventually(t, func() bool {
		return w.State() == StateStopped
	}, time.Second, time.Millisecond)
}

func TestWatcherRestartAfterStop(t *testing.T) {
	w := New(logger.Nop(), WithInterval(time.Millisecond))

	require.NoError(t, w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		return false, nil
	}))
	w.Stop()

	checked := make(chan struct{})
	require.NoError(t, w.Start(context.Background(), func(ctx context.Context) (bool, error) {
		close(checked)
		return true, nil
	}))

	select {
	case <-checked:
	case <-time.After(time.Second):
		t.Fatal("restarted watcher did not run")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
