// Package watcher provides the cancellable interval-polling primitive
// shared by the payment services and the currency engine's refresh loop.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitpos/internal/shared/goroutine"
	"bitpos/internal/shared/logger"
)

// ErrAlreadyRunning is returned by Start when the watcher has an active
// polling loop. Starting twice must never leak a second timer.
var ErrAlreadyRunning = errors.New("watcher already running")

// CheckFunc performs one poll. Returning done=true ends the loop; a
// non-nil error is swallowed and retried on the next tick.
type CheckFunc func(ctx context.Context) (done bool, err error)

// State of a watcher instance.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const defaultInterval = 5 * time.Second

// Watcher polls a CheckFunc until it reports done, the context ends, or
// Stop is called. At most one loop is active per instance; a stopped
// watcher may be started again.
type Watcher struct {
	name        string
	interval    time.Duration
	errInterval time.Duration
	onCheckErr  func(error)
	log         logger.Interface

	mu    sync.Mutex
	state State
	cur   *run
}

type run struct {
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithName attributes log lines to a poll loop.
func WithName(name string) Option {
	return func(w *Watcher) { w.name = name }
}

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorInterval sets a distinct interval used for the tick that
// follows a failed check (backends under stress get polled more gently).
func WithErrorInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.errInterval = d
		}
	}
}

// WithCheckErrorHook installs a callback invoked for every swallowed
// check error, for metrics.
func WithCheckErrorHook(fn func(error)) Option {
	return func(w *Watcher) { w.onCheckErr = fn }
}

func New(log logger.Interface, opts ...Option) *Watcher {
	w := &Watcher{
		name:     "watcher",
		interval: defaultInterval,
		log:      log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start invokes fn immediately, then on every tick until fn reports a
// terminal result, the context is cancelled, or Stop is called.
func (w *Watcher) Start(ctx context.Context, fn CheckFunc) error {
	w.mu.Lock()
	if w.state == StateRunning {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := &run{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	w.cur = r
	w.state = StateRunning
	w.mu.Unlock()

	goroutine.SafeGo(w.log, w.name, func() {
		defer close(r.doneCh)
		defer w.markStopped(r)
		w.loop(ctx, fn, r)
	})

	return nil
}

func (w *Watcher) loop(ctx context.Context, fn CheckFunc, r *run) {
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		done, err := fn(ctx)
		if done {
			return
		}

		wait := w.interval
		if err != nil {
			if w.onCheckErr != nil {
				w.onCheckErr(err)
			}
			if w.errInterval > 0 {
				wait = w.errInterval
			}
			w.log.Debugw("check failed, will retry",
				"watcher", w.name,
				"error", err,
				"next_check_in", wait,
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-r.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop halts the loop and blocks until it has exited: once Stop returns
// no further check runs. Safe to call repeatedly, and a no-op on an
// idle watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	r := w.cur
	w.mu.Unlock()

	if r == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// State returns the watcher's current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// markStopped flips the state to stopped unless a newer run has already
// been started on this instance.
func (w *Watcher) markStopped(r *run) {
	w.mu.Lock()
	if w.cur == r {
		w.state = StateStopped
	}
	w.mu.Unlock()
}
