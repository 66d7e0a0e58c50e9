package currency

import (
	"fmt"
	"sync"
	"time"
)

// RateStore is the in-memory directed map of pairwise exchange rates.
// Every Put stores the edge and its inverse in one critical section, so
// readers never observe a rate without its reciprocal. Self-rates are
// rejected: a currency converts to itself at 1 by definition and is
// never stored.
type RateStore struct {
	mu    sync.RWMutex
	rates map[string]ExchangeRate
}

func NewRateStore() *RateStore {
	return &RateStore{
		rates: make(map[string]ExchangeRate),
	}
}

func key(from, to string) string {
	return from + "→" + to
}

// Put stores a rate and its inverse atomically.
func (s *RateStore) Put(from, to string, rate float64, source RateSource) error {
	if from == to {
		return fmt.Errorf("refusing to store self-rate for %s", from)
	}
	if rate <= 0 {
		return fmt.Errorf("invalid rate %f for %s/%s", rate, from, to)
	}

	now := time.Now().UTC()
	fwd := ExchangeRate{From: from, To: to, Rate: rate, Source: source, UpdatedAt: now}

	s.mu.Lock()
	s.rates[key(from, to)] = fwd
	s.rates[key(to, from)] = fwd.Inverse()
	s.mu.Unlock()

	return nil
}

// Get returns the directly stored rate for the pair, ok=false when absent.
func (s *RateStore) Get(from, to string) (ExchangeRate, bool) {
	s.mu.RLock()
	r, ok := s.rates[key(from, to)]
	s.mu.RUnlock()
	return r, ok
}

// Snapshot returns a copy of every stored edge.
func (s *RateStore) Snapshot() []ExchangeRate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ExchangeRate, 0, len(s.rates))
	for _, r := range s.rates {
		out = append(out, r)
	}
	return out
}

// Len returns the number of stored edges (inverses included).
func (s *RateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rates)
}
