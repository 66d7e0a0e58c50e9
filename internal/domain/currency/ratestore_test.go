package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateStorePutStoresInverse(t *testing.T) {
	store := NewRateStore()

	err := store.Put(BTC, USD, 100_000, RateSourceAPI)
	require.NoError(t, err)

	direct, ok := store.Get(BTC, USD)
	require.True(t, ok)
	assert.Equal(t, 100_000.0, direct.Rate)

	inverse, ok := store.Get(USD, BTC)
	require.True(t, ok)
	assert.InEpsilon(t, 1.0/100_000, inverse.Rate, 1e-12)
	assert.Equal(t, RateSourceAPI, inverse.Source)
}

func TestRateStorePutRejectsInvalid(t *testing.T) {
	store := NewRateStore()

	tests := []struct {
		name string
		from string
		to   string
		rate float64
	}{
		{"self rate", USD, USD, 1},
		{"zero rate", BTC, USD, 0},
		{"negative rate", BTC, USD, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Put(tt.from, tt.to, tt.rate, RateSourceManual)
			assert.Error(t, err)
		})
	}

	assert.Equal(t, 0, store.Len())
}

func TestRateStoreOverwrite(t *testing.T) {
	store := NewRateStore()

	require.NoError(t, store.Put(USD, LAK, 20_000, RateSourceAPI))
	require.NoError(t, store.Put(USD, LAK, 21_000, RateSourceAPI))

	rate, ok := store.Get(USD, LAK)
	require.True(t, ok)
	assert.Equal(t, 21_000.0, rate.Rate)

	inverse, ok := store.Get(LAK, USD)
	require.True(t, ok)
	assert.InEpsilon(t, 1.0/21_000, inverse.Rate, 1e-12)
}

func TestRateStoreGetMissing(t *testing.T) {
	store := NewRateStore()

	_, ok := store.Get(BTC, THB)
	assert.False(t, ok)
}

func TestRateStoreSnapshot(t *testing.T) {
	store := NewRateStore()
	require.NoError(t, store.Put(BTC, USD, 100_000, RateSourceAPI))

	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 2)

	// Mutating the snapshot must not affect the store.
	snapshot[0].Rate = 1
	fresh, ok := store.Get(BTC, USD)
	require.True(t, ok)
	assert.Equal(t, 100_000.0, fresh.Rate)
}
