package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMultiPriceRounding(t *testing.T) {
	price := NewMultiPrice(100, USD, 2_050_000.4, 3_500.456, 99.999, 0.00123456789, 123456)

	assert.Equal(t, 2_050_000.0, price.LAK, "LAK rounds to whole units")
	assert.Equal(t, 3_500.46, price.THB, "THB keeps 2 decimals")
	assert.Equal(t, 100.0, price.USD, "USD keeps 2 decimals")
	assert.Equal(t, 0.00123456789, price.BTC, "BTC keeps full precision")
	assert.Equal(t, int64(123456), price.SATS)
	assert.Equal(t, 100.0, price.Base)
	assert.Equal(t, USD, price.BaseCurrency)
	assert.False(t, price.CreatedAt.IsZero())
}

func TestMultiPriceAmount(t *testing.T) {
	price := NewMultiPrice(1, USD, 20_500, 35, 1, 0.00001, 1000)

	for _, code := range []string{LAK, THB, USD, BTC, SATS} {
		_, ok := price.Amount(code)
		require.True(t, ok, code)
	}

	_, ok := price.Amount("EUR")
	assert.False(t, ok)
}
