package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bitpos/internal/domain/currency"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		code   string
		opts   FormatOptions
		want   string
	}{
		{"LAK whole units", 2_050_000, currency.LAK, FormatOptions{}, "2,050,000"},
		{"LAK with symbol", 2_050_000, currency.LAK, FormatOptions{ShowSymbol: true}, "₭2,050,000"},
		{"THB two decimals", 1234.5, currency.THB, FormatOptions{}, "1,234.50"},
		{"USD with code", 99.9, currency.USD, FormatOptions{ShowCode: true}, "99.90 USD"},
		{"USD with symbol", 0.5, currency.USD, FormatOptions{ShowSymbol: true}, "$0.50"},
		{"SATS whole units", 123_456, currency.SATS, FormatOptions{}, "123,456"},
		{"BTC trims to precision", 0.12345678, currency.BTC, FormatOptions{}, "0.12345678"},
		{"symbol wins over code", 1, currency.USD, FormatOptions{ShowSymbol: true, ShowCode: true}, "$1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.amount, tt.code, tt.opts))
		})
	}
}

func TestFormatUnknownCode(t *testing.T) {
	assert.Equal(t, "12.34", Format(12.34, "EUR", FormatOptions{}))
}

func TestFormatSats(t *testing.T) {
	assert.Equal(t, "123,456 sats", FormatSats(123_456))
}
