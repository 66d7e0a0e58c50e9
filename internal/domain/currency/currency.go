package currency

// Currency describes one entry of the fixed currency registry.
type Currency struct {
	Code          string
	Name          string
	Symbol        string
	DecimalPlaces int
}

// Codes of the supported currencies.
const (
	LAK  = "LAK"
	THB  = "THB"
	USD  = "USD"
	BTC  = "BTC"
	SATS = "SATS"
)

// SatsPerBTC is the fixed satoshi denomination of one bitcoin.
const SatsPerBTC = 100_000_000

// registry is the immutable currency registry. Order matters for display.
var registry = []Currency{
	{Code: LAK, Name: "Lao Kip", Symbol: "₭", DecimalPlaces: 0},
	{Code: THB, Name: "Thai Baht", Symbol: "฿", DecimalPlaces: 2},
	{Code: USD, Name: "US Dollar", Symbol: "$", DecimalPlaces: 2},
	{Code: BTC, Name: "Bitcoin", Symbol: "₿", DecimalPlaces: 8},
	{Code: SATS, Name: "Satoshi", Symbol: "sat", DecimalPlaces: 0},
}

var byCode = func() map[string]Currency {
	m := make(map[string]Currency, len(registry))
	for _, c := range registry {
		m[c.Code] = c
	}
	return m
}()

// Lookup returns the currency for a code, ok=false for unknown codes.
func Lookup(code string) (Currency, bool) {
	c, ok := byCode[code]
	return c, ok
}

// IsSupported reports whether code is in the registry.
func IsSupported(code string) bool {
	_, ok := byCode[code]
	return ok
}

// All returns the registry in display order.
func All() []Currency {
	out := make([]Currency, len(registry))
	copy(out, registry)
	return out
}
