package currency

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"bitpos/internal/domain/currency"
)

var printer = message.NewPrinter(language.English)

// FormatOptions controls the rendering of a monetary amount. Symbol and
// code are mutually exclusive; when both are set the symbol wins.
type FormatOptions struct {
	ShowSymbol bool
	ShowCode   bool
}

// Format renders an amount with grouping separators and the currency's
// decimal policy. Unknown codes fall back to a plain 2-decimal render.
func Format(amount float64, code string, opts FormatOptions) string {
	cur, ok := currency.Lookup(code)
	if !ok {
		return printer.Sprint(number.Decimal(amount,
			number.MinFractionDigits(2),
			number.MaxFractionDigits(2),
		))
	}

	minFrac := cur.DecimalPlaces
	if minFrac > 2 {
		minFrac = 2
	}

	rendered := printer.Sprint(number.Decimal(amount,
		number.MinFractionDigits(minFrac),
		number.MaxFractionDigits(cur.DecimalPlaces),
	))

	switch {
	case opts.ShowSymbol:
		return cur.Symbol + rendered
	case opts.ShowCode:
		return fmt.Sprintf("%s %s", rendered, cur.Code)
	default:
		return rendered
	}
}

// FormatSats renders a satoshi amount with its unit suffix.
func FormatSats(sats int64) string {
	return printer.Sprintf("%d sats", sats)
}
