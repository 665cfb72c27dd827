package format

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const defaultCurrency = "USD"

var printer = message.NewPrinter(language.AmericanEnglish)

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// Price formats a major-unit amount as en-US dollars, e.g. Price(1234.5) => "$1,234.50".
func Price(amount float64) string {
	return Currency(decimal.NewFromFloat(amount), defaultCurrency)
}

// PriceDecimal is Price for decimal amounts.
func PriceDecimal(amount decimal.Decimal) string {
	return Currency(amount, defaultCurrency)
}

// Currency formats amount in the ISO 4217 currency code using en-US grouping. Unknown
// codes fall back to USD.
func Currency(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
		code = defaultCurrency
	}
	scale, _ := currency.Standard.Rounding(unit)

	rounded := amount.Round(int32(scale))
	negative := rounded.IsNegative()
	if negative {
		rounded = rounded.Neg()
	}

	digits := printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(scale)))
	symbol, ok := symbols[code]
	if !ok {
		symbol = code + " "
	}
	if negative {
		return "-" + symbol + digits
	}
	return symbol + digits
}
