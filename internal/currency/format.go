package currency

import (
	"github.com/shopspring/decimal"
)

// Currencies without minor units. Everything else displays with two decimals.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "ISK": {},
	"JPY": {}, "KMF": {}, "KRW": {}, "PYG": {}, "RWF": {},
	"UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

func MinorUnits(code string) int32 {
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	return 2
}

// Format renders an amount at the currency's minor-unit precision, rounding
// half-up exactly once.
func Format(amount decimal.Decimal, code string) string {
	return amount.StringFixed(MinorUnits(code))
}
