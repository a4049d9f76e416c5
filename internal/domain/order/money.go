package order

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// NormalizeCurrency upper-cases and validates an ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", invalid("currency", "required")
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", invalid("currency", "unknown ISO 4217 code "+code)
	}
	return unit.String(), nil
}

// minorUnits returns the number of decimal places used by the currency.
// Unknown codes fall back to two places.
func minorUnits(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// roundMoney rounds half-up (half away from zero) to the currency's minor unit.
func roundMoney(v decimal.Decimal, places int32) decimal.Decimal {
	return v.Round(places)
}

func floorAtZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
