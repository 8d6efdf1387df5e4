// Package etl normalizes persisted record streams into flat price rows and
// per-run metadata for database loading.
package etl

import (
	"fmt"
	"strconv"
	"strings"
)

// QuantityAndUnit splits a free-text quantity string into a numeric
// quantity and a lower-cased unit. The leading run of digits and decimal
// points is the quantity (1 when absent); the remainder, with any "±"
// stripped, is the unit:
//
//	"KG"        -> 1, "kg"
//	"1000g"     -> 1000, "g"
//	"1.1kg"     -> 1.1, "kg"
//	"250"       -> 250, ""
//	"250 Gm"    -> 250, "gm"
//	"500 Gram ±" -> 500, "gram"
//	"Each"      -> 1, "each"
func QuantityAndUnit(text string) (float64, string, error) {
	split := 0
	for _, c := range text {
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		split++
	}

	digits := text[:split]
	unit := text[split:]

	unit = strings.ReplaceAll(unit, "±", "")
	unit = strings.ToLower(strings.TrimSpace(unit))

	if digits == "" {
		return 1, unit, nil
	}

	quantity, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse quantity %q: %w", text, err)
	}
	return quantity, unit, nil
}
