// Package core provides the value types shared by the detector: transactions,
// time ranges, windows and flags.
//
// This file contains amount parsing and formatting. Amounts are kept as
// decimals so that window sums are exact and independent of summation order.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a non-negative amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Empty, non-numeric and negative inputs are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("0")     -> 0, nil
//	ParseAmount("-1")    -> 0, ErrNegativeAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// FormatAmount renders an amount without trailing zeros.
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}
