// Package core provides money parsing and formatting utilities.
//
// This file contains functions for parsing monetary amounts from user input
// and rendering them as Rupiah display strings.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// grouping separators and more than two decimal places are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return decimal.Zero, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac && fracPart == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	num := intPart
	if hasFrac {
		num += "." + fracPart
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// FormatRupiah renders an amount as "[-]Rp 1.234.567,50".
//
// The sign sits outside the currency marker, groups are separated by "." and
// the two decimals by ",". A null value renders as zero. Rounding to two
// places is half-to-even.
func FormatRupiah(v decimal.NullDecimal) string {
	value := decimal.Zero
	if v.Valid {
		value = v.Decimal
	}
	sign := ""
	if value.IsNegative() {
		sign = "-"
	}
	fixed := value.Abs().StringFixedBank(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")
	return sign + "Rp " + groupThousands(intPart) + "," + fracPart
}

// FormatRp is FormatRupiah for a non-null amount.
func FormatRp(d decimal.Decimal) string {
	return FormatRupiah(decimal.NullDecimal{Decimal: d, Valid: true})
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
