// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatKRW renders an amount as Korean won with thousands separators and
// no fractional digits, e.g. "₩1,234,567".
func FormatKRW(amount decimal.Decimal) string {
	rounded := amount.Round(0)
	negative := rounded.IsNegative()
	digits := rounded.Abs().String()

	result := "₩" + groupThousands(digits)
	if negative {
		result = "-" + result
	}
	return result
}

// FormatQuantity renders an asset quantity with up to eight fractional
// digits, trailing zeros trimmed.
func FormatQuantity(qty decimal.Decimal) string {
	s := qty.Round(8).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// FormatPercent renders a percentage with two fractional digits.
func FormatPercent(pct decimal.Decimal) string {
	f, _ := pct.Float64()
	return fmt.Sprintf("%.2f%%", f)
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
