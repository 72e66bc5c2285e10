package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatKRW(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "₩0"},
		{"999", "₩999"},
		{"1000", "₩1,000"},
		{"1234567", "₩1,234,567"},
		{"50000000.4", "₩50,000,000"},
		{"-98765", "-₩98,765"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatKRW(decimal.RequireFromString(tc.in)), "input %s", tc.in)
	}
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "0.5", FormatQuantity(decimal.RequireFromString("0.50000000")))
	assert.Equal(t, "2", FormatQuantity(decimal.RequireFromString("2.000")))
	assert.Equal(t, "0.00000001", FormatQuantity(decimal.RequireFromString("0.00000001")))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "-2.50%", FormatPercent(decimal.RequireFromString("-2.5")))
	assert.Equal(t, "12.34%", FormatPercent(decimal.RequireFromString("12.336")))
}
