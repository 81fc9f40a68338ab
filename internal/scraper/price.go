package scraper

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice turns a post-processed price string into a decimal. It
// tolerates both separator conventions ("1,299.00" and "1.299,00"): the
// last separator is the decimal point when one or two digits follow it,
// anything else is a thousands separator. A string with no digits is not
// a price; ok is false and the caller treats the field as not found.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}

	lastSep := strings.LastIndexAny(s, ".,")

	var b strings.Builder
	b.Grow(len(s))
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteByte(byte(r))
		case r == '-' && b.Len() == 0:
			b.WriteByte('-')
		case (r == '.' || r == ',') && i == lastSep && decimalDigitsAfter(s, i):
			b.WriteByte('.')
		}
	}
	if digits == 0 {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// decimalDigitsAfter reports whether position i is followed by one or
// two trailing digits, i.e. looks like a decimal point rather than a
// thousands separator.
func decimalDigitsAfter(s string, i int) bool {
	n := 0
	for _, r := range s[i+1:] {
		if r < '0' || r > '9' {
			return false
		}
		n++
	}
	return n == 1 || n == 2
}
