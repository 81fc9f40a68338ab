package extract

import (
	"strings"

	"github.com/gearhound/price-engine/internal/rules"
)

// PostProcess applies a rule's transform chain to a raw extracted string,
// strictly in listed order. Unknown transform kinds are skipped so older
// engines tolerate rule sets written for newer ones.
func PostProcess(raw string, chain []rules.Transform) string {
	for i := range chain {
		t := &chain[i]
		switch t.Kind {
		case rules.TransformTrim:
			raw = strings.TrimSpace(raw)
		case rules.TransformStripCurrency:
			raw = stripCurrencySymbols(raw)
		case rules.TransformRegexReplace:
			if re := t.Regexp(); re != nil {
				raw = re.ReplaceAllString(raw, t.Replacement)
			}
		}
	}
	return raw
}

// stripCurrencySymbols drops every character outside [0-9.,-], leaving
// just the numeric shape of a price string.
func stripCurrencySymbols(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
