package market

// DefaultCurrencies maps ISO 3166-1 alpha-2 region codes to the currency
// a storefront is expected to quote for that region.
var DefaultCurrencies = map[string]string{
	"US": "USD",
	"CA": "CAD",
	"GB": "GBP",
	"AU": "AUD",
	"NZ": "NZD",
	"JP": "JPY",
	"CH": "CHF",
	"SE": "SEK",
	"NO": "NOK",
	"DK": "DKK",
	"PL": "PLN",
	"CZ": "CZK",
	"MX": "MXN",
	"BR": "BRL",
	"IN": "INR",
	"SG": "SGD",
	"HK": "HKD",
	"KR": "KRW",
	"ZA": "ZAR",
	"AE": "AED",
	// Eurozone
	"AT": "EUR", "BE": "EUR", "DE": "EUR", "ES": "EUR", "FI": "EUR",
	"FR": "EUR", "GR": "EUR", "IE": "EUR", "IT": "EUR", "LU": "EUR",
	"NL": "EUR", "PT": "EUR",
}

// Group is one currency's share of a site's regions. The first region in
// input order is the representative actually fetched for the group.
type Group struct {
	Currency string
	Regions  []string
}

// Representative returns the region fetched on behalf of the group.
func (g Group) Representative() string { return g.Regions[0] }

// GroupRegions partitions regions into groups sharing an expected
// currency, preserving input order both across groups and within each
// group. Regions absent from the table are dropped; the caller cannot
// validate a market it has no expected currency for. Pure and
// deterministic: no fetching happens here.
func GroupRegions(regions []string, table map[string]string) []Group {
	if table == nil {
		table = DefaultCurrencies
	}

	var order []string
	byCurrency := make(map[string]*Group)
	for _, region := range regions {
		currency, ok := table[region]
		if !ok {
			continue
		}
		g, ok := byCurrency[currency]
		if !ok {
			g = &Group{Currency: currency}
			byCurrency[currency] = g
			order = append(order, currency)
		}
		g.Regions = append(g.Regions, region)
	}

	out := make([]Group, 0, len(order))
	for _, currency := range order {
		out = append(out, *byCurrency[currency])
	}
	return out
}
