package scraper

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearhound/price-engine/internal/extract"
	"github.com/gearhound/price-engine/internal/fetch"
	"github.com/gearhound/price-engine/internal/models"
	"github.com/gearhound/price-engine/internal/rules"
)

func testConfig(t *testing.T) *models.ScraperConfig {
	t.Helper()
	cfg := &models.ScraperConfig{
		ID:              "shop-example",
		Domain:          "shop.example.com",
		DefaultCurrency: "USD",
		Strategy:        models.FetchHTTP,
		Rules: []*rules.Rule{
			{
				Field: rules.FieldPrice, Priority: 10, Mode: rules.ModeCSSSelector,
				Selector: ".price",
				Transforms: []rules.Transform{
					{Kind: rules.TransformTrim},
					{Kind: rules.TransformStripCurrency},
				},
			},
			{
				Field: rules.FieldStatus, Priority: 10, Mode: rules.ModeCSSSelector,
				Selector: ".availability", AsBool: true,
				TrueLiterals: []string{"in stock", "available"},
			},
			{
				Field: rules.FieldShipping, Priority: 10, Mode: rules.ModeCSSSelector,
				Selector: ".shipping",
			},
		},
	}
	require.NoError(t, rules.CompileAll(cfg.Rules))
	return cfg
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in       string
		expected string
		ok       bool
	}{
		{"1299.00", "1299", true},
		{"1,299.00", "1299", true},
		{"1.299,00", "1299", true},
		{"1,299", "1299", true},
		{"89.9", "89.9", true},
		{"-5.00", "-5", true},
		{"", "", false},
		{"N/A", "", false},
		{"--", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePrice(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				expected, err := decimal.NewFromString(tt.expected)
				require.NoError(t, err)
				assert.True(t, got.Equal(expected), "got %s want %s", got, expected)
			}
		})
	}
}

func TestParsePriceIdempotentAfterStrip(t *testing.T) {
	// strip-currency-symbols then parse is idempotent: re-parsing the
	// canonical form yields the same number.
	first, ok := ParsePrice("1.299,95")
	require.True(t, ok)
	second, ok := ParsePrice(first.String())
	require.True(t, ok)
	assert.True(t, first.Equal(second))
}

func TestParseDocumentPartialFields(t *testing.T) {
	p := NewParser(fetch.NewSet(), slog.Default())
	cfg := testConfig(t)

	t.Run("all fields", func(t *testing.T) {
		doc, err := extract.ParseDocument(`<html><body>
			<span class="price">$1,299.00</span>
			<span class="availability">In Stock</span>
			<span class="shipping">Free shipping</span>
		</body></html>`)
		require.NoError(t, err)

		res := p.ParseDocument(doc, cfg)
		require.NotNil(t, res.Price)
		assert.True(t, res.Price.Equal(decimal.RequireFromString("1299.00")))
		require.NotNil(t, res.InStock)
		assert.True(t, *res.InStock)
		assert.Equal(t, "Free shipping", res.Shipping)
	})

	t.Run("missing price does not suppress status", func(t *testing.T) {
		doc, err := extract.ParseDocument(`<html><body>
			<span class="availability">Sold Out</span>
		</body></html>`)
		require.NoError(t, err)

		res := p.ParseDocument(doc, cfg)
		assert.Nil(t, res.Price)
		require.NotNil(t, res.InStock)
		assert.False(t, *res.InStock)
		assert.False(t, res.Empty())
	})

	t.Run("non-numeric price is not found", func(t *testing.T) {
		doc, err := extract.ParseDocument(`<html><body>
			<span class="price">Call for price</span>
		</body></html>`)
		require.NoError(t, err)

		res := p.ParseDocument(doc, cfg)
		assert.Nil(t, res.Price)
	})
}

func TestParseFetchesWithConfigStrategy(t *testing.T) {
	hf := fetch.NewHTTPFetcher(&fetch.HTTPOptions{})
	httpmock.ActivateNonDefault(hf.Client())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example.com/p/1",
		httpmock.NewStringResponder(200, `<html><body><span class="price">49.99</span></body></html>`))

	set := fetch.NewSet()
	set.Register(models.FetchHTTP, hf)
	p := NewParser(set, slog.Default())

	res, err := p.Parse(context.Background(), "https://shop.example.com/p/1", testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, res.Price)
	assert.True(t, res.Price.Equal(decimal.RequireFromString("49.99")))
}

func TestParseFetchErrorPropagates(t *testing.T) {
	hf := fetch.NewHTTPFetcher(&fetch.HTTPOptions{})
	httpmock.ActivateNonDefault(hf.Client())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example.com/p/1",
		httpmock.NewStringResponder(500, "boom"))

	set := fetch.NewSet()
	set.Register(models.FetchHTTP, hf)
	p := NewParser(set, slog.Default())

	_, err := p.Parse(context.Background(), "https://shop.example.com/p/1", testConfig(t))
	require.Error(t, err)
	assert.True(t, fetch.IsFetchError(err))
}

func TestParseDocumentMarketMarkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rules = append(cfg.Rules,
		&rules.Rule{Field: rules.FieldCurrency, Priority: 10, Mode: rules.ModeCSSSelector, Selector: "meta[itemprop=priceCurrency]", Attribute: "content"},
		&rules.Rule{Field: rules.FieldRegion, Priority: 10, Mode: rules.ModeCSSSelector, Selector: "html", Attribute: "data-country"},
	)
	require.NoError(t, rules.CompileAll(cfg.Rules))

	doc, err := extract.ParseDocument(`<html data-country="DE"><body>
		<meta itemprop="priceCurrency" content="EUR">
		<span class="price">99,00 €</span>
	</body></html>`)
	require.NoError(t, err)

	p := NewParser(fetch.NewSet(), slog.Default())
	res := p.ParseDocument(doc, cfg)
	assert.Equal(t, "EUR", res.Currency)
	assert.Equal(t, "DE", res.Region)
}
