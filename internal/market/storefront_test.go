package market

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/gearhound/price-engine/internal/cache"
	"github.com/gearhound/price-engine/internal/models"
)

func storefrontConfig() *models.ScraperConfig {
	return &models.ScraperConfig{
		ID:                 "shopify-shop",
		Domain:             "shop.example.com",
		Regions:            []string{"US", "DE"},
		MultiMarket:        true,
		MarketMethod:       models.MarketStorefrontAPI,
		StorefrontEndpoint: "https://shop.example.com/api/2024-01/graphql.json",
		StorefrontToken:    "shpat-test-token",
	}
}

func quoteResponse(amount, currency string) string {
	return `{"data":{"product":{"availableForSale":true,"variants":{"nodes":[{"price":{"amount":"` + amount + `","currencyCode":"` + currency + `"}}]}}}}`
}

func TestProductHandle(t *testing.T) {
	tests := []struct {
		url      string
		expected string
		ok       bool
	}{
		{"https://shop.example.com/products/x1-scooter", "x1-scooter", true},
		{"https://shop.example.com/collections/sale/products/x1", "x1", true},
		{"https://shop.example.com/", "", false},
	}
	for _, tt := range tests {
		handle, err := ProductHandle(tt.url)
		if tt.ok {
			require.NoError(t, err)
			assert.Equal(t, tt.expected, handle)
		} else {
			assert.Error(t, err)
		}
	}
}

func TestStorefrontQuote(t *testing.T) {
	tokens, err := cache.NewLRUCache(8)
	require.NoError(t, err)
	c := NewStorefrontClient(0, tokens)
	httpmock.ActivateNonDefault(c.Client())
	defer httpmock.DeactivateAndReset()

	cfg := storefrontConfig()

	var gotToken, gotHandle, gotCountry string
	httpmock.RegisterResponder("POST", cfg.StorefrontEndpoint,
		func(req *http.Request) (*http.Response, error) {
			gotToken = req.Header.Get("X-Shopify-Storefront-Access-Token")
			body, _ := io.ReadAll(req.Body)
			gotHandle = gjson.GetBytes(body, "variables.handle").String()
			gotCountry = gjson.GetBytes(body, "variables.country").String()
			return httpmock.NewStringResponse(200, quoteResponse("1199.00", "EUR")), nil
		})

	quote, err := c.Quote(context.Background(), "https://shop.example.com/products/x1-scooter", "DE", cfg)
	require.NoError(t, err)

	assert.Equal(t, "shpat-test-token", gotToken)
	assert.Equal(t, "x1-scooter", gotHandle)
	assert.Equal(t, "DE", gotCountry)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("1199.00")))
	assert.Equal(t, "EUR", quote.Currency)
	assert.Equal(t, "DE", quote.Country)
	assert.True(t, quote.Available)

	// Second quote reuses the cached token.
	cached, ok, err := tokens.Get(context.Background(), "storefront_token:shopify-shop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "shpat-test-token", cached)
}

func TestStorefrontQuoteErrors(t *testing.T) {
	c := NewStorefrontClient(0, nil)
	httpmock.ActivateNonDefault(c.Client())
	defer httpmock.DeactivateAndReset()

	cfg := storefrontConfig()

	t.Run("graphql error", func(t *testing.T) {
		httpmock.RegisterResponder("POST", cfg.StorefrontEndpoint,
			httpmock.NewStringResponder(200, `{"errors":[{"message":"access denied"}]}`))
		_, err := c.Quote(context.Background(), "https://shop.example.com/products/x1", "US", cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
	})

	t.Run("unknown product", func(t *testing.T) {
		httpmock.RegisterResponder("POST", cfg.StorefrontEndpoint,
			httpmock.NewStringResponder(200, `{"data":{"product":null}}`))
		_, err := c.Quote(context.Background(), "https://shop.example.com/products/x1", "US", cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no product")
	})

	t.Run("missing token", func(t *testing.T) {
		bare := storefrontConfig()
		bare.StorefrontToken = ""
		_, err := c.Quote(context.Background(), "https://shop.example.com/products/x1", "US", bare)
		require.Error(t, err)
	})
}

func TestScrapeStorefrontCurrencyMismatch(t *testing.T) {
	c := NewStorefrontClient(0, nil)
	httpmock.ActivateNonDefault(c.Client())
	defer httpmock.DeactivateAndReset()

	cfg := storefrontConfig()

	// The storefront has no DE market enabled and falls back to USD for
	// every country.
	httpmock.RegisterResponder("POST", cfg.StorefrontEndpoint,
		httpmock.NewStringResponder(200, quoteResponse("1299.00", "USD")))

	sc := NewScraper(nil, c, slog.Default()).WithCurrencyTable(testTable)
	res, err := sc.ScrapeAllMarkets(context.Background(), "https://shop.example.com/products/x1", cfg)
	require.NoError(t, err, "US group succeeds, DE group soft-fails")

	assert.Contains(t, res.Markets, "US")
	require.Len(t, res.SoftErrors, 1)
	assert.Equal(t, "DE", res.SoftErrors[0].Region)
	assert.ErrorIs(t, res.SoftErrors[0].Err, ErrMismatch)
}
