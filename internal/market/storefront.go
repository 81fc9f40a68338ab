package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/gearhound/price-engine/internal/cache"
	"github.com/gearhound/price-engine/internal/fetch"
	"github.com/gearhound/price-engine/internal/models"
)

const storefrontQuery = `query ProductMarketPrice($handle: String!, $country: CountryCode!) @inContext(country: $country) {
  product(handle: $handle) {
    availableForSale
    variants(first: 1) {
      nodes {
        price { amount currencyCode }
      }
    }
  }
}`

// tokenTTL bounds how long a storefront access token is reused from the
// cache before re-reading configuration.
const tokenTTL = 15 * time.Minute

// Quote is one market's answer from a storefront API.
type Quote struct {
	Price     decimal.Decimal
	Currency  string
	Country   string
	Available bool
}

// StorefrontClient issues a single structured price query against a
// Shopify-style storefront GraphQL endpoint, carrying an explicit
// country directive instead of relying on geo detection.
type StorefrontClient struct {
	client *http.Client
	tokens cache.Cache
}

func NewStorefrontClient(timeout time.Duration, tokens cache.Cache) *StorefrontClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &StorefrontClient{
		client: &http.Client{Timeout: timeout},
		tokens: tokens,
	}
}

// Client exposes the underlying client so tests can swap its transport.
func (c *StorefrontClient) Client() *http.Client { return c.client }

// Quote fetches one country's price for the product behind itemURL.
func (c *StorefrontClient) Quote(ctx context.Context, itemURL, country string, cfg *models.ScraperConfig) (*Quote, error) {
	handle, err := ProductHandle(itemURL)
	if err != nil {
		return nil, err
	}

	token, err := c.token(ctx, cfg)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"query": storefrontQuery,
		"variables": map[string]string{
			"handle":  handle,
			"country": country,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.StorefrontEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &fetch.Error{URL: cfg.StorefrontEndpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &fetch.Error{URL: cfg.StorefrontEndpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &fetch.Error{URL: cfg.StorefrontEndpoint, StatusCode: resp.StatusCode}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, &fetch.Error{URL: cfg.StorefrontEndpoint, Err: err}
	}
	raw := buf.String()

	if errMsg := gjson.Get(raw, "errors.0.message"); errMsg.Exists() {
		return nil, fmt.Errorf("storefront query failed: %s", errMsg.String())
	}

	product := gjson.Get(raw, "data.product")
	if !product.Exists() || product.Type == gjson.Null {
		return nil, fmt.Errorf("storefront has no product for handle %q", handle)
	}

	amount := gjson.Get(raw, "data.product.variants.nodes.0.price.amount")
	currency := gjson.Get(raw, "data.product.variants.nodes.0.price.currencyCode")
	if !amount.Exists() || !currency.Exists() {
		return nil, fmt.Errorf("storefront returned no price for handle %q", handle)
	}

	price, err := decimal.NewFromString(amount.String())
	if err != nil {
		return nil, fmt.Errorf("storefront returned non-numeric price %q: %w", amount.String(), err)
	}

	return &Quote{
		Price:    price,
		Currency: currency.String(),
		// The @inContext directive localizes the whole query; the
		// storefront answers for exactly the requested country.
		Country:   country,
		Available: gjson.Get(raw, "data.product.availableForSale").Bool(),
	}, nil
}

func (c *StorefrontClient) token(ctx context.Context, cfg *models.ScraperConfig) (string, error) {
	key := "storefront_token:" + cfg.ID
	if c.tokens != nil {
		if cached, ok, err := c.tokens.Get(ctx, key); err == nil && ok {
			return cached, nil
		}
	}
	if cfg.StorefrontToken == "" {
		return "", fmt.Errorf("scraper %s has no storefront access token", cfg.ID)
	}
	if c.tokens != nil {
		_ = c.tokens.Set(ctx, key, cfg.StorefrontToken, tokenTTL)
	}
	return cfg.StorefrontToken, nil
}

// ProductHandle derives the storefront product handle from a tracked
// item URL: the last path segment, with any "/products/" prefix walked.
func ProductHandle(itemURL string) (string, error) {
	u, err := url.Parse(itemURL)
	if err != nil {
		return "", fmt.Errorf("invalid item url %q: %w", itemURL, err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	handle := segments[len(segments)-1]
	if handle == "" {
		return "", fmt.Errorf("no product handle in url %q", itemURL)
	}
	return handle, nil
}
