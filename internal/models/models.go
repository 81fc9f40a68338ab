package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gearhound/price-engine/internal/rules"
)

// FetchStrategy selects how a site's pages are fetched.
type FetchStrategy string

const (
	// FetchHTTP is a plain HTTP GET through the standard client.
	FetchHTTP FetchStrategy = "http"
	// FetchRender drives a headless browser for JS-rendered pages.
	FetchRender FetchStrategy = "render"
	// FetchProxy routes the request through a third-party unblocking proxy.
	FetchProxy FetchStrategy = "proxy"
)

// MarketMethod selects how a multi-market site is localized per region.
type MarketMethod string

const (
	MarketCookieInjection MarketMethod = "cookie-injection"
	MarketStorefrontAPI   MarketMethod = "storefront-api"
)

// ScraperConfig describes one tracked site/domain. It is owned by the
// configuration store and read-only to the engine.
type ScraperConfig struct {
	ID              string
	Domain          string
	DefaultCurrency string
	Regions         []string
	Strategy        FetchStrategy

	MultiMarket  bool
	MarketMethod MarketMethod
	// Storefront API credentials, used only with MarketStorefrontAPI.
	StorefrontEndpoint string
	StorefrontToken    string

	// Cookie templates for cookie-injection localization. Values may
	// contain the placeholders {region} and {currency}.
	MarketCookies map[string]string

	Rules []*rules.Rule
}

// MarketPrice is one market's entry in a tracked item's per-market map.
type MarketPrice struct {
	Region   string
	Currency string
	Price    decimal.Decimal
	InStock  *bool
}

// TrackedItem is one monitored URL. It is mutated exclusively by the
// scrape orchestrator after each attempt.
type TrackedItem struct {
	ID        string
	URL       string
	ScraperID string

	Price      *decimal.Decimal
	Currency   string
	InStock    *bool
	StatusText string
	Shipping   string
	Markets    map[string]MarketPrice

	ConsecutiveFailures int
	LastError           string
	LastAttemptAt       time.Time
	LastScrapedAt       time.Time

	// FailuresResetAt is the health-reset marker: external statistics
	// must only count attempts after this time when it is set.
	FailuresResetAt *time.Time
}
