package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gearhound/price-engine/internal/fetch"
	"github.com/gearhound/price-engine/internal/models"
	"github.com/gearhound/price-engine/internal/scraper"
)

// ErrMismatch marks a soft, single-group failure: the localized response
// came back for the wrong region or currency.
var ErrMismatch = errors.New("market mismatch")

// defaultWorkerCap bounds concurrent per-market fetches against one site.
const defaultWorkerCap = 3

// SoftError records one currency group's failure without failing the
// whole multi-market scrape.
type SoftError struct {
	Region   string
	Currency string
	Err      error
}

func (e SoftError) String() string {
	return fmt.Sprintf("%s/%s: %v", e.Region, e.Currency, e.Err)
}

// AllMarketsFailedError is the hard failure produced only when every
// currency group failed. Its message lists each group's reason.
type AllMarketsFailedError struct {
	Reasons []SoftError
}

func (e *AllMarketsFailedError) Error() string {
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = r.String()
	}
	return "all markets failed: " + strings.Join(parts, "; ")
}

// Result aggregates one multi-market scrape: successful groups populate
// Markets (keyed by representative region); failed groups land in
// SoftErrors. One broken market must not hide valid prices from the
// others.
type Result struct {
	Markets    map[string]models.MarketPrice
	SoftErrors []SoftError
}

// Partial reports whether some but not all groups failed.
func (r *Result) Partial() bool {
	return len(r.Markets) > 0 && len(r.SoftErrors) > 0
}

// Scraper fetches one representative region per currency group and
// validates the localized response against expectation.
type Scraper struct {
	parser     *scraper.Parser
	storefront *StorefrontClient
	currencies map[string]string
	workerCap  int
	logger     *slog.Logger
}

func NewScraper(parser *scraper.Parser, storefront *StorefrontClient, logger *slog.Logger) *Scraper {
	return &Scraper{
		parser:     parser,
		storefront: storefront,
		currencies: DefaultCurrencies,
		workerCap:  defaultWorkerCap,
		logger:     logger.With("component", "market_scraper"),
	}
}

// WithCurrencyTable overrides the region→currency table, for tests.
func (s *Scraper) WithCurrencyTable(table map[string]string) *Scraper {
	s.currencies = table
	return s
}

// WithWorkerCap overrides the fan-out bound.
func (s *Scraper) WithWorkerCap(n int) *Scraper {
	if n > 0 {
		s.workerCap = n
	}
	return s
}

// ScrapeAllMarkets scrapes every currency group concurrently (bounded by
// the worker cap) and merges after all groups settle. The returned error
// is non-nil only when every group failed.
func (s *Scraper) ScrapeAllMarkets(ctx context.Context, url string, cfg *models.ScraperConfig) (*Result, error) {
	groups := GroupRegions(cfg.Regions, s.currencies)
	if len(groups) == 0 {
		return nil, fmt.Errorf("scraper %s has no regions with a known currency", cfg.ID)
	}

	result := &Result{Markets: make(map[string]models.MarketPrice, len(groups))}
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workerCap)

	for _, group := range groups {
		eg.Go(func() error {
			price, err := s.scrapeGroup(egCtx, url, cfg, group)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("market group failed",
					"scraper", cfg.ID, "region", group.Representative(),
					"currency", group.Currency, "error", err)
				result.SoftErrors = append(result.SoftErrors, SoftError{
					Region:   group.Representative(),
					Currency: group.Currency,
					Err:      err,
				})
				return nil
			}
			result.Markets[group.Representative()] = *price
			return nil
		})
	}
	// Workers only record soft errors; Wait returns nil unless the
	// context itself died.
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(result.Markets) == 0 {
		return nil, &AllMarketsFailedError{Reasons: result.SoftErrors}
	}
	return result, nil
}

func (s *Scraper) scrapeGroup(ctx context.Context, url string, cfg *models.ScraperConfig, group Group) (*models.MarketPrice, error) {
	rep := group.Representative()

	switch cfg.MarketMethod {
	case models.MarketStorefrontAPI:
		return s.scrapeViaStorefront(ctx, url, cfg, rep, group.Currency)
	case models.MarketCookieInjection:
		return s.scrapeViaCookies(ctx, url, cfg, rep, group.Currency)
	default:
		return nil, fmt.Errorf("scraper %s has no market method", cfg.ID)
	}
}

func (s *Scraper) scrapeViaStorefront(ctx context.Context, url string, cfg *models.ScraperConfig, region, currency string) (*models.MarketPrice, error) {
	quote, err := s.storefront.Quote(ctx, url, region, cfg)
	if err != nil {
		return nil, err
	}
	if quote.Country != region {
		return nil, fmt.Errorf("%w: requested region %s, got %s", ErrMismatch, region, quote.Country)
	}
	if quote.Currency != currency {
		return nil, fmt.Errorf("%w: expected currency %s, got %s", ErrMismatch, currency, quote.Currency)
	}
	available := quote.Available
	return &models.MarketPrice{
		Region:   region,
		Currency: currency,
		Price:    quote.Price,
		InStock:  &available,
	}, nil
}

func (s *Scraper) scrapeViaCookies(ctx context.Context, url string, cfg *models.ScraperConfig, region, currency string) (*models.MarketPrice, error) {
	opts := fetch.Options{
		Strategy: cfg.Strategy,
		Cookies:  localeCookies(cfg, region, currency),
	}

	res, err := s.parser.ParseWithOptions(ctx, url, cfg, opts)
	if err != nil {
		return nil, err
	}

	// Validate the response's own markers against the requested market.
	// A present-but-wrong region marker is a mismatch; currency must be
	// confirmed, since an unconfirmed currency would silently record a
	// price under the wrong denomination.
	if res.Region != "" && !strings.EqualFold(res.Region, region) {
		return nil, fmt.Errorf("%w: requested region %s, got %s", ErrMismatch, region, res.Region)
	}
	if res.Currency == "" {
		return nil, fmt.Errorf("%w: no currency marker in response for %s", ErrMismatch, region)
	}
	if !strings.EqualFold(res.Currency, currency) {
		return nil, fmt.Errorf("%w: expected currency %s, got %s", ErrMismatch, currency, res.Currency)
	}
	if res.Price == nil {
		return nil, fmt.Errorf("no price extracted for region %s", region)
	}

	return &models.MarketPrice{
		Region:   region,
		Currency: currency,
		Price:    *res.Price,
		InStock:  res.InStock,
	}, nil
}

// localeCookies expands the config's cookie templates for one market.
// Values may contain the placeholders {region} and {currency}.
func localeCookies(cfg *models.ScraperConfig, region, currency string) []fetch.Cookie {
	cookies := make([]fetch.Cookie, 0, len(cfg.MarketCookies))
	for name, tmpl := range cfg.MarketCookies {
		val := strings.NewReplacer("{region}", region, "{currency}", currency).Replace(tmpl)
		cookies = append(cookies, fetch.Cookie{
			Name:   name,
			Value:  val,
			Domain: cfg.Domain,
			Path:   "/",
		})
	}
	return cookies
}
