package scraper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/gearhound/price-engine/internal/extract"
	"github.com/gearhound/price-engine/internal/fetch"
	"github.com/gearhound/price-engine/internal/models"
	"github.com/gearhound/price-engine/internal/rules"
)

// FieldResults is the bag of whatever fields one scrape found. Partial
// extraction is normal: a missing price does not suppress status.
type FieldResults struct {
	Price      *decimal.Decimal
	InStock    *bool
	StatusText string
	Shipping   string

	// Currency and Region are the response's own markers, when the
	// config carries detection rules for them. Multi-market validation
	// compares these against the requested market.
	Currency string
	Region   string
}

// Empty reports whether no tracked field was extracted at all.
func (r *FieldResults) Empty() bool {
	return r.Price == nil && r.InStock == nil && r.StatusText == "" && r.Shipping == ""
}

// Parser runs the extraction pipeline per tracked field against one
// fetched document. Fetching is delegated to the injected fetcher set.
type Parser struct {
	fetchers *fetch.Set
	logger   *slog.Logger
}

func NewParser(fetchers *fetch.Set, logger *slog.Logger) *Parser {
	return &Parser{
		fetchers: fetchers,
		logger:   logger.With("component", "parser"),
	}
}

// Parse fetches the URL with the config's strategy and extracts every
// tracked field. The returned error is always a fetch failure; field
// absence is not an error.
func (p *Parser) Parse(ctx context.Context, url string, cfg *models.ScraperConfig) (*FieldResults, error) {
	return p.ParseWithOptions(ctx, url, cfg, fetch.Options{Strategy: cfg.Strategy})
}

// ParseWithOptions is Parse with explicit fetch options, used by the
// multi-market scraper to attach localization cookies.
func (p *Parser) ParseWithOptions(ctx context.Context, url string, cfg *models.ScraperConfig, opts fetch.Options) (*FieldResults, error) {
	resp, err := p.fetchers.Fetch(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	doc, err := extract.ParseDocument(resp.Body)
	if err != nil {
		return nil, &fetch.Error{URL: url, Err: err}
	}

	return p.ParseDocument(doc, cfg), nil
}

// ParseDocument extracts every tracked field from an already-fetched
// document.
func (p *Parser) ParseDocument(doc *extract.Document, cfg *models.ScraperConfig) *FieldResults {
	results := &FieldResults{}

	for _, field := range rules.Fields {
		ruleList := rules.ForField(cfg.Rules, field)
		if len(ruleList) == 0 {
			continue
		}

		val, err := extract.Run(doc, ruleList)
		if err != nil {
			if !errors.Is(err, extract.ErrNotFound) {
				p.logger.Warn("pipeline error", "field", field, "error", err)
			}
			continue
		}

		switch field {
		case rules.FieldPrice:
			// A price that post-processes to a non-numeric string is
			// treated as not found, never as a parse crash.
			if d, ok := ParsePrice(val.Text); ok {
				results.Price = &d
			}
		case rules.FieldStatus:
			if val.IsBool {
				truth := val.Truth
				results.InStock = &truth
			} else {
				results.StatusText = val.Text
			}
		case rules.FieldShipping:
			results.Shipping = val.Text
		}
	}

	results.Currency = p.detect(doc, cfg.Rules, rules.FieldCurrency)
	results.Region = p.detect(doc, cfg.Rules, rules.FieldRegion)

	return results
}

func (p *Parser) detect(doc *extract.Document, set []*rules.Rule, field rules.FieldType) string {
	ruleList := rules.ForField(set, field)
	if len(ruleList) == 0 {
		return ""
	}
	val, err := extract.Run(doc, ruleList)
	if err != nil {
		return ""
	}
	return val.Text
}
