package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gearhound/price-engine/internal/fetch"
	"github.com/gearhound/price-engine/internal/market"
	"github.com/gearhound/price-engine/internal/models"
	"github.com/gearhound/price-engine/internal/monitoring"
	"github.com/gearhound/price-engine/internal/scraper"
)

// State is the terminal state of one scrape attempt.
type State string

const (
	StateSucceeded          State = "succeeded"
	StatePartiallySucceeded State = "partially_succeeded"
	StateFailed             State = "failed"
)

// ConfigSource looks up scraper configurations. Owned by the external
// configuration store; read-only here.
type ConfigSource interface {
	ScraperConfig(ctx context.Context, id string) (*models.ScraperConfig, error)
}

// ItemStore owns tracked-item rows. The orchestrator is the only caller
// that mutates them.
type ItemStore interface {
	Item(ctx context.Context, id string) (*models.TrackedItem, error)
	// RecordAttempt advances the item's last-attempt marker. It is
	// written before the scrape runs so a crash or hang mid-fetch still
	// leaves the marker advanced and the scheduler never starves on a
	// stuck item.
	RecordAttempt(ctx context.Context, id string, at time.Time) error
	Update(ctx context.Context, item *models.TrackedItem) error
}

// PriceUpdated is the sole signal to external cache/history listeners.
// It carries only the item identifier; listeners read state themselves.
type PriceUpdated struct {
	EventID   string
	ItemID    string
	Timestamp time.Time
}

// EventPublisher delivers domain events to external listeners.
type EventPublisher interface {
	PublishPriceUpdated(ctx context.Context, evt PriceUpdated) error
}

// Outcome is the ephemeral result of one orchestrator invocation. The
// caller owns storage and history rows; the engine only returns this.
type Outcome struct {
	ItemID      string
	State       State
	Fields      *scraper.FieldResults
	Markets     map[string]models.MarketPrice
	SoftErrors  []market.SoftError
	HardError   string
	AttemptedAt time.Time
}

// Orchestrator is the engine's top-level entry point: it loads a tracked
// item, runs the single- or multi-market flow, updates health counters,
// and returns a structured outcome. All collaborators are injected.
type Orchestrator struct {
	configs ConfigSource
	items   ItemStore
	parser  *scraper.Parser
	markets *market.Scraper
	events  EventPublisher
	metrics *monitoring.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(configs ConfigSource, items ItemStore, parser *scraper.Parser, markets *market.Scraper, events EventPublisher, metrics *monitoring.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		configs: configs,
		items:   items,
		parser:  parser,
		markets: markets,
		events:  events,
		metrics: metrics,
		logger:  logger.With("component", "orchestrator"),
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Scrape runs one attempt for one tracked item. The returned error is an
// infrastructure failure (lookup or store broke); scrape failures are
// reported through the outcome's state and recorded on the item. No
// retries happen here; retry policy belongs to the external scheduler.
func (o *Orchestrator) Scrape(ctx context.Context, itemID string) (*Outcome, error) {
	item, err := o.items.Item(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	cfg, err := o.configs.ScraperConfig(ctx, item.ScraperID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scraper config %s: %w", item.ScraperID, err)
	}

	started := o.now()
	if err := o.items.RecordAttempt(ctx, item.ID, started); err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}
	item.LastAttemptAt = started

	outcome := &Outcome{ItemID: item.ID, AttemptedAt: started}

	if cfg.MultiMarket {
		o.scrapeMultiMarket(ctx, item, cfg, outcome)
	} else {
		o.scrapeSingle(ctx, item, cfg, outcome)
	}

	if outcome.State == StateFailed {
		item.ConsecutiveFailures++
		item.LastError = outcome.HardError
	} else {
		item.ConsecutiveFailures = 0
		item.LastError = ""
		item.LastScrapedAt = o.now()
	}

	if err := o.items.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to store item %s: %w", item.ID, err)
	}

	if outcome.State != StateFailed {
		o.publish(ctx, item.ID)
	}

	o.metrics.IncScrape(string(outcome.State))
	o.metrics.ObserveScrape(o.now().Sub(started))
	o.logger.Info("scrape finished",
		"item", item.ID, "state", outcome.State,
		"consecutive_failures", item.ConsecutiveFailures)

	return outcome, nil
}

func (o *Orchestrator) scrapeSingle(ctx context.Context, item *models.TrackedItem, cfg *models.ScraperConfig, outcome *Outcome) {
	res, err := o.parser.Parse(ctx, item.URL, cfg)
	if err != nil {
		outcome.State = StateFailed
		outcome.HardError = err.Error()
		return
	}
	if res.Empty() {
		// Every rule missed. Treating this as success would reset the
		// failure counter while the rule set is dead.
		outcome.State = StateFailed
		outcome.HardError = "no fields extracted"
		return
	}

	outcome.State = StateSucceeded
	outcome.Fields = res

	item.Price = res.Price
	item.InStock = res.InStock
	item.StatusText = res.StatusText
	item.Shipping = res.Shipping
	if res.Currency != "" {
		item.Currency = res.Currency
	} else {
		item.Currency = cfg.DefaultCurrency
	}
}

func (o *Orchestrator) scrapeMultiMarket(ctx context.Context, item *models.TrackedItem, cfg *models.ScraperConfig, outcome *Outcome) {
	res, err := o.markets.ScrapeAllMarkets(ctx, item.URL, cfg)
	if err != nil {
		outcome.State = StateFailed
		outcome.HardError = err.Error()
		var all *market.AllMarketsFailedError
		if errors.As(err, &all) {
			outcome.SoftErrors = all.Reasons
			for range all.Reasons {
				o.metrics.IncMarket("failed")
			}
		}
		return
	}

	outcome.Markets = res.Markets
	outcome.SoftErrors = res.SoftErrors
	if res.Partial() {
		outcome.State = StatePartiallySucceeded
	} else {
		outcome.State = StateSucceeded
	}
	for range res.Markets {
		o.metrics.IncMarket("ok")
	}
	for range res.SoftErrors {
		o.metrics.IncMarket("failed")
	}

	item.Markets = res.Markets

	// Mirror the site's default-currency market onto the item's headline
	// price so single-market readers keep working.
	for _, mp := range res.Markets {
		if mp.Currency == cfg.DefaultCurrency {
			price := mp.Price
			item.Price = &price
			item.Currency = mp.Currency
			item.InStock = mp.InStock
			break
		}
	}
}

// ResetFailures sets the item's health-reset marker: external statistics
// must only count attempts after this point. The counter itself also
// restarts from zero.
func (o *Orchestrator) ResetFailures(ctx context.Context, itemID string) error {
	item, err := o.items.Item(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	at := o.now()
	item.FailuresResetAt = &at
	item.ConsecutiveFailures = 0
	item.LastError = ""
	if err := o.items.Update(ctx, item); err != nil {
		return fmt.Errorf("failed to store item %s: %w", itemID, err)
	}
	o.logger.Info("failure counter reset", "item", itemID)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, itemID string) {
	if o.events == nil {
		return
	}
	evt := PriceUpdated{
		EventID:   uuid.New().String(),
		ItemID:    itemID,
		Timestamp: o.now(),
	}
	if err := o.events.PublishPriceUpdated(ctx, evt); err != nil {
		// Listeners drive cache invalidation and history, not the
		// scrape result: a publish failure must not fail the attempt.
		o.logger.Error("failed to publish price_updated", "item", itemID, "error", err)
	}
}

// IsHardFailure reports whether an error from the scrape path counts
// against the item's consecutive-failure counter.
func IsHardFailure(err error) bool {
	var all *market.AllMarketsFailedError
	return fetch.IsFetchError(err) || errors.As(err, &all)
}
