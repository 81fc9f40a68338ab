package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gearhound/price-engine/internal/models"
	"github.com/gearhound/price-engine/internal/rules"
)

// PostgresStore persists tracked items and scraper configs. It is the
// production ItemStore + ConfigSource; every successful scrape also
// appends one price-history row per market.
type PostgresStore struct {
	db *DB
}

func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS scraper_config (
	id                  TEXT PRIMARY KEY,
	domain              TEXT NOT NULL,
	default_currency    TEXT NOT NULL DEFAULT '',
	regions             JSONB NOT NULL DEFAULT '[]',
	strategy            TEXT NOT NULL DEFAULT 'http',
	multi_market        BOOLEAN NOT NULL DEFAULT FALSE,
	market_method       TEXT NOT NULL DEFAULT '',
	storefront_endpoint TEXT NOT NULL DEFAULT '',
	storefront_token    TEXT NOT NULL DEFAULT '',
	market_cookies      JSONB NOT NULL DEFAULT '{}',
	rules               JSONB NOT NULL DEFAULT '[]',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tracked_item (
	id                   TEXT PRIMARY KEY,
	url                  TEXT NOT NULL,
	scraper_id           TEXT NOT NULL REFERENCES scraper_config(id),
	price                TEXT,
	currency             TEXT NOT NULL DEFAULT '',
	in_stock             BOOLEAN,
	status_text          TEXT NOT NULL DEFAULT '',
	shipping             TEXT NOT NULL DEFAULT '',
	markets              JSONB NOT NULL DEFAULT '{}',
	consecutive_failures INT NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT '',
	last_attempt_at      TIMESTAMPTZ,
	last_scraped_at      TIMESTAMPTZ,
	failures_reset_at    TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tracked_item_scraper ON tracked_item(scraper_id);
CREATE INDEX IF NOT EXISTS idx_tracked_item_attempt ON tracked_item(last_attempt_at);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	item_id     TEXT NOT NULL REFERENCES tracked_item(id),
	region      TEXT NOT NULL DEFAULT '',
	currency    TEXT NOT NULL,
	price       TEXT NOT NULL,
	in_stock    BOOLEAN,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_price_history_item ON price_history(item_id, recorded_at);

CREATE TABLE IF NOT EXISTS outbox_event (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	target_stream  TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	retry_count    INT NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at   TIMESTAMPTZ,
	next_retry_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_event(status, next_retry_at);
`

// EnsureSchema creates the tables used by the store and the outbox.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ScraperConfig(ctx context.Context, id string) (*models.ScraperConfig, error) {
	query := `
		SELECT id, domain, default_currency, regions, strategy,
			multi_market, market_method, storefront_endpoint,
			storefront_token, market_cookies, rules
		FROM scraper_config
		WHERE id = $1`

	var (
		cfg         models.ScraperConfig
		regionsJSON []byte
		cookiesJSON []byte
		rulesJSON   []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&cfg.ID, &cfg.Domain, &cfg.DefaultCurrency, &regionsJSON, &cfg.Strategy,
		&cfg.MultiMarket, &cfg.MarketMethod, &cfg.StorefrontEndpoint,
		&cfg.StorefrontToken, &cookiesJSON, &rulesJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScraperNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scraper config: %w", err)
	}

	if err := json.Unmarshal(regionsJSON, &cfg.Regions); err != nil {
		return nil, fmt.Errorf("failed to decode regions: %w", err)
	}
	if err := json.Unmarshal(cookiesJSON, &cfg.MarketCookies); err != nil {
		return nil, fmt.Errorf("failed to decode market cookies: %w", err)
	}
	if err := json.Unmarshal(rulesJSON, &cfg.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	// Rules come out of JSONB uncompiled.
	if err := rules.CompileAll(cfg.Rules); err != nil {
		return nil, fmt.Errorf("failed to compile rules for scraper %s: %w", id, err)
	}

	return &cfg, nil
}

// SaveScraperConfig inserts or updates a scraper config.
func (s *PostgresStore) SaveScraperConfig(ctx context.Context, cfg *models.ScraperConfig) error {
	regionsJSON, err := json.Marshal(cfg.Regions)
	if err != nil {
		return fmt.Errorf("failed to encode regions: %w", err)
	}
	cookiesJSON, err := json.Marshal(cfg.MarketCookies)
	if err != nil {
		return fmt.Errorf("failed to encode market cookies: %w", err)
	}
	rulesJSON, err := json.Marshal(cfg.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	query := `
		INSERT INTO scraper_config (
			id, domain, default_currency, regions, strategy,
			multi_market, market_method, storefront_endpoint,
			storefront_token, market_cookies, rules
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			domain = EXCLUDED.domain,
			default_currency = EXCLUDED.default_currency,
			regions = EXCLUDED.regions,
			strategy = EXCLUDED.strategy,
			multi_market = EXCLUDED.multi_market,
			market_method = EXCLUDED.market_method,
			storefront_endpoint = EXCLUDED.storefront_endpoint,
			storefront_token = EXCLUDED.storefront_token,
			market_cookies = EXCLUDED.market_cookies,
			rules = EXCLUDED.rules,
			updated_at = NOW()`

	_, err = s.db.Exec(ctx, query,
		cfg.ID, cfg.Domain, cfg.DefaultCurrency, regionsJSON, cfg.Strategy,
		cfg.MultiMarket, cfg.MarketMethod, cfg.StorefrontEndpoint,
		cfg.StorefrontToken, cookiesJSON, rulesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save scraper config: %w", err)
	}
	return nil
}

const itemColumns = `
	id, url, scraper_id, price, currency, in_stock, status_text,
	shipping, markets, consecutive_failures, last_error,
	last_attempt_at, last_scraped_at, failures_reset_at`

func (s *PostgresStore) Item(ctx context.Context, id string) (*models.TrackedItem, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM tracked_item WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) Items(ctx context.Context) ([]*models.TrackedItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+itemColumns+` FROM tracked_item ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*models.TrackedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// CreateItem inserts a fresh tracked item with no scrape state.
func (s *PostgresStore) CreateItem(ctx context.Context, item *models.TrackedItem) error {
	query := `
		INSERT INTO tracked_item (id, url, scraper_id)
		VALUES ($1, $2, $3)`
	_, err := s.db.Exec(ctx, query, item.ID, item.URL, item.ScraperID)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.Exec(ctx,
		`UPDATE tracked_item SET last_attempt_at = $2, updated_at = NOW() WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, item *models.TrackedItem) error {
	marketsJSON, err := json.Marshal(item.Markets)
	if err != nil {
		return fmt.Errorf("failed to encode markets: %w", err)
	}

	var price sql.NullString
	if item.Price != nil {
		price = sql.NullString{String: item.Price.String(), Valid: true}
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE tracked_item SET
				price = $2,
				currency = $3,
				in_stock = $4,
				status_text = $5,
				shipping = $6,
				markets = $7,
				consecutive_failures = $8,
				last_error = $9,
				last_attempt_at = $10,
				last_scraped_at = $11,
				failures_reset_at = $12,
				updated_at = NOW()
			WHERE id = $1`

		result, err := tx.Exec(ctx, query,
			item.ID, price, item.Currency, item.InStock, item.StatusText,
			item.Shipping, marketsJSON, item.ConsecutiveFailures, item.LastError,
			nullTime(item.LastAttemptAt), nullTime(item.LastScrapedAt),
			item.FailuresResetAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrItemNotFound
		}

		return appendHistory(ctx, tx, item)
	})
}

// appendHistory writes one price-history row per market, or one headline
// row for single-market items. Failed scrapes carry no new price and
// append nothing.
func appendHistory(ctx context.Context, tx pgx.Tx, item *models.TrackedItem) error {
	if item.LastScrapedAt.IsZero() || item.LastError != "" {
		return nil
	}

	const insert = `
		INSERT INTO price_history (item_id, region, currency, price, in_stock, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if len(item.Markets) > 0 {
		for _, mp := range item.Markets {
			if _, err := tx.Exec(ctx, insert,
				item.ID, mp.Region, mp.Currency, mp.Price.String(), mp.InStock,
				item.LastScrapedAt,
			); err != nil {
				return fmt.Errorf("failed to append price history: %w", err)
			}
		}
		return nil
	}

	if item.Price == nil {
		return nil
	}
	if _, err := tx.Exec(ctx, insert,
		item.ID, "", item.Currency, item.Price.String(), item.InStock,
		item.LastScrapedAt,
	); err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}
	return nil
}

// PricePoint is one price-history observation.
type PricePoint struct {
	Region     string
	Currency   string
	Price      decimal.Decimal
	InStock    *bool
	RecordedAt time.Time
}

// History returns an item's price history, newest first.
func (s *PostgresStore) History(ctx context.Context, itemID string, limit int) ([]PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT region, currency, price, in_stock, recorded_at
		FROM price_history
		WHERE item_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var (
			p        PricePoint
			priceRaw string
		)
		if err := rows.Scan(&p.Region, &p.Currency, &priceRaw, &p.InStock, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Price, err = decimal.NewFromString(priceRaw)
		if err != nil {
			return nil, fmt.Errorf("corrupt price %q for item %s: %w", priceRaw, itemID, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}
	return points, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.TrackedItem, error) {
	var (
		item        models.TrackedItem
		price       sql.NullString
		marketsJSON []byte
		attemptAt   sql.NullTime
		scrapedAt   sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.URL, &item.ScraperID, &price, &item.Currency,
		&item.InStock, &item.StatusText, &item.Shipping, &marketsJSON,
		&item.ConsecutiveFailures, &item.LastError,
		&attemptAt, &scrapedAt, &item.FailuresResetAt,
	)
	if err != nil {
		return nil, err
	}

	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt price %q: %w", price.String, err)
		}
		item.Price = &d
	}
	if attemptAt.Valid {
		item.LastAttemptAt = attemptAt.Time
	}
	if scrapedAt.Valid {
		item.LastScrapedAt = scrapedAt.Time
	}
	if err := json.Unmarshal(marketsJSON, &item.Markets); err != nil {
		return nil, fmt.Errorf("failed to decode markets: %w", err)
	}
	if len(item.Markets) == 0 {
		item.Markets = nil
	}
	return &item, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
