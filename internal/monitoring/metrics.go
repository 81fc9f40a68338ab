package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scrape engine.
type Metrics struct {
	Registry        *prometheus.Registry
	ScrapesTotal    *prometheus.CounterVec
	ScrapeDuration  prometheus.Histogram
	MarketsScraped  *prometheus.CounterVec
	RateLimitDenied *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	scrapes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_engine_scrapes_total",
			Help: "Scrape attempts by outcome state.",
		},
		[]string{"state"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_engine_scrape_duration_seconds",
			Help:    "Wall time of one item's scrape attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)
	markets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_engine_market_scrapes_total",
			Help: "Per-market scrape results by result.",
		},
		[]string{"result"},
	)
	denied := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_engine_rate_limit_denied_total",
			Help: "Requests denied by the rate limiter, per endpoint.",
		},
		[]string{"endpoint"},
	)

	registry.MustRegister(scrapes, duration, markets, denied)

	return &Metrics{
		Registry:        registry,
		ScrapesTotal:    scrapes,
		ScrapeDuration:  duration,
		MarketsScraped:  markets,
		RateLimitDenied: denied,
	}
}

// IncScrape records one scrape attempt's outcome state.
func (m *Metrics) IncScrape(state string) {
	if m == nil {
		return
	}
	m.ScrapesTotal.WithLabelValues(state).Inc()
}

// ObserveScrape records a scrape attempt's duration.
func (m *Metrics) ObserveScrape(d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Observe(d.Seconds())
}

// IncMarket records one market group's result ("ok" or "failed").
func (m *Metrics) IncMarket(result string) {
	if m == nil {
		return
	}
	m.MarketsScraped.WithLabelValues(result).Inc()
}

// IncDenied records a rate-limiter denial for an endpoint.
func (m *Metrics) IncDenied(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitDenied.WithLabelValues(endpoint).Inc()
}
