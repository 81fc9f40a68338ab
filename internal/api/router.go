package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gearhound/price-engine/internal/monitoring"
	"github.com/gearhound/price-engine/internal/ratelimit"
)

// RouterOptions bundles the router's collaborators.
type RouterOptions struct {
	Handlers *Handlers
	Limiter  *ratelimit.Limiter
	Metrics  *monitoring.Metrics
	// Health reports liveness details; nil means a bare "ok".
	Health func() (status int, body map[string]any)
}

// NewRouter builds the HTTP surface: read endpoints and the manual
// scrape trigger under /api/v1, plus /health and /metrics.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		if opts.Health != nil {
			status, body = opts.Health()
		}
		opts.Handlers.respondJSON(w, status, body)
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			opts.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(ratelimit.Middleware(opts.Limiter, "read", opts.Metrics))
			}
			r.Get("/items", opts.Handlers.ListItems)
			r.Get("/items/{itemID}", opts.Handlers.GetItem)
			r.Get("/items/{itemID}/markets", opts.Handlers.GetItemMarkets)
			r.Get("/items/{itemID}/history", opts.Handlers.GetItemHistory)
		})

		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(ratelimit.Middleware(opts.Limiter, "scrape", opts.Metrics))
			}
			r.Post("/items/{itemID}/scrape", opts.Handlers.TriggerScrape)
			r.Post("/items/{itemID}/reset-failures", opts.Handlers.ResetFailures)
		})
	})

	return r
}
