package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gearhound/price-engine/internal/api"
	"github.com/gearhound/price-engine/internal/cache"
	"github.com/gearhound/price-engine/internal/config"
	"github.com/gearhound/price-engine/internal/events"
	"github.com/gearhound/price-engine/internal/fetch"
	"github.com/gearhound/price-engine/internal/market"
	"github.com/gearhound/price-engine/internal/models"
	"github.com/gearhound/price-engine/internal/monitoring"
	"github.com/gearhound/price-engine/internal/orchestrator"
	"github.com/gearhound/price-engine/internal/ratelimit"
	"github.com/gearhound/price-engine/internal/scraper"
	"github.com/gearhound/price-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitoring.NewMetrics()

	// Fetcher stack. HTTP is always registered; render and proxy only
	// when configured.
	httpOpts := fetch.DefaultHTTPOptions()
	httpOpts.ConnectTimeout = cfg.Fetcher.ConnectTimeout
	httpOpts.TotalTimeout = cfg.Fetcher.TotalTimeout
	httpOpts.MinDelay = cfg.Fetcher.MinDelay
	httpOpts.MaxDelay = cfg.Fetcher.MaxDelay
	if len(cfg.Fetcher.UserAgents) > 0 {
		httpOpts.UserAgents = cfg.Fetcher.UserAgents
	}

	fetchers := fetch.NewSet()
	fetchers.Register(models.FetchHTTP, fetch.NewHTTPFetcher(httpOpts))

	if cfg.Browser.Enabled {
		renderer, err := fetch.NewRenderFetcher(&fetch.RenderOptions{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			Locale:         cfg.Browser.Locale,
			TimezoneID:     cfg.Browser.TimezoneID,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize browser", "error", err)
			os.Exit(1)
		}
		defer renderer.Close()
		fetchers.Register(models.FetchRender, renderer)
	}

	if cfg.Proxy.Endpoint != "" {
		fetchers.Register(models.FetchProxy,
			fetch.NewProxyFetcher(cfg.Proxy.Endpoint, cfg.Proxy.Token, cfg.Proxy.Timeout))
	}

	// Redis backs the event relay and the storefront token cache.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
	}

	var tokens cache.Cache
	if redisClient != nil {
		tokens = cache.NewRedisCache(redisClient, "price-engine:storefront:")
	} else {
		lruCache, err := cache.NewLRUCache(256)
		if err != nil {
			logger.Error("failed to create token cache", "error", err)
			os.Exit(1)
		}
		tokens = lruCache
	}

	parser := scraper.NewParser(fetchers, logger)
	storefront := market.NewStorefrontClient(cfg.Fetcher.TotalTimeout, tokens)
	markets := market.NewScraper(parser, storefront, logger).
		WithWorkerCap(cfg.Fetcher.MarketWorkers)

	// Storage and events. Without Postgres the engine runs from memory
	// and only logs events.
	var (
		items     orchestrator.ItemStore
		configs   orchestrator.ConfigSource
		reader    api.ItemReader
		history   api.HistoryReader
		publisher orchestrator.EventPublisher
	)
	if cfg.Database.Enabled {
		db, err := store.NewDB(ctx, store.DBConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.DBName,
			MaxConns:    10,
			MinConns:    2,
			MaxConnLife: time.Hour,
			MaxConnIdle: 30 * time.Minute,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := store.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		items, configs, reader, history = pg, pg, pg, pg
		publisher = events.NewPublisher(db, logger)

		if redisClient != nil {
			relay := events.NewRelay(events.NewOutboxRepository(db), redisClient, logger, events.RelayConfig{
				PollInterval: cfg.Relay.PollInterval,
				BatchSize:    cfg.Relay.BatchSize,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		}
	} else {
		mem := store.NewMemoryStore()
		items, configs, reader = mem, mem, mem
		publisher = events.NewLogPublisher(logger)
	}

	engine := orchestrator.New(configs, items, parser, markets, publisher, metrics, logger)

	limiter := ratelimit.NewLimiter(ratelimit.Limit{
		Requests: cfg.RateLimit.Requests,
		Period:   cfg.RateLimit.Period,
	})
	limiter.Override("scrape", ratelimit.Limit{
		Requests: cfg.RateLimit.ScrapeRequests,
		Period:   cfg.RateLimit.ScrapePeriod,
	})
	go limiter.StartJanitor(ctx.Done(), cfg.RateLimit.PurgeInterval)

	handlers := api.NewHandlers(reader, history, engine, logger)
	router := api.NewRouter(api.RouterOptions{
		Handlers: handlers,
		Limiter:  limiter,
		Metrics:  metrics,
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
