package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Fetcher   FetcherConfig
	Browser   BrowserConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Proxy     ProxyConfig
	RateLimit RateLimitConfig
	Relay     RelayConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type FetcherConfig struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MarketWorkers  int
	UserAgents     []string
}

type BrowserConfig struct {
	Enabled        bool
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type ProxyConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

type RateLimitConfig struct {
	Requests int
	Period   time.Duration
	// ScrapeRequests caps the manual-scrape endpoint separately; it is
	// far more expensive than reads.
	ScrapeRequests int
	ScrapePeriod   time.Duration
	PurgeInterval  time.Duration
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Fetcher: FetcherConfig{
			ConnectTimeout: getDurationOrDefault("FETCH_CONNECT_TIMEOUT", 10*time.Second),
			TotalTimeout:   getDurationOrDefault("FETCH_TOTAL_TIMEOUT", 30*time.Second),
			MinDelay:       getDurationOrDefault("FETCH_MIN_DELAY", 2*time.Second),
			MaxDelay:       getDurationOrDefault("FETCH_MAX_DELAY", 8*time.Second),
			MarketWorkers:  getIntOrDefault("FETCH_MARKET_WORKERS", 3),
			UserAgents:     getStringSliceOrDefault("FETCH_USER_AGENTS", nil),
		},
		Browser: BrowserConfig{
			Enabled:        getBoolOrDefault("BROWSER_ENABLED", false),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "UTC"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", true),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_engine"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", true),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Proxy: ProxyConfig{
			Endpoint: getEnvOrDefault("PROXY_ENDPOINT", ""),
			Token:    getEnvOrDefault("PROXY_TOKEN", ""),
			Timeout:  getDurationOrDefault("PROXY_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests:       getIntOrDefault("RATE_LIMIT_REQUESTS", 60),
			Period:         getDurationOrDefault("RATE_LIMIT_PERIOD", time.Minute),
			ScrapeRequests: getIntOrDefault("RATE_LIMIT_SCRAPE_REQUESTS", 5),
			ScrapePeriod:   getDurationOrDefault("RATE_LIMIT_SCRAPE_PERIOD", time.Minute),
			PurgeInterval:  getDurationOrDefault("RATE_LIMIT_PURGE_INTERVAL", 5*time.Minute),
		},
		Relay: RelayConfig{
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Fetcher.MarketWorkers < 1 {
		return fmt.Errorf("FETCH_MARKET_WORKERS must be at least 1")
	}
	if c.Fetcher.MinDelay > c.Fetcher.MaxDelay {
		return fmt.Errorf("FETCH_MIN_DELAY cannot be greater than FETCH_MAX_DELAY")
	}
	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.RateLimit.Period <= 0 {
		return fmt.Errorf("RATE_LIMIT_PERIOD must be positive")
	}
	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}
	if c.Proxy.Endpoint != "" && c.Proxy.Token == "" {
		return fmt.Errorf("PROXY_TOKEN is required when PROXY_ENDPOINT is set")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
