package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 60, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Period)
	assert.Equal(t, 3, cfg.Fetcher.MarketWorkers)
	assert.True(t, cfg.Database.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RATE_LIMIT_REQUESTS", "10")
	t.Setenv("RATE_LIMIT_PERIOD", "30s")
	t.Setenv("FETCH_USER_AGENTS", "agent-a,agent-b")
	t.Setenv("DB_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Period)
	assert.Equal(t, []string{"agent-a", "agent-b"}, cfg.Fetcher.UserAgents)
	assert.False(t, cfg.Database.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero market workers",
			mutate:  func(c *Config) { c.Fetcher.MarketWorkers = 0 },
			wantErr: "FETCH_MARKET_WORKERS",
		},
		{
			name: "min delay above max",
			mutate: func(c *Config) {
				c.Fetcher.MinDelay = 10 * time.Second
				c.Fetcher.MaxDelay = time.Second
			},
			wantErr: "FETCH_MIN_DELAY",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit.Requests = 0 },
			wantErr: "RATE_LIMIT_REQUESTS",
		},
		{
			name:    "proxy endpoint without token",
			mutate:  func(c *Config) { c.Proxy.Endpoint = "https://proxy.example.com" },
			wantErr: "PROXY_TOKEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
