package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func validConfig() Config {
	return Config{
		LogFormat:       "text",
		RateLimitIP:     60,
		RateLimitEmail:  20,
		RateLimitWindow: time.Minute,
		Scores:          DefaultScores(),
		ThresholdBlock:  80,
		ThresholdReview: 50,
		VelocityWindow:  5 * time.Minute,
		VelocityLimit:   3,
		StoreTimeout:    time.Second,
		CacheTTL:        24 * time.Hour,
		DeviceCacheTTL:  time.Hour,
		LookupTimeout:   2 * time.Second,
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "THRESHOLD_BLOCK", "")
	setEnv(t, "GEO_PROVIDERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultThresholdBlock, cfg.ThresholdBlock)
	assert.Equal(t, DefaultThresholdReview, cfg.ThresholdReview)
	assert.Equal(t, DefaultScores(), cfg.Scores)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, []string{"ipapi", "ipwhois"}, cfg.GeoProviders)
	assert.Equal(t, []string{"bintable", "binlist"}, cfg.BINProviders)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "SCORE_IP_BLACKLISTED", "55")
	setEnv(t, "RATE_LIMIT_WINDOW", "30s")
	setEnv(t, "CACHE_TTL_HOURS", "6")
	setEnv(t, "SEED_BLACKLIST_IPS", " 10.0.0.1, ,10.0.0.2 ")
	setEnv(t, "WEBHOOK_URLS", "http://a.local/hook")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 55, cfg.Scores.IPBlacklisted)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 6*time.Hour, cfg.CacheTTL)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.SeedBlacklistIPs)
	assert.Equal(t, []string{"http://a.local/hook"}, cfg.WebhookURLs)
}

func TestLoad_UnparsableFallsBackToDefault(t *testing.T) {
	setEnv(t, "RATE_LIMIT_IP", "lots")
	setEnv(t, "LOOKUP_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultRateLimitIP, cfg.RateLimitIP)
	assert.Equal(t, DefaultLookupTimeout, cfg.LookupTimeout)
}

func TestLoad_InvalidThresholds(t *testing.T) {
	setEnv(t, "THRESHOLD_BLOCK", "40")
	setEnv(t, "THRESHOLD_REVIEW", "60")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "THRESHOLD_REVIEW")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "review equals block", mutate: func(c *Config) { c.ThresholdReview = 80 }},
		{name: "zero review", mutate: func(c *Config) { c.ThresholdReview = 0 }, wantErr: "THRESHOLD_REVIEW"},
		{name: "block above 100", mutate: func(c *Config) { c.ThresholdBlock = 120 }, wantErr: "THRESHOLD_BLOCK"},
		{name: "negative delta", mutate: func(c *Config) { c.Scores.Velocity = -5 }, wantErr: "SCORE_VELOCITY must be >= 0"},
		{name: "zero ip limit", mutate: func(c *Config) { c.RateLimitIP = 0 }, wantErr: "RATE_LIMIT_IP must be > 0"},
		{name: "zero window", mutate: func(c *Config) { c.VelocityWindow = 0 }, wantErr: "VELOCITY_WINDOW must be positive"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	cfg := &Config{Env: "production"}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
