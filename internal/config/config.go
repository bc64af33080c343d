// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"
	APIKey    string // required on scoring and blacklist endpoints when set

	// Backing services. Both are optional; empty means in-memory.
	DatabaseURL  string
	RedisURL     string
	OTLPEndpoint string

	// Admission
	RateLimitIP     int
	RateLimitEmail  int
	RateLimitWindow time.Duration

	// Scoring
	Scores          ScoreDeltas
	ThresholdBlock  int
	ThresholdReview int
	VelocityWindow  time.Duration
	VelocityLimit   int
	StoreTimeout    time.Duration

	// Lookups
	CacheTTL       time.Duration
	DeviceCacheTTL time.Duration
	LookupTimeout  time.Duration
	GeoProviders   []string
	BINProviders   []string

	// Rule lists, merged with the built-in defaults
	DisposableDomains []string
	BotSignatures     []string
	SeedBlacklistIPs  []string

	// Alerts
	WebhookURLs   []string
	WebhookSecret string
}

// ScoreDeltas are the per-flag score contributions.
type ScoreDeltas struct {
	GeoMismatch      int
	TimezoneMismatch int
	TemporaryEmail   int
	SuspiciousEmail  int
	InvalidEmail     int
	Velocity         int
	BotActivity      int
	TypingTooFast    int
	DeviceSuspicious int
	FrequentDevice   int
	IPBlacklisted    int
	AnomalyMax       int
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultRateLimitIP     = 60
	DefaultRateLimitEmail  = 20
	DefaultRateLimitWindow = time.Minute
	DefaultThresholdBlock  = 80
	DefaultThresholdReview = 50
	DefaultVelocityWindow  = 5 * time.Minute
	DefaultVelocityLimit   = 3
	DefaultStoreTimeout    = time.Second
	DefaultCacheTTLHours   = 24
	DefaultDeviceCacheTTL  = time.Hour
	DefaultLookupTimeout   = 2 * time.Second
)

// DefaultScores returns the stock per-flag contributions.
func DefaultScores() ScoreDeltas {
	return ScoreDeltas{
		GeoMismatch:      30,
		TimezoneMismatch: 20,
		TemporaryEmail:   25,
		SuspiciousEmail:  15,
		InvalidEmail:     25,
		Velocity:         20,
		BotActivity:      20,
		TypingTooFast:    15,
		DeviceSuspicious: 10,
		FrequentDevice:   15,
		IPBlacklisted:    40,
		AnomalyMax:       20,
	}
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	d := DefaultScores()
	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:    getEnv("LOG_FORMAT", DefaultLogFormat),
		APIKey:       os.Getenv("API_KEY"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		RateLimitIP:     getEnvInt("RATE_LIMIT_IP", DefaultRateLimitIP),
		RateLimitEmail:  getEnvInt("RATE_LIMIT_EMAIL", DefaultRateLimitEmail),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),

		Scores: ScoreDeltas{
			GeoMismatch:      getEnvInt("SCORE_GEO_MISMATCH", d.GeoMismatch),
			TimezoneMismatch: getEnvInt("SCORE_TIMEZONE_MISMATCH", d.TimezoneMismatch),
			TemporaryEmail:   getEnvInt("SCORE_TEMP_EMAIL", d.TemporaryEmail),
			SuspiciousEmail:  getEnvInt("SCORE_SUSPICIOUS_EMAIL", d.SuspiciousEmail),
			InvalidEmail:     getEnvInt("SCORE_INVALID_EMAIL", d.InvalidEmail),
			Velocity:         getEnvInt("SCORE_VELOCITY", d.Velocity),
			BotActivity:      getEnvInt("SCORE_BOT_ACTIVITY", d.BotActivity),
			TypingTooFast:    getEnvInt("SCORE_TYPING_TOO_FAST", d.TypingTooFast),
			DeviceSuspicious: getEnvInt("SCORE_DEVICE_SUSPICIOUS", d.DeviceSuspicious),
			FrequentDevice:   getEnvInt("SCORE_FREQUENT_DEVICE", d.FrequentDevice),
			IPBlacklisted:    getEnvInt("SCORE_IP_BLACKLISTED", d.IPBlacklisted),
			AnomalyMax:       getEnvInt("SCORE_ANOMALY_MAX", d.AnomalyMax),
		},
		ThresholdBlock:  getEnvInt("THRESHOLD_BLOCK", DefaultThresholdBlock),
		ThresholdReview: getEnvInt("THRESHOLD_REVIEW", DefaultThresholdReview),
		VelocityWindow:  getEnvDuration("VELOCITY_WINDOW", DefaultVelocityWindow),
		VelocityLimit:   getEnvInt("VELOCITY_LIMIT", DefaultVelocityLimit),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", DefaultStoreTimeout),

		CacheTTL:       time.Duration(getEnvInt("CACHE_TTL_HOURS", DefaultCacheTTLHours)) * time.Hour,
		DeviceCacheTTL: getEnvDuration("DEVICE_CACHE_TTL", DefaultDeviceCacheTTL),
		LookupTimeout:  getEnvDuration("LOOKUP_TIMEOUT", DefaultLookupTimeout),
		GeoProviders:   getEnvList("GEO_PROVIDERS", []string{"ipapi", "ipwhois"}),
		BINProviders:   getEnvList("BIN_PROVIDERS", []string{"bintable", "binlist"}),

		DisposableDomains: getEnvList("DISPOSABLE_DOMAINS", nil),
		BotSignatures:     getEnvList("BOT_SIGNATURES", nil),
		SeedBlacklistIPs:  getEnvList("SEED_BLACKLIST_IPS", nil),

		WebhookURLs:   getEnvList("WEBHOOK_URLS", nil),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and cross-field constraints. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.ThresholdReview <= 0 || c.ThresholdReview > c.ThresholdBlock || c.ThresholdBlock > 100 {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 < THRESHOLD_REVIEW (%d) <= THRESHOLD_BLOCK (%d) <= 100",
			c.ThresholdReview, c.ThresholdBlock))
	}

	for name, v := range map[string]int{
		"SCORE_GEO_MISMATCH":      c.Scores.GeoMismatch,
		"SCORE_TIMEZONE_MISMATCH": c.Scores.TimezoneMismatch,
		"SCORE_TEMP_EMAIL":        c.Scores.TemporaryEmail,
		"SCORE_SUSPICIOUS_EMAIL":  c.Scores.SuspiciousEmail,
		"SCORE_INVALID_EMAIL":     c.Scores.InvalidEmail,
		"SCORE_VELOCITY":          c.Scores.Velocity,
		"SCORE_BOT_ACTIVITY":      c.Scores.BotActivity,
		"SCORE_TYPING_TOO_FAST":   c.Scores.TypingTooFast,
		"SCORE_DEVICE_SUSPICIOUS": c.Scores.DeviceSuspicious,
		"SCORE_FREQUENT_DEVICE":   c.Scores.FrequentDevice,
		"SCORE_IP_BLACKLISTED":    c.Scores.IPBlacklisted,
		"SCORE_ANOMALY_MAX":       c.Scores.AnomalyMax,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", name, v))
		}
	}

	for name, v := range map[string]int{
		"RATE_LIMIT_IP":    c.RateLimitIP,
		"RATE_LIMIT_EMAIL": c.RateLimitEmail,
		"VELOCITY_LIMIT":   c.VelocityLimit,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %d", name, v))
		}
	}

	for name, v := range map[string]time.Duration{
		"RATE_LIMIT_WINDOW": c.RateLimitWindow,
		"VELOCITY_WINDOW":   c.VelocityWindow,
		"STORE_TIMEOUT":     c.StoreTimeout,
		"CACHE_TTL_HOURS":   c.CacheTTL,
		"DEVICE_CACHE_TTL":  c.DeviceCacheTTL,
		"LOOKUP_TIMEOUT":    c.LookupTimeout,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, v))
		}
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
