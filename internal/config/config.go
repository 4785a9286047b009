// Package config loads pipeline configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Sentiment provider selectors.
const (
	ProviderFast     = "fast"
	ProviderAccurate = "accurate"
)

// Config holds all environment-driven configuration for the pipeline.
type Config struct {
	// InstrumentSymbol is the symbol the pipeline runs on.
	InstrumentSymbol string

	// TickStreamURL is the websocket endpoint of the tick provider.
	TickStreamURL string
	// TickStreamAPIKey is the credential for the streaming upstream.
	TickStreamAPIKey string

	// SentimentProvider selects the scoring backend: fast or accurate.
	SentimentProvider string
	// SentimentAPIKeyFast is the fast-provider credential.
	SentimentAPIKeyFast string
	// SentimentAPIKeyAccurate is the accurate-provider credential.
	SentimentAPIKeyAccurate string

	// SentimentURLFast and SentimentURLAccurate are the scoring endpoints.
	SentimentURLFast     string
	SentimentURLAccurate string

	// CompanyNewsAPIKey and MarketNewsAPIKey are news source credentials.
	CompanyNewsAPIKey string
	MarketNewsAPIKey  string
	// CompanyNewsURL and MarketNewsURL are the news API endpoints.
	CompanyNewsURL string
	MarketNewsURL  string

	// Collector gates.
	EnableCompanyNews bool
	EnableMarketNews  bool
	EnableRSSNews     bool

	// RSSFeedsConfigPath points at a JSON file listing RSS feeds.
	RSSFeedsConfigPath string
	// WeightsConfigPath points at a JSON file overriding constituent weights.
	WeightsConfigPath string

	// SkipMarketHoursCheck forces always-open for testing.
	SkipMarketHoursCheck bool

	// DatabaseURL is the canonical persistent store.
	DatabaseURL string
	// ClickhouseURL enables the optional analytics archive when set.
	ClickhouseURL string

	// SnapshotFreshWindow gates both the composer's base selection and the
	// minute analyzer's decay skip.
	SnapshotFreshWindow time.Duration

	// Verbose enables late-tick and other chatty diagnostics.
	Verbose bool

	// MetricsAddr is the Prometheus listen address; empty disables it.
	MetricsAddr string
}

// FromEnv loads configuration from environment variables, applying
// documented defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		InstrumentSymbol:        getEnv("INSTRUMENT_SYMBOL", "TQQQ"),
		TickStreamURL:           getEnv("TICK_STREAM_URL", "wss://ws.finnhub.io"),
		TickStreamAPIKey:        os.Getenv("TICK_STREAM_API_KEY"),
		SentimentProvider:       getEnv("SENTIMENT_PROVIDER", ProviderFast),
		SentimentAPIKeyFast:     os.Getenv("SENTIMENT_API_KEY_FAST"),
		SentimentAPIKeyAccurate: os.Getenv("SENTIMENT_API_KEY_ACCURATE"),
		SentimentURLFast:        getEnv("SENTIMENT_URL_FAST", "https://api.sentiment.example/v1/score"),
		SentimentURLAccurate:    getEnv("SENTIMENT_URL_ACCURATE", "https://api.sentiment.example/v1/score-accurate"),
		CompanyNewsAPIKey:       os.Getenv("COMPANY_NEWS_API_KEY"),
		MarketNewsAPIKey:        os.Getenv("MARKET_NEWS_API_KEY"),
		CompanyNewsURL:          getEnv("COMPANY_NEWS_URL", "https://finnhub.io/api/v1/company-news"),
		MarketNewsURL:           getEnv("MARKET_NEWS_URL", "https://finnhub.io/api/v1/news"),
		EnableCompanyNews:       getEnvBool("ENABLE_COMPANY_NEWS", true),
		EnableMarketNews:        getEnvBool("ENABLE_MARKET_NEWS", true),
		EnableRSSNews:           getEnvBool("ENABLE_RSS_NEWS", false),
		RSSFeedsConfigPath:      os.Getenv("RSS_FEEDS_CONFIG_PATH"),
		WeightsConfigPath:       os.Getenv("WEIGHTS_CONFIG_PATH"),
		SkipMarketHoursCheck:    getEnvBool("SKIP_MARKET_HOURS_CHECK", false),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		ClickhouseURL:           os.Getenv("CLICKHOUSE_URL"),
		Verbose:                 getEnvBool("VERBOSE", false),
		MetricsAddr:             getEnv("METRICS_ADDR", ":9090"),
	}

	freshSecs, err := getEnvInt("SNAPSHOT_FRESH_WINDOW", 70)
	if err != nil {
		return nil, err
	}
	cfg.SnapshotFreshWindow = time.Duration(freshSecs) * time.Second

	if cfg.SentimentProvider != ProviderFast && cfg.SentimentProvider != ProviderAccurate {
		return nil, fmt.Errorf("invalid SENTIMENT_PROVIDER %q: must be %q or %q",
			cfg.SentimentProvider, ProviderFast, ProviderAccurate)
	}

	return cfg, nil
}

// getEnv returns the value of key or fallback when unset.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvBool parses a boolean env var, returning fallback when unset or
// unparseable.
func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvInt parses an integer env var.
func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
