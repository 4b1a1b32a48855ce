package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	// WeatherAPIKey enables the optional WeatherAPI.com history
	// provider when set.
	WeatherAPIKey string

	// LookbackYears is the default historical window when the caller
	// does not pass years_back.
	LookbackYears int

	// MaxConcurrency caps concurrent per-year upstream fetches within
	// one variable's sample, to respect upstream rate limits.
	MaxConcurrency int

	// ProviderTimeout bounds each individual upstream call.
	ProviderTimeout time.Duration

	// RequestTimeout is the aggregate deadline for one analyze request.
	RequestTimeout time.Duration

	// CacheTTL controls how long identical (provider, coordinate, date)
	// lookups are memoized; CacheSweepInterval how often expired
	// entries are evicted.
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration

	// HTTPTimeout is the outbound HTTP client's hard timeout.
	HTTPTimeout time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")

	cfg.LookbackYears = getenvInt("LOOKBACK_YEARS", 10)
	if cfg.LookbackYears < 1 || cfg.LookbackYears > 30 {
		return nil, fmt.Errorf("LOOKBACK_YEARS must be in [1,30], got %d", cfg.LookbackYears)
	}

	cfg.MaxConcurrency = getenvInt("MAX_CONCURRENCY", 8)
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", cfg.MaxConcurrency)
	}

	var err error
	if cfg.ProviderTimeout, err = getenvDuration("PROVIDER_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getenvDuration("REQUEST_TIMEOUT", "20s"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "60s"); err != nil {
		return nil, err
	}
	if cfg.CacheSweepInterval, err = getenvDuration("CACHE_SWEEP_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
