package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Backends for the catalog cache and the rate limiter.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort         int
	StorageDriver    string
	SQLitePath       string
	Timezone         *time.Location
	Currency         string
	PreviewMonthCap  int
	CacheBackend     string
	CatalogCacheTTL  time.Duration
	CatalogCacheSize int
	RedisAddr        string
	RateLimitBackend string
	RateLimit        int
	RateLimitWindow  time.Duration
	LogLevel         string
}

// Load reads an optional .env file (BOOKING_ENV_FILE, default ".env") and
// then parses configuration values from the process environment. Variables
// already set in the environment win over the file.
//
// Defaults apply to every optional key; missing and invalid keys are each
// reported together in one error.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("BOOKING_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Config{
		HTTPPort:         8080,
		StorageDriver:    StorageSQLite,
		SQLitePath:       "data/booking.db",
		Timezone:         time.UTC,
		PreviewMonthCap:  12,
		CacheBackend:     BackendMemory,
		CatalogCacheTTL:  5 * time.Minute,
		CatalogCacheSize: 256,
		RateLimitBackend: BackendMemory,
		RateLimit:        30,
		RateLimitWindow:  time.Minute,
		LogLevel:         "info",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	positiveInt := func(key string, target *int) {
		if value := lookup(key); value != "" {
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				invalid = append(invalid, key)
				return
			}
			*target = n
		}
	}
	positiveDuration := func(key string, target *time.Duration) {
		if value := lookup(key); value != "" {
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				invalid = append(invalid, key)
				return
			}
			*target = d
		}
	}
	oneOf := func(key string, target *string, allowed ...string) {
		if value := strings.ToLower(lookup(key)); value != "" {
			for _, candidate := range allowed {
				if value == candidate {
					*target = value
					return
				}
			}
			invalid = append(invalid, key)
		}
	}

	positiveInt("BOOKING_HTTP_PORT", &cfg.HTTPPort)
	oneOf("BOOKING_STORAGE_DRIVER", &cfg.StorageDriver, StorageSQLite, StorageMemory)
	if path := lookup("BOOKING_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if name := lookup("BOOKING_TIMEZONE"); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			invalid = append(invalid, "BOOKING_TIMEZONE")
		} else {
			cfg.Timezone = loc
		}
	}
	if currency := strings.ToUpper(lookup("BOOKING_CURRENCY")); currency != "" {
		if len(currency) != 3 {
			invalid = append(invalid, "BOOKING_CURRENCY")
		} else {
			cfg.Currency = currency
		}
	}

	positiveInt("BOOKING_PREVIEW_MONTH_CAP", &cfg.PreviewMonthCap)
	oneOf("BOOKING_CACHE_BACKEND", &cfg.CacheBackend, BackendMemory, BackendRedis)
	positiveDuration("BOOKING_CATALOG_CACHE_TTL", &cfg.CatalogCacheTTL)
	positiveInt("BOOKING_CATALOG_CACHE_SIZE", &cfg.CatalogCacheSize)
	oneOf("BOOKING_RATE_LIMIT_BACKEND", &cfg.RateLimitBackend, BackendMemory, BackendRedis)
	positiveInt("BOOKING_RATE_LIMIT", &cfg.RateLimit)
	positiveDuration("BOOKING_RATE_LIMIT_WINDOW", &cfg.RateLimitWindow)
	oneOf("BOOKING_LOG_LEVEL", &cfg.LogLevel, "debug", "info", "warn", "error")

	cfg.RedisAddr = lookup("BOOKING_REDIS_ADDR")
	if cfg.RedisAddr == "" && (cfg.CacheBackend == BackendRedis || cfg.RateLimitBackend == BackendRedis) {
		missing = append(missing, "BOOKING_REDIS_ADDR")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
