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
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/experience-booking/internal/application"
	"github.com/example/experience-booking/internal/config"
	httptransport "github.com/example/experience-booking/internal/http"
	"github.com/example/experience-booking/internal/logging"
	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/persistence/memory"
	"github.com/example/experience-booking/internal/persistence/sqlite"
	"github.com/example/experience-booking/internal/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stdout, "info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening", "addr", server.Addr, "storage", cfg.StorageDriver,
		"cache", cfg.CacheBackend, "rate_limit", cfg.RateLimitBackend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// app owns everything main has to release on shutdown.
type app struct {
	handler http.Handler
	store   persistence.Store
	redis   redis.UniversalClient
	stop    context.CancelFunc
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store

	if cfg.CacheBackend == config.BackendRedis || cfg.RateLimitBackend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			// The cache and the limiter degrade on their own; start anyway.
			logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		a.redis = client
	}

	var cache application.CatalogCache
	if cfg.CacheBackend == config.BackendRedis {
		cache = application.NewRedisCatalogCache(a.redis, cfg.CatalogCacheTTL, logger)
	} else {
		cache = application.NewLRUCatalogCache(cfg.CatalogCacheSize, cfg.CatalogCacheTTL)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitBackend == config.BackendRedis {
		limiter = ratelimit.NewRedisLimiter(a.redis, cfg.RateLimit, cfg.RateLimitWindow, nil)
	} else {
		memoryLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow, nil)
		pruneCtx, cancel := context.WithCancel(context.Background())
		a.stop = cancel
		go pruneLoop(pruneCtx, memoryLimiter, cfg.RateLimitWindow)
		limiter = memoryLimiter
	}

	settings := application.NewStaticSettings(cfg.Timezone, cfg.Currency)
	a.handler = buildHandler(store, cache, limiter, settings, cfg.PreviewMonthCap, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}

	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLitePath), sqlite.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

func buildHandler(store persistence.Store, cache application.CatalogCache, limiter ratelimit.Limiter, settings application.SiteSettings, monthCap int, logger *slog.Logger) http.Handler {
	now := time.Now
	idGenerator := uuid.NewString

	availability := application.NewAvailabilityServiceWithLogger(application.AvailabilityDeps{
		Slots:        store,
		Reservations: store,
		Experiences:  store,
		Cache:        cache,
		Settings:     settings,
		IDGenerator:  idGenerator,
		Now:          now,
		MonthCap:     monthCap,
	}, logger)
	capacity := application.NewCapacityServiceWithLogger(application.CapacityDeps{
		Slots:        store,
		Reservations: store,
		Experiences:  store,
		Cache:        cache,
		Settings:     settings,
		IDGenerator:  idGenerator,
		Now:          now,
	}, logger)
	pricing := application.NewPricingServiceWithLogger(store, store, cache, settings, logger)
	experiences := application.NewExperienceServiceWithLogger(store, cache, settings, now, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Availability: httptransport.NewAvailabilityHandler(availability, logger),
		Slots:        httptransport.NewSlotHandler(capacity, logger),
		Catalog:      httptransport.NewCatalogHandler(pricing, experiences, logger),
		RateLimit:    httptransport.RateLimit(limiter, logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
}

func pruneLoop(ctx context.Context, limiter *ratelimit.MemoryLimiter, window time.Duration) {
	if window <= 0 {
		window = time.Minute
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}

// Close releases the store, the redis client and background workers.
func (a *app) Close() {
	if a.stop != nil {
		a.stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close storage", "error", err)
		}
	}
}
