package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/experience-booking/internal/persistence"
)

const catalogKeyPrefix = "booking:catalog:"

// RedisCatalogCache shares cached experience configuration between service
// instances. Read and write failures are logged and treated as misses;
// invalidation failures are returned.
type RedisCatalogCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCatalogCache constructs a cache backed by client.
func NewRedisCatalogCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisCatalogCache {
	if ttl <= 0 {
		ttl = defaultCatalogCacheTTL
	}
	return &RedisCatalogCache{client: client, ttl: ttl, logger: defaultLogger(logger)}
}

func catalogKey(experienceID string) string {
	return catalogKeyPrefix + experienceID
}

func (c *RedisCatalogCache) Get(ctx context.Context, experienceID string) (persistence.Experience, bool) {
	if c == nil || c.client == nil {
		return persistence.Experience{}, false
	}
	data, err := c.client.Get(ctx, catalogKey(experienceID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "catalog cache read failed", "experience_id", experienceID, "error", err)
		}
		return persistence.Experience{}, false
	}

	var experience persistence.Experience
	if err := json.Unmarshal(data, &experience); err != nil {
		c.logger.WarnContext(ctx, "catalog cache entry corrupt", "experience_id", experienceID, "error", err)
		return persistence.Experience{}, false
	}
	return experience, true
}

func (c *RedisCatalogCache) Store(ctx context.Context, experience persistence.Experience) {
	if c == nil || c.client == nil || experience.ID == "" {
		return
	}
	data, err := json.Marshal(cloneExperience(experience))
	if err != nil {
		c.logger.WarnContext(ctx, "catalog cache encode failed", "experience_id", experience.ID, "error", err)
		return
	}
	if err := c.client.Set(ctx, catalogKey(experience.ID), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed", "experience_id", experience.ID, "error", err)
	}
}

func (c *RedisCatalogCache) Invalidate(ctx context.Context, experienceID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, catalogKey(experienceID)).Err(); err != nil {
		return fmt.Errorf("drop cached catalog %s: %w", experienceID, err)
	}
	return nil
}
