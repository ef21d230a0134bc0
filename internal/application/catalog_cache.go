package application

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/experience-booking/internal/persistence"
)

// CatalogCache keeps recently read experience configuration so pricing and
// availability requests do not hit the store on every call. Implementations
// must be safe for concurrent use; a miss is never an error. Invalidate
// reports failures because a surviving entry would keep serving the old
// catalog until it expires.
type CatalogCache interface {
	Get(ctx context.Context, experienceID string) (persistence.Experience, bool)
	Store(ctx context.Context, experience persistence.Experience)
	Invalidate(ctx context.Context, experienceID string) error
}

const (
	defaultCatalogCacheTTL  = 5 * time.Minute
	defaultCatalogCacheSize = 256
)

// LRUCatalogCache is an in-process CatalogCache with a size bound and a TTL.
type LRUCatalogCache struct {
	entries *expirable.LRU[string, persistence.Experience]
}

// NewLRUCatalogCache constructs a cache holding at most size entries for ttl.
func NewLRUCatalogCache(size int, ttl time.Duration) *LRUCatalogCache {
	if size <= 0 {
		size = defaultCatalogCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCatalogCacheTTL
	}
	return &LRUCatalogCache{entries: expirable.NewLRU[string, persistence.Experience](size, nil, ttl)}
}

func (c *LRUCatalogCache) Get(_ context.Context, experienceID string) (persistence.Experience, bool) {
	if c == nil {
		return persistence.Experience{}, false
	}
	experience, ok := c.entries.Get(experienceID)
	if !ok {
		return persistence.Experience{}, false
	}
	return cloneExperience(experience), true
}

func (c *LRUCatalogCache) Store(_ context.Context, experience persistence.Experience) {
	if c == nil || experience.ID == "" {
		return
	}
	c.entries.Add(experience.ID, cloneExperience(experience))
}

func (c *LRUCatalogCache) Invalidate(_ context.Context, experienceID string) error {
	if c == nil {
		return nil
	}
	c.entries.Remove(experienceID)
	return nil
}

// Len reports the number of cached experiences.
func (c *LRUCatalogCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func cloneExperience(experience persistence.Experience) persistence.Experience {
	experience.Tickets = append([]byte(nil), experience.Tickets...)
	experience.Addons = append([]byte(nil), experience.Addons...)
	experience.PricingRules = append([]byte(nil), experience.PricingRules...)
	experience.Recurrence = append([]byte(nil), experience.Recurrence...)
	return experience
}
