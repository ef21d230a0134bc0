package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/experience-booking/internal/payload"
	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/pricing"
	"github.com/example/experience-booking/internal/recurrence"
)

// experienceSource reads experience configuration through the catalog cache.
type experienceSource struct {
	repo   persistence.ExperienceRepository
	cache  CatalogCache
	logger *slog.Logger
}

func (s experienceSource) load(ctx context.Context, id string) (persistence.Experience, error) {
	if id == "" {
		return persistence.Experience{}, invalidField("experience_id", "experience id is required")
	}
	if s.cache != nil {
		if experience, ok := s.cache.Get(ctx, id); ok {
			return experience, nil
		}
	}
	if s.repo == nil {
		return persistence.Experience{}, fmt.Errorf("%w: experience repository not configured", ErrUpstreamUnavailable)
	}

	experience, err := s.repo.GetExperience(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Experience{}, ErrNotFound
		}
		return persistence.Experience{}, fmt.Errorf("%w: load experience %s: %v", ErrUpstreamUnavailable, id, err)
	}
	if s.cache != nil {
		s.cache.Store(ctx, experience)
	}
	return experience, nil
}

func (s experienceSource) invalidate(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

// decodeRecurrence returns the stored recurrence payload. Malformed JSON is
// treated as an empty definition.
func decodeRecurrence(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded
}

func decodeEntries(raw json.RawMessage) []map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return payload.Maps(decoded)
}

func availabilityDefaults(experience persistence.Experience) recurrence.Defaults {
	return recurrence.Defaults{
		Capacity:     experience.Availability.Capacity,
		BufferBefore: experience.Availability.BufferBefore,
		BufferAfter:  experience.Availability.BufferAfter,
		ResourceLock: experience.Availability.ResourceLock,
	}
}

// buildCatalog normalizes an experience's stored pricing configuration.
func buildCatalog(experience persistence.Experience, settings SiteSettings) pricing.Catalog {
	currency := experience.Currency
	if currency == "" && settings != nil {
		currency = settings.Currency()
	}
	return pricing.Catalog{
		ExperienceID: experience.ID,
		BasePrice:    max(experience.BasePrice, 0),
		Currency:     currency,
		Tickets:      pricing.NormalizeTickets(decodeEntries(experience.Tickets)),
		Addons:       pricing.NormalizeAddons(decodeEntries(experience.Addons)),
		Rules:        pricing.NormalizeRules(decodeEntries(experience.PricingRules)),
	}
}

func encodeJSON(value any, fallback string) (json.RawMessage, error) {
	if value == nil {
		return json.RawMessage(fallback), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return data, nil
}
