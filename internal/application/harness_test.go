package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/persistence/memory"
)

// Monday morning, before the first 10:00 occurrence of the day.
var testNow = time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)

type harness struct {
	store        *memory.Storage
	cache        *LRUCatalogCache
	settings     StaticSettings
	availability *AvailabilityService
	capacity     *CapacityService
	pricing      *PricingService
	experiences  *ExperienceService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	now := func() time.Time { return testNow }
	var counter atomic.Uint64
	ids := func() string { return fmt.Sprintf("id-%05d", counter.Add(1)) }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New(memory.WithClock(now))
	cache := NewLRUCatalogCache(16, time.Minute)
	settings := NewStaticSettings(time.UTC, "usd")

	return &harness{
		store:    store,
		cache:    cache,
		settings: settings,
		availability: NewAvailabilityServiceWithLogger(AvailabilityDeps{
			Slots:        store,
			Reservations: store,
			Experiences:  store,
			Cache:        cache,
			Settings:     settings,
			IDGenerator:  ids,
			Now:          now,
		}, logger),
		capacity: NewCapacityServiceWithLogger(CapacityDeps{
			Slots:        store,
			Reservations: store,
			Experiences:  store,
			Cache:        cache,
			Settings:     settings,
			IDGenerator:  ids,
			Now:          now,
		}, logger),
		pricing:     NewPricingServiceWithLogger(store, store, cache, settings, logger),
		experiences: NewExperienceServiceWithLogger(store, cache, settings, now, logger),
	}
}

func tourInput(id string) ExperienceInput {
	return ExperienceInput{
		ID:        id,
		Title:     "Harbour walk",
		BasePrice: 50,
		Currency:  "usd",
		Tickets: []map[string]any{
			{"slug": "adult", "label": "Adult", "price": 10.0},
			{"slug": "child", "label": "Child", "price": 5.0, "max": 4},
		},
		Addons: []map[string]any{
			{"slug": "photo", "label": "Photo pack", "price": 12.5},
		},
		PricingRules: []map[string]any{
			{"type": "weekend", "label": "Weekend", "adjustment": map[string]any{"type": "percent", "value": 10.0}},
		},
		Recurrence: map[string]any{
			"days":     []any{"monday", "wed"},
			"duration": 90,
			"time_slots": []any{
				map[string]any{"time": "10:00", "capacity": 8},
			},
		},
		Availability: persistence.AvailabilityDefaults{Capacity: 10},
	}
}

func (h *harness) saveTour(t *testing.T, id string) persistence.Experience {
	t.Helper()
	saved, err := h.experiences.SaveExperience(context.Background(), tourInput(id))
	require.NoError(t, err)
	return saved
}

func (h *harness) insertSlot(t *testing.T, slot persistence.Slot) persistence.Slot {
	t.Helper()
	if slot.Status == "" {
		slot.Status = persistence.SlotStatusActive
	}
	require.NoError(t, h.store.InsertSlot(context.Background(), slot))
	return slot
}
