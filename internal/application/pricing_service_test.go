package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/experience-booking/internal/persistence"
)

func TestPricingService_ComputeBreakdown(t *testing.T) {
	t.Parallel()

	saturday := time.Date(2025, time.March, 8, 10, 0, 0, 0, time.UTC)

	t.Run("prices a weekend slot", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")

		breakdown, err := h.pricing.ComputeBreakdown(context.Background(), BreakdownParams{
			ExperienceID: "tour",
			SlotStart:    saturday,
			Tickets:      map[string]int{"adult": 2, "child": 1, "ghost": 3},
			Addons:       map[string]int{"photo": 3},
		})
		require.NoError(t, err)

		assert.Equal(t, "USD", breakdown.Currency)
		assert.Equal(t, 3, breakdown.TotalGuests)
		require.Len(t, breakdown.Addons, 1)
		assert.Equal(t, 1, breakdown.Addons[0].Quantity)
		assert.InDelta(t, 87.5, breakdown.Subtotal, 0.001)
		require.Len(t, breakdown.Adjustments, 1)
		assert.InDelta(t, 8.75, breakdown.Adjustments[0].Amount, 0.001)
		assert.InDelta(t, 96.25, breakdown.Total, 0.001)
	})

	t.Run("uses the stored slot start", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		h.insertSlot(t, slotAt("slot", morning, 60, 4))

		breakdown, err := h.pricing.ComputeBreakdown(context.Background(), BreakdownParams{
			ExperienceID: "tour",
			SlotID:       "slot",
			SlotStart:    saturday,
			Tickets:      map[string]int{"adult": 1},
		})
		require.NoError(t, err)
		assert.Empty(t, breakdown.Adjustments)
		assert.InDelta(t, 60, breakdown.Total, 0.001)
	})

	t.Run("slot must belong to the experience", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		h.saveTour(t, "other")
		h.insertSlot(t, slotAt("slot", morning, 60, 4))

		_, err := h.pricing.ComputeBreakdown(context.Background(), BreakdownParams{ExperienceID: "other", SlotID: "slot"})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "slot_id")
	})

	t.Run("drops non-positive quantities", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")

		mixed, err := h.pricing.ComputeBreakdown(context.Background(), BreakdownParams{
			ExperienceID: "tour",
			SlotStart:    morning,
			Tickets:      map[string]int{"adult": 2, "child": -1},
			Addons:       map[string]int{"photo": 0},
		})
		require.NoError(t, err)

		plain, err := h.pricing.ComputeBreakdown(context.Background(), BreakdownParams{
			ExperienceID: "tour",
			SlotStart:    morning,
			Tickets:      map[string]int{"adult": 2},
		})
		require.NoError(t, err)

		assert.Equal(t, plain, mixed)
		require.Len(t, mixed.Tickets, 1)
		assert.Equal(t, "adult", mixed.Tickets[0].Slug)
		assert.Empty(t, mixed.Addons)
		assert.InDelta(t, 70, mixed.Total, 0.001)
	})

	t.Run("unknown experience is not found", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		_, err := h.pricing.ComputeBreakdown(context.Background(), BreakdownParams{ExperienceID: "missing", SlotStart: saturday})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestExperienceService_SaveInvalidatesCatalog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.saveTour(t, "tour")

	params := BreakdownParams{ExperienceID: "tour", SlotStart: morning}
	before, err := h.pricing.ComputeBreakdown(ctx, params)
	require.NoError(t, err)
	assert.InDelta(t, 50, before.Total, 0.001)
	assert.Equal(t, 1, h.cache.Len())

	input := tourInput("tour")
	input.BasePrice = 80
	_, err = h.experiences.SaveExperience(ctx, input)
	require.NoError(t, err)
	assert.Zero(t, h.cache.Len())

	after, err := h.pricing.ComputeBreakdown(ctx, params)
	require.NoError(t, err)
	assert.InDelta(t, 80, after.Total, 0.001)
}

type stuckCatalogCache struct {
	*LRUCatalogCache
}

func (stuckCatalogCache) Invalidate(context.Context, string) error {
	return errors.New("redis: connection refused")
}

func TestExperienceService_SaveReportsStuckCatalog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	cache := stuckCatalogCache{LRUCatalogCache: NewLRUCatalogCache(4, time.Minute)}
	service := NewExperienceService(h.store, cache, h.settings, func() time.Time { return testNow })

	_, err := service.SaveExperience(ctx, tourInput("tour"))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindUpstreamUnavailable, ErrorKind(err))

	stored, getErr := h.store.GetExperience(ctx, "tour")
	require.NoError(t, getErr)
	assert.Equal(t, "Harbour walk", stored.Title)
}

func TestExperienceService_SaveExperience(t *testing.T) {
	t.Parallel()

	t.Run("stores defaults for empty collections", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		saved, err := h.experiences.SaveExperience(context.Background(), ExperienceInput{ID: " bare ", Title: " Bare "})
		require.NoError(t, err)
		assert.Equal(t, "bare", saved.ID)
		assert.Equal(t, "Bare", saved.Title)
		assert.Equal(t, "USD", saved.Currency)
		assert.JSONEq(t, "[]", string(saved.Tickets))
		assert.JSONEq(t, "{}", string(saved.Recurrence))

		loaded, err := h.experiences.GetExperience(context.Background(), "bare")
		require.NoError(t, err)
		assert.Equal(t, saved.Title, loaded.Title)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		_, err := h.experiences.SaveExperience(context.Background(), ExperienceInput{
			BasePrice:    -1,
			Currency:     "dollars",
			Availability: persistence.AvailabilityDefaults{Capacity: -1, BufferBefore: -5},
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		for _, field := range []string{"id", "base_price", "currency", "availability.capacity", "availability.buffers"} {
			assert.Contains(t, vErr.FieldErrors, field)
		}
	})
}
