package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/recurrence"
)

func TestAvailabilityService_ExpandPreview(t *testing.T) {
	t.Parallel()

	t.Run("projects the stored recurrence within the month cap", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")

		result, err := h.availability.ExpandPreview(context.Background(), ExpandPreviewParams{ExperienceID: "tour", MonthCap: 1})
		require.NoError(t, err)

		assert.Equal(t, 1, result.RuleCount)
		require.Len(t, result.Occurrences, 10)
		first := result.Occurrences[0]
		assert.Equal(t, time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC), first.Start)
		assert.Equal(t, first.Start.Add(90*time.Minute), first.End)
		assert.Equal(t, 8, first.Capacity)
		assert.False(t, first.Materialized())

		last := result.Occurrences[len(result.Occurrences)-1]
		assert.Equal(t, time.Date(2025, time.April, 2, 10, 0, 0, 0, time.UTC), last.Start)
	})

	t.Run("hides materialized occurrences unless asked", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		start := time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)
		h.insertSlot(t, persistence.Slot{ID: "slot-1", ExperienceID: "tour", Start: start, End: start.Add(90 * time.Minute), CapacityTotal: 8})

		hidden, err := h.availability.ExpandPreview(context.Background(), ExpandPreviewParams{ExperienceID: "tour", MonthCap: 1})
		require.NoError(t, err)
		assert.Len(t, hidden.Occurrences, 9)
		for _, occurrence := range hidden.Occurrences {
			assert.False(t, occurrence.Start.Equal(start))
		}

		shown, err := h.availability.ExpandPreview(context.Background(), ExpandPreviewParams{ExperienceID: "tour", MonthCap: 1, IncludeExisting: true})
		require.NoError(t, err)
		require.Len(t, shown.Occurrences, 10)
		assert.Equal(t, "slot-1", shown.Occurrences[1].SlotID)
	})

	t.Run("previews an explicit recurrence for an unsaved experience", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		result, err := h.availability.ExpandPreview(context.Background(), ExpandPreviewParams{
			ExperienceID: "draft",
			Recurrence: map[string]any{
				"days":       []any{"sunday"},
				"time_slots": []any{map[string]any{"time": "18:30"}},
			},
			Defaults: &recurrence.Defaults{Capacity: 3},
			MonthCap: 1,
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.Occurrences)
		for _, occurrence := range result.Occurrences {
			assert.Equal(t, time.Sunday, occurrence.LocalStart.Weekday())
			assert.Equal(t, 3, occurrence.Capacity)
		}
	})

	t.Run("non actionable recurrence previews nothing", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		result, err := h.availability.ExpandPreview(context.Background(), ExpandPreviewParams{
			ExperienceID: "draft",
			Recurrence:   map[string]any{"days": []any{"funday"}},
			Defaults:     &recurrence.Defaults{},
		})
		require.NoError(t, err)
		assert.Zero(t, result.RuleCount)
		assert.Empty(t, result.Occurrences)
		assert.Equal(t, DefaultPreviewMonthCap, result.MonthCap)
	})

	t.Run("unknown experience without recurrence is not found", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		_, err := h.availability.ExpandPreview(context.Background(), ExpandPreviewParams{ExperienceID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("slot lookup failure degrades to empty", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		svc := NewAvailabilityService(AvailabilityDeps{
			Slots:       failingSlots{SlotRepository: h.store, err: errors.New("disk on fire")},
			Experiences: h.store,
			Now:         func() time.Time { return testNow },
		})

		result, err := svc.ExpandPreview(context.Background(), ExpandPreviewParams{ExperienceID: "tour"})
		require.NoError(t, err)
		assert.Empty(t, result.Occurrences)
	})
}

func TestAvailabilityService_Generate(t *testing.T) {
	t.Parallel()

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		ctx := context.Background()

		first, err := h.availability.Generate(ctx, GenerateParams{ExperienceID: "tour"})
		require.NoError(t, err)
		require.Positive(t, first.Created)

		second, err := h.availability.Generate(ctx, GenerateParams{ExperienceID: "tour"})
		require.NoError(t, err)
		assert.Zero(t, second.Created)
		assert.Equal(t, first.Created, second.Skipped)

		slots, err := h.store.ListSlots(ctx, persistence.SlotFilter{ExperienceID: "tour"})
		require.NoError(t, err)
		assert.Len(t, slots, first.Created)
		for _, slot := range slots {
			assert.Equal(t, 8, slot.CapacityTotal)
			assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday}, slot.Start.Weekday())
		}
	})

	t.Run("rejects a recurrence without rules", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")

		_, err := h.availability.Generate(context.Background(), GenerateParams{
			ExperienceID: "tour",
			Recurrence:   map[string]any{"days": []any{}},
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "recurrence")
	})

	t.Run("replace keeps capacity above bookings", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		ctx := context.Background()

		first, err := h.availability.Generate(ctx, GenerateParams{ExperienceID: "tour"})
		require.NoError(t, err)

		slots, err := h.store.ListSlots(ctx, persistence.SlotFilter{ExperienceID: "tour"})
		require.NoError(t, err)
		_, err = h.capacity.Reserve(ctx, ReserveParams{SlotID: slots[0].ID, Pax: 6})
		require.NoError(t, err)

		replaced, err := h.availability.Generate(ctx, GenerateParams{
			ExperienceID: "tour",
			Recurrence: map[string]any{
				"days":       []any{"monday", "wednesday"},
				"duration":   90,
				"time_slots": []any{map[string]any{"time": "10:00", "capacity": 4}},
			},
			ReplaceExisting: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, replaced.Conflicts)
		assert.Equal(t, first.Created-1, replaced.Updated)
		assert.Zero(t, replaced.Created)
		require.Len(t, first.Preview, first.Created)
		require.Len(t, replaced.Preview, first.Created)
		assert.Equal(t, slots[0].ID, replaced.Preview[0].SlotID)
		for i, occurrence := range replaced.Preview {
			assert.True(t, occurrence.Materialized())
			assert.Equal(t, first.Preview[i].SlotID, occurrence.SlotID)
			assert.Equal(t, 4, occurrence.Capacity)
		}

		kept, err := h.store.GetSlot(ctx, slots[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 8, kept.CapacityTotal)
		moved, err := h.store.GetSlot(ctx, slots[1].ID)
		require.NoError(t, err)
		assert.Equal(t, 4, moved.CapacityTotal)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := h.availability.Generate(ctx, GenerateParams{ExperienceID: "tour"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAvailabilityService_EnsureMaterialized(t *testing.T) {
	t.Parallel()

	t.Run("creates the slot from the matching rule", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		ctx := context.Background()

		id, err := h.availability.EnsureMaterialized(ctx, "tour", "2025-03-10T10:00:00Z", "2025-03-10T11:30:00Z")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		slot, err := h.store.GetSlot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 8, slot.CapacityTotal)
		assert.Equal(t, persistence.SlotStatusActive, slot.Status)

		again, err := h.availability.EnsureMaterialized(ctx, "tour", "2025-03-10T10:00:00Z", "2025-03-10T11:30:00Z")
		require.NoError(t, err)
		assert.Equal(t, id, again)
	})

	t.Run("refuses instants the recurrence never produces", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		ctx := context.Background()

		cases := []struct {
			name       string
			start, end string
		}{
			{name: "off weekday", start: "2025-03-04T03:17:00Z", end: "2025-03-04T03:18:00Z"},
			{name: "off time", start: "2025-03-10T09:00:00Z", end: "2025-03-10T10:30:00Z"},
			{name: "wrong duration", start: "2025-03-10T10:00:00Z", end: "2025-03-10T11:00:00Z"},
			{name: "before the rule window", start: "2025-02-24T10:00:00Z", end: "2025-02-24T11:30:00Z"},
		}
		for _, tc := range cases {
			_, err := h.availability.EnsureMaterialized(ctx, "tour", tc.start, tc.end)
			assert.ErrorIs(t, err, ErrNotFound, tc.name)
		}

		slots, err := h.store.ListSlots(ctx, persistence.SlotFilter{ExperienceID: "tour", IncludeCancelled: true})
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("takes settings from the local rule", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		ctx := context.Background()

		id, err := h.availability.EnsureMaterialized(ctx, "tour", "2025-03-12 10:00:00", "2025-03-12 11:30:00")
		require.NoError(t, err)
		slot, err := h.store.GetSlot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 8, slot.CapacityTotal)
		assert.Equal(t, time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC), slot.Start)
	})

	t.Run("concurrent callers converge on one slot", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.saveTour(t, "tour")
		ctx := context.Background()

		const callers = 16
		ids := make([]string, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], errs[i] = h.availability.EnsureMaterialized(ctx, "tour", "2025-03-12T10:00:00Z", "2025-03-12T11:30:00Z")
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
		slots, err := h.store.ListSlots(ctx, persistence.SlotFilter{ExperienceID: "tour"})
		require.NoError(t, err)
		assert.Len(t, slots, 1)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		_, err := h.availability.EnsureMaterialized(context.Background(), "", "yesterday", "2025-03-12T10:00:00Z")
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "experience_id")
		assert.Contains(t, vErr.FieldErrors, "start")

		_, err = h.availability.EnsureMaterialized(context.Background(), "tour", "2025-03-12T10:00:00Z", "2025-03-12T10:00:00Z")
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "end")
	})

	t.Run("unknown experience is not found", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		_, err := h.availability.EnsureMaterialized(context.Background(), "missing", "2025-03-12T10:00:00Z", "2025-03-12T11:00:00Z")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAvailabilityService_GetAvailability(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	day := func(d, hour int) time.Time { return time.Date(2025, time.March, d, hour, 0, 0, 0, time.UTC) }
	h.insertSlot(t, persistence.Slot{ID: "a", ExperienceID: "tour", Start: day(10, 10), End: day(10, 11), CapacityTotal: 5})
	h.insertSlot(t, persistence.Slot{ID: "b", ExperienceID: "tour", Start: day(12, 23), End: day(13, 1), CapacityTotal: 0})
	h.insertSlot(t, persistence.Slot{ID: "c", ExperienceID: "tour", Start: day(12, 9), End: day(12, 10), CapacityTotal: 5, Status: persistence.SlotStatusCancelled})
	h.insertSlot(t, persistence.Slot{ID: "d", ExperienceID: "tour", Start: day(13, 9), End: day(13, 10), CapacityTotal: 5})
	h.insertSlot(t, persistence.Slot{ID: "e", ExperienceID: "other", Start: day(11, 9), End: day(11, 10), CapacityTotal: 5})
	_, err := h.capacity.Reserve(ctx, ReserveParams{SlotID: "a", Pax: 2})
	require.NoError(t, err)

	t.Run("inclusive range excludes cancelled slots", func(t *testing.T) {
		t.Parallel()

		slots, err := h.availability.GetAvailability(ctx, AvailabilityQuery{ExperienceID: "tour", StartDate: "2025-03-10", EndDate: "2025-03-12"})
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, "a", slots[0].Slot.ID)
		assert.Equal(t, 2, slots[0].Availability.Reserved)
		assert.Equal(t, 3, slots[0].Availability.Remaining)
		assert.Equal(t, "b", slots[1].Slot.ID)
		assert.True(t, slots[1].Availability.Unlimited)
	})

	t.Run("rejects malformed ranges", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			name  string
			start string
			end   string
			field string
		}{
			{name: "impossible date", start: "2024-02-30", end: "2024-03-01", field: "start_date"},
			{name: "wrong format", start: "2025-3-1", end: "2025-03-02", field: "start_date"},
			{name: "missing end", start: "2025-03-01", end: "", field: "end_date"},
			{name: "reversed", start: "2025-03-10", end: "2025-03-09", field: "end_date"},
			{name: "longer than a year", start: "2025-01-01", end: "2026-01-02", field: "end_date"},
		}
		for _, tc := range cases {
			_, err := h.availability.GetAvailability(ctx, AvailabilityQuery{ExperienceID: "tour", StartDate: tc.start, EndDate: tc.end})
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, tc.name)
			assert.Contains(t, vErr.FieldErrors, tc.field, tc.name)
		}
	})

	t.Run("exactly one year is accepted", func(t *testing.T) {
		t.Parallel()

		_, err := h.availability.GetAvailability(ctx, AvailabilityQuery{ExperienceID: "tour", StartDate: "2025-01-01", EndDate: "2026-01-01"})
		assert.NoError(t, err)
	})
}

func TestParseInstant(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	cases := []struct {
		value string
		want  time.Time
		ok    bool
	}{
		{value: "2025-03-10T10:00:00Z", want: time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC), ok: true},
		{value: "2025-03-10T10:00:00+09:00", want: time.Date(2025, time.March, 10, 1, 0, 0, 0, time.UTC), ok: true},
		{value: "2025-03-10T10:00:00", want: time.Date(2025, time.March, 10, 1, 0, 0, 0, time.UTC), ok: true},
		{value: "2025-03-10 10:00", want: time.Date(2025, time.March, 10, 1, 0, 0, 0, time.UTC), ok: true},
		{value: "10:00", ok: false},
		{value: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := parseInstant(tc.value, tokyo)
		assert.Equal(t, tc.ok, ok, tc.value)
		if tc.ok {
			assert.True(t, tc.want.Equal(got), "%s: got %v", tc.value, got)
		}
	}
}

type failingSlots struct {
	persistence.SlotRepository
	err error
}

func (f failingSlots) ListSlots(context.Context, persistence.SlotFilter) ([]persistence.Slot, error) {
	return nil, f.err
}
