package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestBuildRules(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	defaults := Defaults{Capacity: 10, BufferBefore: 5, BufferAfter: 10, ResourceLock: true}

	t.Run("one rule per time slot with inherited defaults", func(t *testing.T) {
		t.Parallel()

		def := Definition{
			DurationMinutes: 90,
			Days:            []time.Weekday{time.Thursday, time.Monday},
			TimeSlots: []TimeSlotSpec{
				{Time: "10:00"},
				{Time: "15:00", Capacity: intPtr(4), BufferAfter: intPtr(0), Days: []time.Weekday{time.Saturday, time.Friday}},
			},
		}

		rules := BuildRules(def, defaults, now, time.UTC)
		require.Len(t, rules, 2)

		first := rules[0]
		assert.Equal(t, "10:00", first.TimeOfDay())
		assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, first.Weekdays)
		assert.Equal(t, 10, first.Capacity)
		assert.Equal(t, 5, first.BufferBefore)
		assert.Equal(t, 10, first.BufferAfter)
		assert.Equal(t, 90, first.DurationMinutes)
		assert.Equal(t, DefaultWindowMonths, first.WindowMonths)
		assert.True(t, first.ResourceLock)
		assert.Equal(t, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), first.StartsOn)
		assert.Nil(t, first.EndsOn)

		second := rules[1]
		assert.Equal(t, []time.Weekday{time.Friday, time.Saturday}, second.Weekdays)
		assert.Equal(t, 4, second.Capacity)
		assert.Equal(t, 0, second.BufferAfter)
		assert.Equal(t, 5, second.BufferBefore)
	})

	t.Run("skips blank and malformed times", func(t *testing.T) {
		t.Parallel()

		def := Definition{
			Days:      []time.Weekday{time.Monday},
			TimeSlots: []TimeSlotSpec{{Time: ""}, {Time: "25:99"}, {Time: "late"}, {Time: "07:45"}},
		}

		rules := BuildRules(def, Defaults{}, now, time.UTC)
		require.Len(t, rules, 1)
		assert.Equal(t, 3, rules[0].Index)
		assert.Equal(t, "07:45", rules[0].TimeOfDay())
	})

	t.Run("non actionable definitions produce no rules", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, BuildRules(Definition{TimeSlots: []TimeSlotSpec{{Time: "10:00"}}}, defaults, now, time.UTC))
	})

	t.Run("applies definition date bounds", func(t *testing.T) {
		t.Parallel()

		def := Definition{
			Days:      []time.Weekday{time.Monday},
			TimeSlots: []TimeSlotSpec{{Time: "10:00"}},
			StartDate: "2024-04-01",
			EndDate:   "2024-04-30",
		}

		rules := BuildRules(def, Defaults{WindowMonths: 3}, now, time.UTC)
		require.Len(t, rules, 1)
		assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), rules[0].StartsOn)
		require.NotNil(t, rules[0].EndsOn)
		assert.Equal(t, time.Date(2024, time.April, 30, 23, 59, 59, 0, time.UTC), *rules[0].EndsOn)
		assert.Equal(t, 3, rules[0].WindowMonths)
	})

	t.Run("rules do not share weekday slices with the definition", func(t *testing.T) {
		t.Parallel()

		def := Definition{
			Days:      []time.Weekday{time.Monday, time.Tuesday},
			TimeSlots: []TimeSlotSpec{{Time: "10:00"}, {Time: "11:00"}},
		}
		rules := BuildRules(def, Defaults{}, now, time.UTC)
		require.Len(t, rules, 2)

		rules[0].Weekdays[0] = time.Sunday
		assert.Equal(t, time.Monday, rules[1].Weekdays[0])
		assert.Equal(t, time.Monday, def.Days[0])
	})
}
