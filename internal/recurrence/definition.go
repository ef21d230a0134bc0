package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/experience-booking/internal/payload"
)

// Frequency represents supported recurrence intervals.
type Frequency string

// FrequencyWeekly is the only frequency the booking engine supports.
const FrequencyWeekly Frequency = "weekly"

// DefaultDurationMinutes applies when a definition carries no usable duration.
const DefaultDurationMinutes = 60

const dateLayout = "2006-01-02"

// TimeSlotSpec is one time of day within a recurrence definition together with
// its optional overrides.
type TimeSlotSpec struct {
	Time         string
	Capacity     *int
	BufferBefore *int
	BufferAfter  *int
	Days         []time.Weekday
	Price        *float64
}

// Definition is the canonical recurrence configuration of an experience.
type Definition struct {
	Frequency       Frequency
	DurationMinutes int
	Days            []time.Weekday
	TimeSlots       []TimeSlotSpec
	StartDate       string
	EndDate         string
}

// IsActionable reports whether the definition can produce any occurrence.
// Callers treat a non-actionable definition as zero rules, not as an error.
func IsActionable(def Definition) bool {
	return len(def.Days) > 0 && len(def.TimeSlots) > 0
}

// Sanitize coerces a decoded JSON recurrence payload into a Definition.
//
// Malformed weekday tokens are dropped, a non-positive duration becomes
// DefaultDurationMinutes and the legacy "time_sets" shape is fanned out into
// one TimeSlotSpec per time, but only when "time_slots" is absent.
func Sanitize(raw map[string]any) Definition {
	def := Definition{
		Frequency:       FrequencyWeekly,
		DurationMinutes: DefaultDurationMinutes,
	}
	if raw == nil {
		return def
	}

	if duration, ok := payload.Int(raw["duration"]); ok && duration > 0 {
		def.DurationMinutes = duration
	}

	def.Days = ParseWeekdays(payload.Strings(raw["days"]))
	def.StartDate = sanitizeDate(raw["start_date"])
	def.EndDate = sanitizeDate(raw["end_date"])
	if def.StartDate != "" && def.EndDate != "" && def.EndDate < def.StartDate {
		def.EndDate = ""
	}

	if payload.Has(raw, "time_slots") {
		for _, entry := range payload.Maps(raw["time_slots"]) {
			spec, ok := sanitizeTimeSlot(entry)
			if !ok {
				continue
			}
			def.TimeSlots = append(def.TimeSlots, spec)
		}
		return def
	}

	def.TimeSlots = convertTimeSets(payload.Maps(raw["time_sets"]))
	return def
}

// convertTimeSets adapts the legacy {times, capacity, buffers, days} groups.
func convertTimeSets(sets []map[string]any) []TimeSlotSpec {
	var specs []TimeSlotSpec
	for _, set := range sets {
		capacity := payload.OptionalInt(set["capacity"])
		before := payload.OptionalInt(set["buffer_before"])
		after := payload.OptionalInt(set["buffer_after"])
		days := ParseWeekdays(payload.Strings(set["days"]))
		for _, value := range payload.Strings(set["times"]) {
			clock := normalizeClock(value)
			if clock == "" {
				continue
			}
			specs = append(specs, TimeSlotSpec{
				Time:         clock,
				Capacity:     cloneInt(capacity),
				BufferBefore: cloneInt(before),
				BufferAfter:  cloneInt(after),
				Days:         append([]time.Weekday(nil), days...),
			})
		}
	}
	return specs
}

func sanitizeTimeSlot(entry map[string]any) (TimeSlotSpec, bool) {
	clock := normalizeClock(payload.String(entry["time"]))
	if clock == "" {
		return TimeSlotSpec{}, false
	}
	spec := TimeSlotSpec{
		Time:         clock,
		Capacity:     payload.OptionalInt(entry["capacity"]),
		BufferBefore: payload.OptionalInt(entry["buffer_before"]),
		BufferAfter:  payload.OptionalInt(entry["buffer_after"]),
		Days:         ParseWeekdays(payload.Strings(entry["days"])),
	}
	if price, ok := payload.Float(entry["price"]); ok && price >= 0 {
		spec.Price = &price
	}
	return spec, true
}

// normalizeClock rewrites parseable times as HH:MM and keeps anything else
// trimmed so rule building can skip it.
func normalizeClock(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	hour, minute, ok := parseClock(value)
	if !ok {
		return value
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func parseClock(value string) (int, int, bool) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04PM", "3:04 PM"} {
		parsed, err := time.Parse(layout, strings.ToUpper(strings.TrimSpace(value)))
		if err == nil {
			return parsed.Hour(), parsed.Minute(), true
		}
	}
	return 0, 0, false
}

func sanitizeDate(v any) string {
	value := payload.String(v)
	if value == "" {
		return ""
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return ""
	}
	return value
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
