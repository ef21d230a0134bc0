package recurrence

import (
	"time"
)

// DefaultWindowMonths is the open-ended generation window applied to rules.
const DefaultWindowMonths = 12

// Defaults carries the experience level availability settings that rules
// inherit when a time slot does not override them.
type Defaults struct {
	Capacity     int
	BufferBefore int
	BufferAfter  int
	ResourceLock bool
	WindowMonths int
}

// Rule is one self-contained generation directive derived from a single
// TimeSlotSpec. Rules are values; BuildRules never shares slices between them.
type Rule struct {
	Index           int
	Weekdays        []time.Weekday
	Hour            int
	Minute          int
	DurationMinutes int
	Capacity        int
	BufferBefore    int
	BufferAfter     int
	StartsOn        time.Time
	EndsOn          *time.Time
	WindowMonths    int
	Price           *float64
	ResourceLock    bool
}

// TimeOfDay renders the rule's local start time as HH:MM.
func (r Rule) TimeOfDay() string {
	return time.Date(2000, time.January, 1, r.Hour, r.Minute, 0, 0, time.UTC).Format("15:04")
}

// Duration returns the occurrence length.
func (r Rule) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// BuildRules expands a definition into one rule per usable time slot.
//
// The rule window starts at the definition's start date (or the local day of
// now) and ends at its end date when one is set; otherwise it stays open and
// the projection applies WindowMonths.
func BuildRules(def Definition, defaults Defaults, now time.Time, loc *time.Location) []Rule {
	if !IsActionable(def) {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	duration := def.DurationMinutes
	if duration <= 0 {
		duration = DefaultDurationMinutes
	}
	window := defaults.WindowMonths
	if window <= 0 {
		window = DefaultWindowMonths
	}

	startsOn := startOfDay(now, loc)
	if def.StartDate != "" {
		if parsed, err := time.ParseInLocation(dateLayout, def.StartDate, loc); err == nil {
			startsOn = parsed
		}
	}
	var endsOn *time.Time
	if def.EndDate != "" {
		if parsed, err := time.ParseInLocation(dateLayout, def.EndDate, loc); err == nil {
			end := parsed.AddDate(0, 0, 1).Add(-time.Second)
			endsOn = &end
		}
	}

	rules := make([]Rule, 0, len(def.TimeSlots))
	for i, spec := range def.TimeSlots {
		hour, minute, ok := parseClock(spec.Time)
		if !ok {
			continue
		}

		days := def.Days
		if len(spec.Days) > 0 {
			days = spec.Days
		}
		weekdays := append([]time.Weekday(nil), days...)
		SortWeekdays(weekdays)

		rule := Rule{
			Index:           i,
			Weekdays:        weekdays,
			Hour:            hour,
			Minute:          minute,
			DurationMinutes: duration,
			Capacity:        overrideOr(spec.Capacity, defaults.Capacity),
			BufferBefore:    overrideOr(spec.BufferBefore, defaults.BufferBefore),
			BufferAfter:     overrideOr(spec.BufferAfter, defaults.BufferAfter),
			StartsOn:        startsOn,
			WindowMonths:    window,
			ResourceLock:    defaults.ResourceLock,
		}
		if endsOn != nil {
			end := *endsOn
			rule.EndsOn = &end
		}
		if spec.Price != nil {
			price := *spec.Price
			rule.Price = &price
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return nil
	}
	return rules
}

func overrideOr(value *int, fallback int) int {
	if value != nil && *value >= 0 {
		return *value
	}
	if fallback < 0 {
		return 0
	}
	return fallback
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
