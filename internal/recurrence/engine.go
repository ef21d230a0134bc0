package recurrence

import (
	"time"
)

// ProjectOptions bounds a projection. From is the earliest instant an
// occurrence may start at; MonthCap, when positive, limits the projection to
// that many months after From regardless of the rule window.
type ProjectOptions struct {
	From       time.Time
	MonthCap   int
	RangeStart *time.Time
	RangeEnd   *time.Time
}

// Occurrence represents one concrete start/end pair generated from a rule.
type Occurrence struct {
	RuleIndex    int
	Start        time.Time
	End          time.Time
	Capacity     int
	BufferBefore int
	BufferAfter  int
}

// Engine projects rules onto the calendar of a single location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that evaluates weekdays and times of day in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the engine's evaluation location.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Project produces the occurrences of a rule in chronological order.
//
// The engine enforces the following semantics:
//   - Weekday and time of day are evaluated in the engine location; the local
//     wall-clock time is kept across DST transitions.
//   - The window is [max(From, StartsOn), min(StartsOn window, EndsOn, MonthCap, RangeEnd)].
//   - Occurrences that would start before From are not emitted.
func (e *Engine) Project(rule Rule, opts ProjectOptions) []Occurrence {
	loc := e.Location()
	if len(rule.Weekdays) == 0 || rule.DurationMinutes <= 0 {
		return nil
	}

	from := opts.From
	if from.IsZero() {
		from = rule.StartsOn
	}
	from = from.In(loc)

	lower := startOfDay(from, loc)
	if ruleStart := startOfDay(rule.StartsOn, loc); ruleStart.After(lower) {
		lower = ruleStart
	}

	window := rule.WindowMonths
	if window <= 0 {
		window = DefaultWindowMonths
	}
	// upper is exclusive: the first local day that is no longer eligible.
	upper := lower.AddDate(0, window, 0)
	if opts.MonthCap > 0 {
		if capped := startOfDay(from, loc).AddDate(0, opts.MonthCap, 0); capped.Before(upper) {
			upper = capped
		}
	}
	if rule.EndsOn != nil {
		if end := startOfDay(*rule.EndsOn, loc).AddDate(0, 0, 1); end.Before(upper) {
			upper = end
		}
	}
	if opts.RangeStart != nil {
		if start := startOfDay(*opts.RangeStart, loc); start.After(lower) {
			lower = start
		}
	}
	if opts.RangeEnd != nil {
		if end := startOfDay(*opts.RangeEnd, loc).AddDate(0, 0, 1); end.Before(upper) {
			upper = end
		}
	}
	if !lower.Before(upper) {
		return nil
	}

	days := weekdaySet(rule.Weekdays)
	duration := rule.Duration()
	occurrences := make([]Occurrence, 0)

	for day := lower; day.Before(upper); day = day.AddDate(0, 0, 1) {
		if _, ok := days[day.Weekday()]; !ok {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), rule.Hour, rule.Minute, 0, 0, loc)
		if start.Before(from) {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			RuleIndex:    rule.Index,
			Start:        start,
			End:          start.Add(duration),
			Capacity:     rule.Capacity,
			BufferBefore: rule.BufferBefore,
			BufferAfter:  rule.BufferAfter,
		})
	}

	return occurrences
}

// ProjectAll projects every rule and returns the merged occurrences ordered by
// start time, then rule index.
func (e *Engine) ProjectAll(rules []Rule, opts ProjectOptions) []Occurrence {
	var merged []Occurrence
	for _, rule := range rules {
		merged = append(merged, e.Project(rule, opts)...)
	}
	sortOccurrences(merged)
	return merged
}
