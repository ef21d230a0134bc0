package recurrence

import (
	"sort"
	"strings"
	"time"
)

var weekdayTokens = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// ParseWeekday resolves a full English weekday name or its three letter
// abbreviation, ignoring case and surrounding whitespace.
func ParseWeekday(token string) (time.Weekday, bool) {
	day, ok := weekdayTokens[strings.ToLower(strings.TrimSpace(token))]
	return day, ok
}

// ParseWeekdays converts loosely typed tokens into a deduplicated, Monday-first
// weekday list. Unknown tokens are dropped.
func ParseWeekdays(tokens []string) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(tokens))
	days := make([]time.Weekday, 0, len(tokens))
	for _, token := range tokens {
		day, ok := ParseWeekday(token)
		if !ok {
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	SortWeekdays(days)
	return days
}

// SortWeekdays orders weekdays Monday through Sunday in place.
func SortWeekdays(days []time.Weekday) {
	sort.Slice(days, func(i, j int) bool {
		return mondayIndex(days[i]) < mondayIndex(days[j])
	})
}

func mondayIndex(day time.Weekday) int {
	return (int(day) + 6) % 7
}

func weekdaySet(days []time.Weekday) map[time.Weekday]struct{} {
	set := make(map[time.Weekday]struct{}, len(days))
	for _, day := range days {
		set[day] = struct{}{}
	}
	return set
}
