package recurrence

import "sort"

func sortOccurrences(occurrences []Occurrence) {
	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].RuleIndex < occurrences[j].RuleIndex
		}
		return occurrences[i].Start.Before(occurrences[j].Start)
	})
}
