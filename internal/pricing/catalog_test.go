package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSlug(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Adult":           "adult",
		"  Senior Plus ":  "senior-plus",
		"kids_under-12":   "kids_under-12",
		"Über!!":          "ber",
		"":                "",
		"%%%":             "",
	}
	for input, want := range cases {
		assert.Equal(t, want, SanitizeSlug(input), "input %q", input)
	}
}

func TestNormalizeTickets(t *testing.T) {
	t.Parallel()

	tickets := NormalizeTickets([]map[string]any{
		{"slug": "Adult", "label": "Adult", "price": "20", "max": 6},
		{"label": "Child Ticket", "price": 9.5, "min": 3, "max": 2},
		{"slug": "adult", "label": "Duplicate", "price": 1},
		{"label": "!!!", "price": 5},
		{"slug": "free", "price": -4, "capacity": "x"},
	})

	require.Len(t, tickets, 3)
	assert.Equal(t, TicketType{Slug: "adult", Label: "Adult", Price: 20, Max: 6}, tickets[0])
	assert.Equal(t, "child-ticket", tickets[1].Slug)
	assert.Equal(t, 2, tickets[1].Min)
	assert.Equal(t, "free", tickets[2].Label)
	assert.Equal(t, 0.0, tickets[2].Price)
	assert.Equal(t, 0, tickets[2].Capacity)
}

func TestNormalizeAddons(t *testing.T) {
	t.Parallel()

	addons := NormalizeAddons([]map[string]any{
		{"slug": "photo", "label": "Photo", "price": 12},
		{"slug": "lunch", "price": "9.00", "allow_multiple": "yes", "max": 3},
		{"slug": "photo", "price": 99},
	})

	require.Len(t, addons, 2)
	assert.False(t, addons[0].AllowMultiple)
	assert.True(t, addons[1].AllowMultiple)
	assert.Equal(t, 3, addons[1].Max)
	assert.Equal(t, 9.0, addons[1].Price)
}

func TestNormalizeRules(t *testing.T) {
	t.Parallel()

	rules := NormalizeRules([]map[string]any{
		{"type": "weekend", "adjustment": map[string]any{"type": "percent", "value": 10}, "priority": "10"},
		{"type": "Seasonal", "label": "Summer", "start_date": "2024-06-01", "end_date": "2024-08-31", "adjustment_type": "fixed", "amount": "5"},
		{"type": "seasonal", "adjustment": map[string]any{"type": "flat", "value": 5}},
		{"type": "weekday", "days": "mon, fri", "adjustment": map[string]any{"type": "percentage", "amount": -150}},
		{"type": "weekday", "days": []any{"someday"}, "adjustment": map[string]any{"type": "flat", "value": 1}},
		{"type": "holiday", "adjustment": map[string]any{"type": "flat", "value": 1}},
		{"type": "weekend", "adjustment": map[string]any{"type": "multiply", "value": 2}},
		{"type": "weekend", "adjustment": map[string]any{"type": "flat", "value": "lots"}},
	})

	require.Len(t, rules, 3)

	assert.Equal(t, Rule{Label: "Weekend adjustment", Type: RuleWeekend, Kind: ModifierPercent, Value: 10, Priority: 10}, rules[0])

	assert.Equal(t, "Summer", rules[1].Label)
	assert.Equal(t, ModifierFlat, rules[1].Kind)
	assert.Equal(t, 5.0, rules[1].Value)
	assert.Equal(t, "2024-06-01", rules[1].StartDate)
	assert.Equal(t, "2024-08-31", rules[1].EndDate)

	assert.Equal(t, RuleWeekday, rules[2].Type)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, rules[2].Days)
	assert.Equal(t, -100.0, rules[2].Value)
}

func TestRuleMatches(t *testing.T) {
	t.Parallel()

	sunday := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	monday := sunday.AddDate(0, 0, 1)

	weekend := Rule{Type: RuleWeekend}
	assert.True(t, weekend.Matches(sunday))
	assert.False(t, weekend.Matches(monday))

	openEnded := Rule{Type: RuleSeasonal, StartDate: "2024-03-11"}
	assert.False(t, openEnded.Matches(sunday))
	assert.True(t, openEnded.Matches(monday))

	unbounded := Rule{Type: RuleSeasonal}
	assert.False(t, unbounded.Matches(monday))

	assert.False(t, Rule{Type: "unknown"}.Matches(monday))
}
