package pricing

import (
	"math/rand"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adultCatalog() Catalog {
	return Catalog{
		ExperienceID: "exp-1",
		BasePrice:    10,
		Currency:     "EUR",
		Tickets:      []TicketType{{Slug: "adult", Label: "Adult", Price: 20}},
	}
}

// 2024-03-09 is a Saturday.
var saturdayNoon = time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)

func TestComputeBreakdown_BaseExample(t *testing.T) {
	t.Parallel()

	breakdown := ComputeBreakdown(adultCatalog(), saturdayNoon, time.UTC, map[string]int{"adult": 3}, nil)

	require.Len(t, breakdown.Tickets, 1)
	assert.Equal(t, LineItem{Slug: "adult", Label: "Adult", Quantity: 3, UnitPrice: 20, LineTotal: 60}, breakdown.Tickets[0])
	assert.Equal(t, 70.0, breakdown.Subtotal)
	assert.Equal(t, 70.0, breakdown.Total)
	assert.Equal(t, 3, breakdown.TotalGuests)
	assert.Equal(t, "EUR", breakdown.Currency)
	assert.Empty(t, breakdown.Adjustments)
}

func TestComputeBreakdown_WeekendPercent(t *testing.T) {
	t.Parallel()

	catalog := adultCatalog()
	catalog.Rules = []Rule{{Label: "Weekend", Type: RuleWeekend, Kind: ModifierPercent, Value: 10, Priority: 10}}

	breakdown := ComputeBreakdown(catalog, saturdayNoon, time.UTC, map[string]int{"adult": 3}, nil)

	require.Len(t, breakdown.Adjustments, 1)
	assert.Equal(t, 7.0, breakdown.Adjustments[0].Amount)
	assert.Equal(t, 77.0, breakdown.Adjustments[0].RunningTotal)
	assert.Equal(t, 77.0, breakdown.Total)
}

func TestComputeBreakdown_CompoundsInPriorityOrder(t *testing.T) {
	t.Parallel()

	catalog := adultCatalog()
	catalog.Rules = []Rule{
		{Label: "Surcharge", Type: RuleWeekend, Kind: ModifierFlat, Value: 30, Priority: 20},
		{Label: "Spring", Type: RuleSeasonal, Kind: ModifierPercent, Value: 10, Priority: 5, StartDate: "2024-03-01", EndDate: "2024-03-31"},
		{Label: "Tie", Type: RuleWeekend, Kind: ModifierPercent, Value: -50, Priority: 20},
	}

	breakdown := ComputeBreakdown(catalog, saturdayNoon, time.UTC, map[string]int{"adult": 3}, nil)

	// 70 -> +7 (77) -> +30 (107) -> -53.5 (53.5): the tie keeps catalog order.
	require.Len(t, breakdown.Adjustments, 3)
	assert.Equal(t, "Spring", breakdown.Adjustments[0].Label)
	assert.Equal(t, 77.0, breakdown.Adjustments[0].RunningTotal)
	assert.Equal(t, "Surcharge", breakdown.Adjustments[1].Label)
	assert.Equal(t, 107.0, breakdown.Adjustments[1].RunningTotal)
	assert.Equal(t, "Tie", breakdown.Adjustments[2].Label)
	assert.Equal(t, -53.5, breakdown.Adjustments[2].Amount)
	assert.Equal(t, 53.5, breakdown.Total)

	// The same rules against the original subtotal would give 70+7+30-35 = 72.
	assert.NotEqual(t, 72.0, breakdown.Total)
}

func TestComputeBreakdown_EvaluatesRulesInLocalTime(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	catalog := adultCatalog()
	catalog.Rules = []Rule{{Label: "Weekend", Type: RuleWeekend, Kind: ModifierFlat, Value: 5}}

	// Friday 20:00 UTC is Saturday 05:00 in Tokyo.
	fridayEvening := time.Date(2024, time.March, 8, 20, 0, 0, 0, time.UTC)

	utc := ComputeBreakdown(catalog, fridayEvening, time.UTC, map[string]int{"adult": 1}, nil)
	local := ComputeBreakdown(catalog, fridayEvening, tokyo, map[string]int{"adult": 1}, nil)

	assert.Empty(t, utc.Adjustments)
	require.Len(t, local.Adjustments, 1)
	assert.Equal(t, 35.0, local.Total)
}

func TestComputeBreakdown_SeasonalEndDayIsInclusive(t *testing.T) {
	t.Parallel()

	catalog := adultCatalog()
	catalog.Rules = []Rule{{Label: "Season", Type: RuleSeasonal, Kind: ModifierFlat, Value: -10, StartDate: "2024-03-01", EndDate: "2024-03-09"}}

	lateOnEndDay := time.Date(2024, time.March, 9, 23, 59, 59, 0, time.UTC)
	nextDay := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 20.0, ComputeBreakdown(catalog, lateOnEndDay, time.UTC, map[string]int{"adult": 1}, nil).Total)
	assert.Equal(t, 30.0, ComputeBreakdown(catalog, nextDay, time.UTC, map[string]int{"adult": 1}, nil).Total)
}

func TestComputeBreakdown_WeekdayRule(t *testing.T) {
	t.Parallel()

	catalog := adultCatalog()
	catalog.Rules = []Rule{{Label: "Saturday", Type: RuleWeekday, Kind: ModifierFlat, Value: 2, Days: []time.Weekday{time.Saturday}}}

	assert.Equal(t, 32.0, ComputeBreakdown(catalog, saturdayNoon, time.UTC, map[string]int{"adult": 1}, nil).Total)
	assert.Equal(t, 30.0, ComputeBreakdown(catalog, saturdayNoon.AddDate(0, 0, 1), time.UTC, map[string]int{"adult": 1}, nil).Total)
}

func TestComputeBreakdown_ClampsQuantities(t *testing.T) {
	t.Parallel()

	catalog := Catalog{
		Tickets: []TicketType{
			{Slug: "adult", Label: "Adult", Price: 15, Max: 4},
			{Slug: "child", Label: "Child", Price: 7.5},
		},
		Addons: []Addon{
			{Slug: "photo", Label: "Photo", Price: 12.5},
			{Slug: "lunch", Label: "Lunch", Price: 9, AllowMultiple: true, Max: 2},
			{Slug: "drink", Label: "Drink", Price: 3, AllowMultiple: true},
		},
	}

	breakdown := ComputeBreakdown(catalog, saturdayNoon, time.UTC,
		map[string]int{"adult": 9, "child": -2, "ghost": 5},
		map[string]int{"photo": 3, "lunch": 5, "drink": 4, "unknown": 1},
	)

	require.Len(t, breakdown.Tickets, 1)
	assert.Equal(t, 4, breakdown.Tickets[0].Quantity)
	assert.Equal(t, 4, breakdown.TotalGuests)

	require.Len(t, breakdown.Addons, 3)
	assert.Equal(t, 1, breakdown.Addons[0].Quantity)
	assert.Equal(t, 12.5, breakdown.Addons[0].UnitPrice)
	assert.Equal(t, 2, breakdown.Addons[1].Quantity)
	assert.Equal(t, 18.0, breakdown.Addons[1].LineTotal)
	assert.Equal(t, 4, breakdown.Addons[2].Quantity)
	assert.Equal(t, 102.5, breakdown.Total)
}

func TestComputeBreakdown_TotalNeverNegative(t *testing.T) {
	t.Parallel()

	catalog := adultCatalog()
	catalog.Rules = []Rule{
		{Label: "Huge discount", Type: RuleWeekend, Kind: ModifierFlat, Value: -1000},
		{Label: "Half off", Type: RuleWeekend, Kind: ModifierPercent, Value: -50, Priority: 1},
	}

	breakdown := ComputeBreakdown(catalog, saturdayNoon, time.UTC, map[string]int{"adult": 1}, nil)

	assert.Equal(t, 0.0, breakdown.Total)
	require.Len(t, breakdown.Adjustments, 2)
	assert.Less(t, breakdown.Adjustments[1].RunningTotal, 0.0)
}

func TestComputeBreakdown_SkipsZeroAmounts(t *testing.T) {
	t.Parallel()

	catalog := Catalog{Rules: []Rule{{Label: "Percent of nothing", Type: RuleWeekend, Kind: ModifierPercent, Value: 25}}}

	breakdown := ComputeBreakdown(catalog, saturdayNoon, time.UTC, nil, nil)
	assert.Empty(t, breakdown.Adjustments)
	assert.Equal(t, 0.0, breakdown.Total)
}

func TestComputeBreakdown_QuantityMonotonicity(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	catalog := Catalog{
		BasePrice: 4.99,
		Tickets: []TicketType{
			{Slug: "adult", Price: 19.99, Max: 10},
			{Slug: "child", Price: 9.95},
		},
		Addons: []Addon{{Slug: "guide", Price: 3.33, AllowMultiple: true, Max: 6}},
		Rules: NormalizeRules([]map[string]any{
			{"type": "weekend", "adjustment": map[string]any{"type": "percent", "value": -250}, "priority": 1},
			{"type": "weekend", "adjustment": map[string]any{"type": "flat", "value": 400}, "priority": 2},
			{"type": "seasonal", "start_date": "2024-01-01", "adjustment": map[string]any{"type": "percent", "value": 17.5}, "priority": 3},
			{"type": "weekday", "days": []any{"saturday"}, "adjustment": map[string]any{"type": "flat", "value": -12.5}, "priority": 4},
		}),
	}

	for i := 0; i < 200; i++ {
		tickets := map[string]int{"adult": rng.Intn(12), "child": rng.Intn(12)}
		addons := map[string]int{"guide": rng.Intn(8)}
		before := ComputeBreakdown(catalog, saturdayNoon, time.UTC, tickets, addons)

		bumped := map[string]int{"adult": tickets["adult"], "child": tickets["child"]}
		bumpedAddons := map[string]int{"guide": addons["guide"]}
		switch rng.Intn(3) {
		case 0:
			bumped["adult"]++
		case 1:
			bumped["child"]++
		default:
			bumpedAddons["guide"]++
		}
		after := ComputeBreakdown(catalog, saturdayNoon, time.UTC, bumped, bumpedAddons)

		assert.GreaterOrEqual(t, after.Total+0.01, before.Total, "iteration %d", i)
		assert.GreaterOrEqual(t, after.Total, 0.0)
	}
}
