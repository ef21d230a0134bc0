package pricing

import (
	"math"
	"sort"
	"time"
)

// LineItem is one priced ticket or addon row.
type LineItem struct {
	Slug      string
	Label     string
	Quantity  int
	UnitPrice float64
	LineTotal float64
}

// Adjustment records one applied pricing rule and the running total after it.
type Adjustment struct {
	Label        string
	Amount       float64
	RunningTotal float64
}

// Breakdown is the computed price of a booking attempt. It is never persisted.
type Breakdown struct {
	BasePrice   float64
	Tickets     []LineItem
	Addons      []LineItem
	Adjustments []Adjustment
	Subtotal    float64
	Total       float64
	Currency    string
	TotalGuests int
}

// ComputeBreakdown prices the requested quantities for a slot starting at
// slotStart. Rules are evaluated against the slot's local time in loc.
//
// Adjustments compound: each rule's amount is computed against the running
// total left by the rules before it, in ascending priority order.
func ComputeBreakdown(catalog Catalog, slotStart time.Time, loc *time.Location, tickets, addons map[string]int) Breakdown {
	if loc == nil {
		loc = time.UTC
	}

	breakdown := Breakdown{
		BasePrice: round2(catalog.BasePrice),
		Currency:  catalog.Currency,
	}

	ticketSubtotal := 0.0
	for _, ticket := range catalog.Tickets {
		quantity := tickets[ticket.Slug]
		if quantity <= 0 {
			continue
		}
		if ticket.Max > 0 && quantity > ticket.Max {
			quantity = ticket.Max
		}
		line := LineItem{
			Slug:      ticket.Slug,
			Label:     ticket.Label,
			Quantity:  quantity,
			UnitPrice: round2(ticket.Price),
			LineTotal: round2(ticket.Price * float64(quantity)),
		}
		ticketSubtotal += line.LineTotal
		breakdown.TotalGuests += quantity
		breakdown.Tickets = append(breakdown.Tickets, line)
	}

	addonSubtotal := 0.0
	for _, addon := range catalog.Addons {
		quantity := addons[addon.Slug]
		if quantity <= 0 {
			continue
		}
		if !addon.AllowMultiple {
			quantity = 1
		} else if addon.Max > 0 && quantity > addon.Max {
			quantity = addon.Max
		}
		line := LineItem{
			Slug:      addon.Slug,
			Label:     addon.Label,
			Quantity:  quantity,
			UnitPrice: round2(addon.Price),
			LineTotal: round2(addon.Price * float64(quantity)),
		}
		addonSubtotal += line.LineTotal
		breakdown.Addons = append(breakdown.Addons, line)
	}

	breakdown.Subtotal = round2(breakdown.BasePrice + ticketSubtotal + addonSubtotal)

	local := slotStart.In(loc)
	running := breakdown.Subtotal
	for _, rule := range orderedRules(catalog.Rules) {
		if !rule.Matches(local) {
			continue
		}
		amount := rule.amountFor(running)
		if amount == 0 {
			continue
		}
		running = round2(running + amount)
		breakdown.Adjustments = append(breakdown.Adjustments, Adjustment{
			Label:        rule.Label,
			Amount:       amount,
			RunningTotal: running,
		})
	}

	breakdown.Total = math.Max(0, round2(running))
	return breakdown
}

// Matches reports whether the rule applies at the given local instant.
func (r Rule) Matches(local time.Time) bool {
	switch r.Type {
	case RuleSeasonal:
		day := local.Format("2006-01-02")
		if r.StartDate != "" && day < r.StartDate {
			return false
		}
		if r.EndDate != "" && day > r.EndDate {
			return false
		}
		return r.StartDate != "" || r.EndDate != ""
	case RuleWeekday:
		for _, d := range r.Days {
			if d == local.Weekday() {
				return true
			}
		}
		return false
	case RuleWeekend:
		return local.Weekday() == time.Saturday || local.Weekday() == time.Sunday
	default:
		return false
	}
}

func (r Rule) amountFor(running float64) float64 {
	switch r.Kind {
	case ModifierPercent:
		return round2(running * r.Value / 100)
	default:
		return round2(r.Value)
	}
}

func orderedRules(rules []Rule) []Rule {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

func round2(value float64) float64 {
	rounded := math.Round(value*100) / 100
	if rounded == 0 {
		return 0
	}
	return rounded
}
