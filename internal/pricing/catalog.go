package pricing

import (
	"regexp"
	"strings"
	"time"

	"github.com/example/experience-booking/internal/payload"
	"github.com/example/experience-booking/internal/recurrence"
)

// TicketType is a purchasable ticket category of an experience.
type TicketType struct {
	Slug     string
	Label    string
	Price    float64
	Min      int
	Max      int
	Capacity int
}

// Addon is an optional extra sold alongside tickets.
type Addon struct {
	Slug          string
	Label         string
	Price         float64
	AllowMultiple bool
	Max           int
}

// RuleType selects the predicate a pricing rule is evaluated with.
type RuleType string

const (
	RuleSeasonal RuleType = "seasonal"
	RuleWeekday  RuleType = "weekday"
	RuleWeekend  RuleType = "weekend"
)

// ModifierKind selects how a rule's value is turned into an amount.
type ModifierKind string

const (
	ModifierFlat    ModifierKind = "flat"
	ModifierPercent ModifierKind = "percent"
)

// Rule is a time-based price adjustment. Lower priorities apply first.
type Rule struct {
	Label     string
	Type      RuleType
	Kind      ModifierKind
	Value     float64
	Priority  int
	StartDate string
	EndDate   string
	Days      []time.Weekday
}

// Catalog is everything the engine needs to price one experience.
type Catalog struct {
	ExperienceID string
	BasePrice    float64
	Currency     string
	Tickets      []TicketType
	Addons       []Addon
	Rules        []Rule
}

var slugPattern = regexp.MustCompile(`[^a-z0-9_-]+`)

// SanitizeSlug lowercases the value and strips everything outside [a-z0-9_-].
func SanitizeSlug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "-")
	return slugPattern.ReplaceAllString(value, "")
}

// NormalizeTickets validates a raw ticket array. Entries without a usable slug
// are dropped and the first occurrence of a slug wins.
func NormalizeTickets(raw []map[string]any) []TicketType {
	seen := make(map[string]struct{}, len(raw))
	tickets := make([]TicketType, 0, len(raw))
	for _, entry := range raw {
		slug := entrySlug(entry)
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		ticket := TicketType{
			Slug:     slug,
			Label:    labelOr(entry, slug),
			Price:    nonNegativeFloat(entry["price"]),
			Min:      nonNegativeInt(entry["min"]),
			Max:      nonNegativeInt(entry["max"]),
			Capacity: nonNegativeInt(entry["capacity"]),
		}
		if ticket.Max > 0 && ticket.Min > ticket.Max {
			ticket.Min = ticket.Max
		}
		tickets = append(tickets, ticket)
	}
	return tickets
}

// NormalizeAddons validates a raw addon array with the same slug policy as tickets.
func NormalizeAddons(raw []map[string]any) []Addon {
	seen := make(map[string]struct{}, len(raw))
	addons := make([]Addon, 0, len(raw))
	for _, entry := range raw {
		slug := entrySlug(entry)
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		addons = append(addons, Addon{
			Slug:          slug,
			Label:         labelOr(entry, slug),
			Price:         nonNegativeFloat(entry["price"]),
			AllowMultiple: payload.Bool(entry["allow_multiple"]),
			Max:           nonNegativeInt(entry["max"]),
		})
	}
	return addons
}

// NormalizeRules validates raw pricing rules.
//
// Unknown types and modifier kinds are dropped, percent values are clamped to
// -100 so no rule can flip the sign of the running total, and seasonal rules
// need at least one date bound.
func NormalizeRules(raw []map[string]any) []Rule {
	rules := make([]Rule, 0, len(raw))
	for _, entry := range raw {
		ruleType := RuleType(strings.ToLower(payload.String(entry["type"])))
		switch ruleType {
		case RuleSeasonal, RuleWeekday, RuleWeekend:
		default:
			continue
		}

		kind, value, ok := modifierOf(entry)
		if !ok {
			continue
		}
		if kind == ModifierPercent && value < -100 {
			value = -100
		}

		rule := Rule{
			Label: payload.String(entry["label"]),
			Type:  ruleType,
			Kind:  kind,
			Value: value,
		}
		if priority, ok := payload.Int(entry["priority"]); ok {
			rule.Priority = priority
		}

		switch ruleType {
		case RuleSeasonal:
			rule.StartDate = dateOrEmpty(entry["start_date"])
			rule.EndDate = dateOrEmpty(entry["end_date"])
			if rule.StartDate == "" && rule.EndDate == "" {
				continue
			}
		case RuleWeekday:
			rule.Days = recurrence.ParseWeekdays(payload.Strings(entry["days"]))
			if len(rule.Days) == 0 {
				continue
			}
		}
		if rule.Label == "" {
			rule.Label = defaultRuleLabel(ruleType)
		}
		rules = append(rules, rule)
	}
	return rules
}

// modifierOf reads {"adjustment": {"type", "amount"}} and the flat
// {"adjustment_type", "amount"} shape older payloads use.
func modifierOf(entry map[string]any) (ModifierKind, float64, bool) {
	kindValue := entry["adjustment_type"]
	amountValue := entry["amount"]
	if nested, ok := entry["adjustment"].(map[string]any); ok {
		kindValue = nested["type"]
		amountValue = nested["value"]
		if !payload.Has(nested, "value") {
			amountValue = nested["amount"]
		}
	}

	var kind ModifierKind
	switch strings.ToLower(payload.String(kindValue)) {
	case "flat", "fixed", "":
		kind = ModifierFlat
	case "percent", "percentage", "%":
		kind = ModifierPercent
	default:
		return "", 0, false
	}

	value, ok := payload.Float(amountValue)
	if !ok {
		return "", 0, false
	}
	return kind, value, true
}

func defaultRuleLabel(ruleType RuleType) string {
	switch ruleType {
	case RuleSeasonal:
		return "Seasonal adjustment"
	case RuleWeekday:
		return "Weekday adjustment"
	default:
		return "Weekend adjustment"
	}
}

func entrySlug(entry map[string]any) string {
	slug := SanitizeSlug(payload.String(entry["slug"]))
	if slug == "" {
		slug = SanitizeSlug(payload.String(entry["label"]))
	}
	return slug
}

func labelOr(entry map[string]any, fallback string) string {
	if label := payload.String(entry["label"]); label != "" {
		return label
	}
	return fallback
}

func nonNegativeFloat(v any) float64 {
	f, ok := payload.Float(v)
	if !ok || f < 0 {
		return 0
	}
	return f
}

func nonNegativeInt(v any) int {
	n, ok := payload.Int(v)
	if !ok || n < 0 {
		return 0
	}
	return n
}

func dateOrEmpty(v any) string {
	value := payload.String(v)
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return ""
	}
	return value
}
