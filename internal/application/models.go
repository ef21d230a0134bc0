package application

import (
	"time"

	"github.com/example/experience-booking/internal/capacity"
	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/recurrence"
)

// Occurrence is a concrete start/end pair projected from a recurrence rule.
// SlotID is set when the occurrence is already materialized.
type Occurrence struct {
	ExperienceID string
	RuleIndex    int
	Start        time.Time
	End          time.Time
	LocalStart   time.Time
	Capacity     int
	BufferBefore int
	BufferAfter  int
	SlotID       string
}

// Materialized reports whether a slot row already backs the occurrence.
func (o Occurrence) Materialized() bool {
	return o.SlotID != ""
}

// PreviewOptions controls how Preview treats already materialized slots.
type PreviewOptions struct {
	IncludeExisting bool
}

// ExpandPreviewParams describes a preview request. A nil Recurrence or
// Defaults falls back to the experience's stored configuration.
type ExpandPreviewParams struct {
	ExperienceID    string
	Recurrence      map[string]any
	Defaults        *recurrence.Defaults
	MonthCap        int
	IncludeExisting bool
}

// PreviewResult lists the virtual occurrences of a recurrence.
type PreviewResult struct {
	ExperienceID string
	MonthCap     int
	RuleCount    int
	Occurrences  []Occurrence
}

// GenerateParams describes a bulk materialization request.
type GenerateParams struct {
	ExperienceID    string
	Recurrence      map[string]any
	Defaults        *recurrence.Defaults
	ReplaceExisting bool
}

// GenerateResult counts what a generation run did. Conflicts are slots whose
// replacement capacity would have dropped below their bookings. Preview lists
// every projected occurrence with the id of the slot now backing it.
type GenerateResult struct {
	Created   int
	Updated   int
	Skipped   int
	Conflicts int
	Preview   []Occurrence
}

// AvailabilityQuery is an inclusive local date range, formatted YYYY-MM-DD.
type AvailabilityQuery struct {
	ExperienceID string
	StartDate    string
	EndDate      string
}

// SlotWithAvailability is a materialized slot annotated with derived occupancy.
type SlotWithAvailability struct {
	Slot         persistence.Slot
	LocalStart   time.Time
	LocalEnd     time.Time
	Availability capacity.Availability
}

// UpdateCapacityParams replaces a slot's capacity.
type UpdateCapacityParams struct {
	SlotID  string
	Total   int
	PerType map[string]int
}

// MoveSlotParams relocates a slot. Times are RFC 3339 or local wall-clock.
type MoveSlotParams struct {
	SlotID string
	Start  string
	End    string
}

// ReserveParams requests seats on a slot. Pax defaults to the per-type sum.
type ReserveParams struct {
	SlotID    string
	Pax       int
	PaxByType map[string]int
	Status    persistence.ReservationStatus
}

// BreakdownParams identifies what to price. SlotID wins over SlotStart.
type BreakdownParams struct {
	ExperienceID string
	SlotID       string
	SlotStart    time.Time
	Tickets      map[string]int
	Addons       map[string]int
}

// ExperienceInput is the configuration an administrator saves for an experience.
type ExperienceInput struct {
	ID           string
	Title        string
	BasePrice    float64
	Currency     string
	Tickets      []map[string]any
	Addons       []map[string]any
	PricingRules []map[string]any
	Recurrence   map[string]any
	Availability persistence.AvailabilityDefaults
}
