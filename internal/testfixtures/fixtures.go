package testfixtures

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/experience-booking/internal/persistence"
)

var (
	experienceCounter  uint64
	slotCounter        uint64
	reservationCounter uint64
)

// Monday, so weekly recurrences starting on the reference day are predictable.
var referenceTime = time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// -------------------------- Experience fixtures --------------------------

// ExperienceFixture represents a deterministic experience configuration.
type ExperienceFixture struct {
	ID           string
	Title        string
	BasePrice    float64
	Currency     string
	Tickets      []map[string]any
	Addons       []map[string]any
	PricingRules []map[string]any
	Recurrence   map[string]any
	Availability persistence.AvailabilityDefaults
	CreatedAt    time.Time
}

// ExperienceOption configures the generated experience fixture.
type ExperienceOption func(*ExperienceFixture)

// NewExperienceFixture returns a tour running Mondays and Wednesdays at 10:00
// for 90 minutes with adult and child tickets.
func NewExperienceFixture(opts ...ExperienceOption) ExperienceFixture {
	idx := atomic.AddUint64(&experienceCounter, 1)
	fixture := ExperienceFixture{
		ID:        fmt.Sprintf("experience-%03d", idx),
		Title:     fmt.Sprintf("Experience %03d", idx),
		BasePrice: 50,
		Currency:  "USD",
		Tickets: []map[string]any{
			{"slug": "adult", "label": "Adult", "price": 10.0},
			{"slug": "child", "label": "Child", "price": 5.0},
		},
		Recurrence: map[string]any{
			"frequency":  "weekly",
			"duration":   90,
			"days":       []any{"mon", "wed"},
			"time_slots": []any{map[string]any{"time": "10:00"}},
		},
		Availability: persistence.AvailabilityDefaults{Capacity: 10},
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithExperienceID overrides the generated experience ID.
func WithExperienceID(id string) ExperienceOption {
	return func(f *ExperienceFixture) {
		f.ID = id
	}
}

// WithBasePrice overrides the base price.
func WithBasePrice(price float64) ExperienceOption {
	return func(f *ExperienceFixture) {
		f.BasePrice = price
	}
}

// WithTickets replaces the raw ticket entries.
func WithTickets(tickets ...map[string]any) ExperienceOption {
	return func(f *ExperienceFixture) {
		f.Tickets = tickets
	}
}

// WithAddons replaces the raw addon entries.
func WithAddons(addons ...map[string]any) ExperienceOption {
	return func(f *ExperienceFixture) {
		f.Addons = addons
	}
}

// WithPricingRules replaces the raw pricing rules.
func WithPricingRules(rules ...map[string]any) ExperienceOption {
	return func(f *ExperienceFixture) {
		f.PricingRules = rules
	}
}

// WithRecurrence replaces the raw recurrence payload. Nil clears it.
func WithRecurrence(recurrence map[string]any) ExperienceOption {
	return func(f *ExperienceFixture) {
		f.Recurrence = recurrence
	}
}

// WithAvailability overrides the availability defaults.
func WithAvailability(defaults persistence.AvailabilityDefaults) ExperienceOption {
	return func(f *ExperienceFixture) {
		f.Availability = defaults
	}
}

// Persistence returns the fixture as a persistence.Experience value with its
// JSON columns encoded.
func (f ExperienceFixture) Persistence() persistence.Experience {
	return persistence.Experience{
		ID:           f.ID,
		Title:        f.Title,
		BasePrice:    f.BasePrice,
		Currency:     f.Currency,
		Tickets:      mustJSON(f.Tickets, "[]"),
		Addons:       mustJSON(f.Addons, "[]"),
		PricingRules: mustJSON(f.PricingRules, "[]"),
		Recurrence:   mustJSON(f.Recurrence, "{}"),
		Availability: f.Availability,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// ----------------------------- Slot fixtures -----------------------------

// SlotFixture represents a deterministic materialized slot.
type SlotFixture struct {
	ID              string
	ExperienceID    string
	Start           time.Time
	Duration        time.Duration
	CapacityTotal   int
	CapacityPerType map[string]int
	Status          persistence.SlotStatus
	BufferBefore    int
	BufferAfter     int
}

// SlotOption configures the generated slot fixture.
type SlotOption func(*SlotFixture)

// NewSlotFixture returns a 90 minute slot starting at 10:00 UTC on a day
// after the reference time. Each fixture lands on a distinct day.
func NewSlotFixture(opts ...SlotOption) SlotFixture {
	idx := atomic.AddUint64(&slotCounter, 1)
	day := time.Date(referenceTime.Year(), referenceTime.Month(), referenceTime.Day(), 10, 0, 0, 0, time.UTC)
	fixture := SlotFixture{
		ID:            fmt.Sprintf("slot-%03d", idx),
		ExperienceID:  "experience-001",
		Start:         day.AddDate(0, 0, int(idx)),
		Duration:      90 * time.Minute,
		CapacityTotal: 10,
		Status:        persistence.SlotStatusActive,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSlotID overrides the generated slot ID.
func WithSlotID(id string) SlotOption {
	return func(f *SlotFixture) {
		f.ID = id
	}
}

// WithSlotExperience overrides the owning experience.
func WithSlotExperience(experienceID string) SlotOption {
	return func(f *SlotFixture) {
		f.ExperienceID = experienceID
	}
}

// WithSlotStart overrides the start instant.
func WithSlotStart(start time.Time) SlotOption {
	return func(f *SlotFixture) {
		f.Start = start
	}
}

// WithSlotDuration overrides the slot length.
func WithSlotDuration(d time.Duration) SlotOption {
	return func(f *SlotFixture) {
		f.Duration = d
	}
}

// WithSlotCapacity sets the total capacity and optional per-type caps.
func WithSlotCapacity(total int, perType map[string]int) SlotOption {
	return func(f *SlotFixture) {
		f.CapacityTotal = total
		f.CapacityPerType = perType
	}
}

// WithSlotStatus overrides the lifecycle status.
func WithSlotStatus(status persistence.SlotStatus) SlotOption {
	return func(f *SlotFixture) {
		f.Status = status
	}
}

// WithSlotBuffers sets the buffer minutes around the slot.
func WithSlotBuffers(before, after int) SlotOption {
	return func(f *SlotFixture) {
		f.BufferBefore = before
		f.BufferAfter = after
	}
}

// End returns the exclusive end of the slot.
func (f SlotFixture) End() time.Time {
	return f.Start.Add(f.Duration)
}

// Persistence returns the fixture as a persistence.Slot value.
func (f SlotFixture) Persistence() persistence.Slot {
	return persistence.Slot{
		ID:              f.ID,
		ExperienceID:    f.ExperienceID,
		Start:           f.Start,
		End:             f.End(),
		CapacityTotal:   f.CapacityTotal,
		CapacityPerType: copyCounts(f.CapacityPerType),
		Status:          f.Status,
		BufferBefore:    f.BufferBefore,
		BufferAfter:     f.BufferAfter,
	}
}

// -------------------------- Reservation fixtures -------------------------

// ReservationFixture represents a deterministic reservation.
type ReservationFixture struct {
	ID        string
	SlotID    string
	Status    persistence.ReservationStatus
	Pax       int
	PaxByType map[string]int
	CreatedAt time.Time
}

// ReservationOption configures the generated reservation fixture.
type ReservationOption func(*ReservationFixture)

// NewReservationFixture returns a confirmed two-seat reservation on slotID.
func NewReservationFixture(slotID string, opts ...ReservationOption) ReservationFixture {
	idx := atomic.AddUint64(&reservationCounter, 1)
	fixture := ReservationFixture{
		ID:        fmt.Sprintf("reservation-%03d", idx),
		SlotID:    slotID,
		Status:    persistence.ReservationStatusConfirmed,
		Pax:       2,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithReservationID overrides the generated reservation ID.
func WithReservationID(id string) ReservationOption {
	return func(f *ReservationFixture) {
		f.ID = id
	}
}

// WithPax sets the seat count and optional per-type split.
func WithPax(pax int, byType map[string]int) ReservationOption {
	return func(f *ReservationFixture) {
		f.Pax = pax
		f.PaxByType = byType
	}
}

// WithReservationStatus overrides the lifecycle status.
func WithReservationStatus(status persistence.ReservationStatus) ReservationOption {
	return func(f *ReservationFixture) {
		f.Status = status
	}
}

// Persistence returns the fixture as a persistence.Reservation value.
func (f ReservationFixture) Persistence() persistence.Reservation {
	return persistence.Reservation{
		ID:        f.ID,
		SlotID:    f.SlotID,
		Status:    f.Status,
		Pax:       f.Pax,
		PaxByType: copyCounts(f.PaxByType),
		CreatedAt: f.CreatedAt,
	}
}

func mustJSON(value any, empty string) json.RawMessage {
	switch v := value.(type) {
	case []map[string]any:
		if v == nil {
			return json.RawMessage(empty)
		}
	case map[string]any:
		if v == nil {
			return json.RawMessage(empty)
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: encode %T: %v", value, err))
	}
	return data
}

func copyCounts(counts map[string]int) map[string]int {
	if counts == nil {
		return nil
	}
	clone := make(map[string]int, len(counts))
	for k, v := range counts {
		clone[k] = v
	}
	return clone
}
