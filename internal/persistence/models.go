package persistence

import (
	"encoding/json"
	"time"

	"github.com/example/experience-booking/internal/capacity"
)

// SlotStatus is the lifecycle state of a materialized slot.
type SlotStatus string

const (
	SlotStatusActive    SlotStatus = "active"
	SlotStatusCancelled SlotStatus = "cancelled"
)

// Slot is a materialized, capacity-bearing occurrence. Its identity is the
// (ExperienceID, Start, End) triple; ID is a surrogate key.
type Slot struct {
	ID              string
	ExperienceID    string
	Start           time.Time
	End             time.Time
	CapacityTotal   int
	CapacityPerType map[string]int
	Status          SlotStatus
	BufferBefore    int
	BufferAfter     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation holds seats on a slot. Only cancelled reservations stop counting
// against capacity.
type Reservation struct {
	ID           string
	SlotID       string
	ExperienceID string
	Status       ReservationStatus
	Pax          int
	PaxByType    map[string]int
	CreatedAt    time.Time
}

// Live reports whether the reservation still occupies seats.
func (r Reservation) Live() bool {
	return r.Status != ReservationStatusCancelled
}

// AvailabilityDefaults are the experience level settings recurrence rules inherit.
type AvailabilityDefaults struct {
	Capacity     int
	BufferBefore int
	BufferAfter  int
	ResourceLock bool
}

// Experience is the static configuration of a bookable experience. The JSON
// columns hold the raw, post-meta shaped payloads and are normalized on read.
type Experience struct {
	ID           string
	Title        string
	BasePrice    float64
	Currency     string
	Tickets      json.RawMessage
	Addons       json.RawMessage
	PricingRules json.RawMessage
	Recurrence   json.RawMessage
	Availability AvailabilityDefaults
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TallyReservations converts live reservations into the allocator's booked totals.
func TallyReservations(reservations []Reservation) capacity.Booked {
	entries := make([]capacity.Reservation, 0, len(reservations))
	for _, r := range reservations {
		entries = append(entries, capacity.Reservation{
			Pax:       r.Pax,
			PaxByType: r.PaxByType,
			Cancelled: !r.Live(),
		})
	}
	return capacity.Tally(entries)
}
