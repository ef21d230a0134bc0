package persistence

import (
	"context"
	"time"

	"github.com/example/experience-booking/internal/capacity"
)

// SlotFilter narrows slot queries. Zero values do not filter.
type SlotFilter struct {
	ExperienceID     string
	StartsAtOrAfter  *time.Time
	StartsBefore     *time.Time
	IncludeCancelled bool
}

// CapacityGuard decides whether a capacity write may proceed given the live
// bookings read in the same transaction.
type CapacityGuard func(booked capacity.Booked) error

// ReservationGuard decides whether a reservation fits on the slot, given the
// slot and its live bookings read in the same transaction.
type ReservationGuard func(slot Slot, booked capacity.Booked) error

// SlotRepository stores materialized slots.
type SlotRepository interface {
	// InsertSlot returns ErrDuplicate when a slot with the same identity exists.
	InsertSlot(ctx context.Context, slot Slot) error
	// UpsertSlot creates the slot or, after guard accepts the new capacity,
	// updates capacity and buffers of the slot sharing its identity. Per-type
	// caps are only replaced when the slot carries a non-nil map. It returns
	// the stored id and whether a new row was created.
	UpsertSlot(ctx context.Context, slot Slot, guard CapacityGuard) (string, bool, error)
	GetSlot(ctx context.Context, id string) (Slot, error)
	FindSlotByIdentity(ctx context.Context, experienceID string, start, end time.Time) (Slot, error)
	ListSlots(ctx context.Context, filter SlotFilter) ([]Slot, error)
	MoveSlot(ctx context.Context, id string, start, end time.Time) error
	UpdateSlotCapacity(ctx context.Context, id string, total int, perType map[string]int, guard CapacityGuard) error
	UpdateSlotStatus(ctx context.Context, id string, status SlotStatus) error
}

// ReservationRepository stores reservations against slots.
type ReservationRepository interface {
	// CreateReservation runs guard and inserts the reservation atomically.
	CreateReservation(ctx context.Context, reservation Reservation, guard ReservationGuard) error
	CancelReservation(ctx context.Context, id string) (Reservation, error)
	ListReservations(ctx context.Context, slotIDs []string) ([]Reservation, error)
}

// ExperienceRepository stores experience configuration.
type ExperienceRepository interface {
	GetExperience(ctx context.Context, id string) (Experience, error)
	SaveExperience(ctx context.Context, experience Experience) error
}

// Store bundles every repository a storage backend provides.
type Store interface {
	SlotRepository
	ReservationRepository
	ExperienceRepository
	Close() error
}
