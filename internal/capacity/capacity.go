// Package capacity holds the pure rules that keep slot bookings within their
// declared capacity. Nothing here performs I/O; stores call these functions
// with totals read inside their own transactions.
package capacity

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrCapacityBelowBooked is returned when a capacity update would leave
	// fewer seats than are already booked.
	ErrCapacityBelowBooked = errors.New("capacity: below booked")
	// ErrInsufficientCapacity is returned when a reservation does not fit.
	ErrInsufficientCapacity = errors.New("capacity: insufficient remaining capacity")
)

// ScopeTotal names the slot-wide capacity in errors and availability reports.
const ScopeTotal = "total"

// Reservation is the part of a booking the allocator cares about.
type Reservation struct {
	Pax       int
	PaxByType map[string]int
	Cancelled bool
}

// Headcount returns the larger of Pax and the per-type sum so a row whose
// Pax disagrees with its typed counts never under-counts the slot total.
func (r Reservation) Headcount() int {
	return max(r.Pax, r.typedSum())
}

func (r Reservation) typedSum() int {
	sum := 0
	for _, n := range r.PaxByType {
		if n > 0 {
			sum += n
		}
	}
	return sum
}

// Consistent reports whether Pax, when given, equals the per-type sum.
func (r Reservation) Consistent() bool {
	sum := r.typedSum()
	return r.Pax <= 0 || sum == 0 || r.Pax == sum
}

// Booked is the live occupancy of one slot.
type Booked struct {
	Total   int
	PerType map[string]int
}

// Tally sums pax over live reservations. Cancelled reservations never count.
func Tally(reservations []Reservation) Booked {
	booked := Booked{PerType: map[string]int{}}
	for _, r := range reservations {
		if r.Cancelled {
			continue
		}
		booked.Total += r.Headcount()
		for slug, n := range r.PaxByType {
			if n > 0 {
				booked.PerType[slug] += n
			}
		}
	}
	return booked
}

// Remaining is max(0, total - booked).
func Remaining(total, booked int) int {
	if remaining := total - booked; remaining > 0 {
		return remaining
	}
	return 0
}

// TypeAvailability is the occupancy of one per-type cap.
type TypeAvailability struct {
	Capacity  int
	Reserved  int
	Remaining int
}

// Availability annotates a slot with its derived occupancy. Unlimited is set
// when the slot carries no total cap; Remaining is still max(0, total-booked).
type Availability struct {
	Unlimited bool
	Total     int
	Reserved  int
	Remaining int
	PerType   map[string]TypeAvailability
}

// Evaluate derives the availability of a slot from its capacity and bookings.
func Evaluate(total int, perType map[string]int, booked Booked) Availability {
	availability := Availability{
		Unlimited: total <= 0,
		Total:     max(total, 0),
		Reserved:  booked.Total,
		Remaining: Remaining(total, booked.Total),
	}
	caps := NormalizePerType(perType)
	if len(caps) == 0 {
		return availability
	}
	availability.PerType = make(map[string]TypeAvailability, len(caps))
	for slug, limit := range caps {
		reserved := booked.PerType[slug]
		availability.PerType[slug] = TypeAvailability{
			Capacity:  limit,
			Reserved:  reserved,
			Remaining: Remaining(limit, reserved),
		}
	}
	return availability
}

// NormalizePerType drops blank slugs and non-positive caps. A nil map is
// returned when nothing remains.
func NormalizePerType(perType map[string]int) map[string]int {
	var out map[string]int
	for slug, limit := range perType {
		if slug == "" || limit <= 0 {
			continue
		}
		if out == nil {
			out = make(map[string]int, len(perType))
		}
		out[slug] = limit
	}
	return out
}

// BelowBookedError names the capacity scope a rejected update would break.
type BelowBookedError struct {
	Scope    string
	Capacity int
	Booked   int
}

func (e *BelowBookedError) Error() string {
	return fmt.Sprintf("capacity %d for %s is below %d booked", e.Capacity, e.Scope, e.Booked)
}

func (e *BelowBookedError) Unwrap() error { return ErrCapacityBelowBooked }

// CheckCapacityUpdate is the gate every capacity write goes through. A total of
// zero means unlimited and is always accepted; otherwise the new total and
// every per-type cap must cover what is already booked.
func CheckCapacityUpdate(newTotal int, newPerType map[string]int, booked Booked) error {
	if newTotal > 0 && newTotal < booked.Total {
		return &BelowBookedError{Scope: ScopeTotal, Capacity: newTotal, Booked: booked.Total}
	}
	caps := NormalizePerType(newPerType)
	for _, slug := range sortedSlugs(caps) {
		if reserved := booked.PerType[slug]; caps[slug] < reserved {
			return &BelowBookedError{Scope: slug, Capacity: caps[slug], Booked: reserved}
		}
	}
	return nil
}

// Request is a party asking for seats on a slot.
type Request struct {
	Pax       int
	PaxByType map[string]int
}

// InsufficientCapacityError reports which scope could not seat a request.
type InsufficientCapacityError struct {
	Scope     string
	Requested int
	Remaining int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("requested %d seats for %s but only %d remain", e.Requested, e.Scope, e.Remaining)
}

func (e *InsufficientCapacityError) Unwrap() error { return ErrInsufficientCapacity }

// CheckReservation reports whether a request fits next to the current bookings
// without breaking the total cap or any per-type cap.
func CheckReservation(total int, perType map[string]int, booked Booked, request Request) error {
	pax := Reservation{Pax: request.Pax, PaxByType: request.PaxByType}.Headcount()
	if total > 0 && booked.Total+pax > total {
		return &InsufficientCapacityError{Scope: ScopeTotal, Requested: pax, Remaining: Remaining(total, booked.Total)}
	}
	caps := NormalizePerType(perType)
	for _, slug := range sortedSlugs(caps) {
		wanted := request.PaxByType[slug]
		if wanted <= 0 {
			continue
		}
		if reserved := booked.PerType[slug]; reserved+wanted > caps[slug] {
			return &InsufficientCapacityError{Scope: slug, Requested: wanted, Remaining: Remaining(caps[slug], reserved)}
		}
	}
	return nil
}

func sortedSlugs(caps map[string]int) []string {
	slugs := make([]string, 0, len(caps))
	for slug := range caps {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
