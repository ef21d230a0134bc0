// Package memory provides a mutex-guarded, in-process implementation of the
// persistence repositories. Every check-then-write runs under one lock, which
// gives it the same atomicity the SQLite store gets from IMMEDIATE transactions.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/example/experience-booking/internal/capacity"
	"github.com/example/experience-booking/internal/persistence"
)

// Storage is an in-memory persistence.Store.
type Storage struct {
	mu           sync.RWMutex
	slots        map[string]persistence.Slot
	identities   map[identity]string
	reservations map[string]persistence.Reservation
	experiences  map[string]persistence.Experience
	now          func() time.Time
}

var _ persistence.Store = (*Storage)(nil)

type identity struct {
	experienceID string
	start        int64
	end          int64
}

func identityOf(experienceID string, start, end time.Time) identity {
	return identity{experienceID: experienceID, start: start.UnixNano(), end: end.UnixNano()}
}

// Option customizes a Storage.
type Option func(*Storage)

// WithClock overrides the clock used to stamp created/updated fields.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty Storage.
func New(opts ...Option) *Storage {
	s := &Storage{
		slots:        make(map[string]persistence.Slot),
		identities:   make(map[identity]string),
		reservations: make(map[string]persistence.Reservation),
		experiences:  make(map[string]persistence.Experience),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// --- SlotRepository implementation ---

// InsertSlot stores a new slot.
func (s *Storage) InsertSlot(ctx context.Context, slot persistence.Slot) error {
	if err := validateSlot(slot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[slot.ID]; ok {
		return persistence.ErrDuplicate
	}
	key := identityOf(slot.ExperienceID, slot.Start, slot.End)
	if _, ok := s.identities[key]; ok {
		return persistence.ErrDuplicate
	}

	s.putSlotLocked(s.stampSlot(slot))
	return nil
}

// UpsertSlot stores the slot or updates capacity and buffers of the slot sharing its identity.
func (s *Storage) UpsertSlot(ctx context.Context, slot persistence.Slot, guard persistence.CapacityGuard) (string, bool, error) {
	if err := validateSlot(slot); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existingID, ok := s.identities[identityOf(slot.ExperienceID, slot.Start, slot.End)]
	if !ok {
		if _, taken := s.slots[slot.ID]; taken {
			return "", false, persistence.ErrDuplicate
		}
		s.putSlotLocked(s.stampSlot(slot))
		return slot.ID, true, nil
	}

	if guard != nil {
		if err := guard(s.tallyLocked(existingID)); err != nil {
			return "", false, err
		}
	}

	existing := s.slots[existingID]
	existing.CapacityTotal = slot.CapacityTotal
	if slot.CapacityPerType != nil {
		existing.CapacityPerType = cloneCounts(slot.CapacityPerType)
	}
	existing.BufferBefore = slot.BufferBefore
	existing.BufferAfter = slot.BufferAfter
	existing.UpdatedAt = s.now().UTC()
	s.slots[existingID] = existing
	return existingID, false, nil
}

// GetSlot retrieves a slot by ID.
func (s *Storage) GetSlot(ctx context.Context, id string) (persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[id]
	if !ok {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	return cloneSlot(slot), nil
}

// FindSlotByIdentity retrieves the slot of an experience at exactly start and end.
func (s *Storage) FindSlotByIdentity(ctx context.Context, experienceID string, start, end time.Time) (persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[identityOf(experienceID, start, end)]
	if !ok {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	return cloneSlot(s.slots[id]), nil
}

// ListSlots returns the slots matching filter ordered by start time.
func (s *Storage) ListSlots(ctx context.Context, filter persistence.SlotFilter) ([]persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := make([]persistence.Slot, 0)
	for _, slot := range s.slots {
		if !matchesSlotFilter(slot, filter) {
			continue
		}
		slots = append(slots, cloneSlot(slot))
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start.Equal(slots[j].Start) {
			return slots[i].ID < slots[j].ID
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots, nil
}

// MoveSlot relocates a slot in time.
func (s *Storage) MoveSlot(ctx context.Context, id string, start, end time.Time) error {
	if !end.After(start) {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return persistence.ErrNotFound
	}
	next := identityOf(slot.ExperienceID, start, end)
	if owner, taken := s.identities[next]; taken && owner != id {
		return persistence.ErrDuplicate
	}

	delete(s.identities, identityOf(slot.ExperienceID, slot.Start, slot.End))
	slot.Start = start.UTC()
	slot.End = end.UTC()
	slot.UpdatedAt = s.now().UTC()
	s.slots[id] = slot
	s.identities[next] = id
	return nil
}

// UpdateSlotCapacity replaces a slot's capacity after guard accepted it.
func (s *Storage) UpdateSlotCapacity(ctx context.Context, id string, total int, perType map[string]int, guard persistence.CapacityGuard) error {
	if total < 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if guard != nil {
		if err := guard(s.tallyLocked(id)); err != nil {
			return err
		}
	}

	slot.CapacityTotal = total
	slot.CapacityPerType = cloneCounts(perType)
	slot.UpdatedAt = s.now().UTC()
	s.slots[id] = slot
	return nil
}

// UpdateSlotStatus changes the lifecycle status of a slot.
func (s *Storage) UpdateSlotStatus(ctx context.Context, id string, status persistence.SlotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return persistence.ErrNotFound
	}
	slot.Status = status
	slot.UpdatedAt = s.now().UTC()
	s.slots[id] = slot
	return nil
}

// --- ReservationRepository implementation ---

// CreateReservation stores the reservation when guard accepts it.
func (s *Storage) CreateReservation(ctx context.Context, reservation persistence.Reservation, guard persistence.ReservationGuard) error {
	if reservation.ID == "" || reservation.SlotID == "" || reservation.Pax <= 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[reservation.SlotID]
	if !ok {
		return persistence.ErrNotFound
	}
	if _, dup := s.reservations[reservation.ID]; dup {
		return persistence.ErrDuplicate
	}
	if guard != nil {
		if err := guard(cloneSlot(slot), s.tallyLocked(slot.ID)); err != nil {
			return err
		}
	}

	stored := cloneReservation(reservation)
	if stored.Status == "" {
		stored.Status = persistence.ReservationStatusConfirmed
	}
	if stored.ExperienceID == "" {
		stored.ExperienceID = slot.ExperienceID
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	s.reservations[stored.ID] = stored
	return nil
}

// CancelReservation marks a reservation cancelled.
func (s *Storage) CancelReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	reservation.Status = persistence.ReservationStatusCancelled
	s.reservations[id] = reservation
	return cloneReservation(reservation), nil
}

// ListReservations returns every reservation held on the given slots.
func (s *Storage) ListReservations(ctx context.Context, slotIDs []string) ([]persistence.Reservation, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = struct{}{}
	}

	reservations := make([]persistence.Reservation, 0)
	for _, reservation := range s.reservations {
		if _, ok := wanted[reservation.SlotID]; ok {
			reservations = append(reservations, cloneReservation(reservation))
		}
	}

	sort.Slice(reservations, func(i, j int) bool {
		if reservations[i].CreatedAt.Equal(reservations[j].CreatedAt) {
			return reservations[i].ID < reservations[j].ID
		}
		return reservations[i].CreatedAt.Before(reservations[j].CreatedAt)
	})
	return reservations, nil
}

// --- ExperienceRepository implementation ---

// GetExperience retrieves an experience by ID.
func (s *Storage) GetExperience(ctx context.Context, id string) (persistence.Experience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	experience, ok := s.experiences[id]
	if !ok {
		return persistence.Experience{}, persistence.ErrNotFound
	}
	return cloneExperience(experience), nil
}

// SaveExperience inserts or replaces an experience, keeping its creation time.
func (s *Storage) SaveExperience(ctx context.Context, experience persistence.Experience) error {
	if experience.ID == "" || experience.BasePrice < 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stored := cloneExperience(experience)
	if existing, ok := s.experiences[experience.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	s.experiences[stored.ID] = stored
	return nil
}

func (s *Storage) putSlotLocked(slot persistence.Slot) {
	s.slots[slot.ID] = slot
	s.identities[identityOf(slot.ExperienceID, slot.Start, slot.End)] = slot.ID
}

func (s *Storage) stampSlot(slot persistence.Slot) persistence.Slot {
	stored := cloneSlot(slot)
	stored.Start = stored.Start.UTC()
	stored.End = stored.End.UTC()
	if stored.Status == "" {
		stored.Status = persistence.SlotStatusActive
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	return stored
}

func (s *Storage) tallyLocked(slotID string) capacity.Booked {
	live := make([]persistence.Reservation, 0)
	for _, reservation := range s.reservations {
		if reservation.SlotID == slotID && reservation.Live() {
			live = append(live, reservation)
		}
	}
	return persistence.TallyReservations(live)
}

func validateSlot(slot persistence.Slot) error {
	if slot.ID == "" || slot.ExperienceID == "" {
		return persistence.ErrConstraintViolation
	}
	if !slot.End.After(slot.Start) || slot.CapacityTotal < 0 {
		return persistence.ErrConstraintViolation
	}
	return nil
}

func matchesSlotFilter(slot persistence.Slot, filter persistence.SlotFilter) bool {
	if filter.ExperienceID != "" && slot.ExperienceID != filter.ExperienceID {
		return false
	}
	if filter.StartsAtOrAfter != nil && slot.Start.Before(*filter.StartsAtOrAfter) {
		return false
	}
	if filter.StartsBefore != nil && !slot.Start.Before(*filter.StartsBefore) {
		return false
	}
	if !filter.IncludeCancelled && slot.Status == persistence.SlotStatusCancelled {
		return false
	}
	return true
}

func cloneSlot(slot persistence.Slot) persistence.Slot {
	slot.CapacityPerType = cloneCounts(slot.CapacityPerType)
	return slot
}

func cloneReservation(reservation persistence.Reservation) persistence.Reservation {
	reservation.PaxByType = cloneCounts(reservation.PaxByType)
	return reservation
}

func cloneExperience(experience persistence.Experience) persistence.Experience {
	experience.Tickets = cloneRaw(experience.Tickets)
	experience.Addons = cloneRaw(experience.Addons)
	experience.PricingRules = cloneRaw(experience.PricingRules)
	experience.Recurrence = cloneRaw(experience.Recurrence)
	return experience
}

func cloneCounts(counts map[string]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
