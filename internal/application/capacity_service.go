package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/experience-booking/internal/capacity"
	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/pricing"
)

// resourceLockLookaround widens the neighbour query of a resource-locked move
// so buffered slots starting just outside the new window are still checked.
const resourceLockLookaround = 24 * time.Hour

// CapacityDeps wires the collaborators of a CapacityService.
type CapacityDeps struct {
	Slots        persistence.SlotRepository
	Reservations persistence.ReservationRepository
	Experiences  persistence.ExperienceRepository
	Cache        CatalogCache
	Settings     SiteSettings
	IDGenerator  func() string
	Now          func() time.Time
}

// CapacityService changes slot capacity and time and books seats without
// ever letting reservations exceed what a slot offers.
type CapacityService struct {
	slots        persistence.SlotRepository
	reservations persistence.ReservationRepository
	experiences  experienceSource
	settings     SiteSettings
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewCapacityService constructs a capacity service.
func NewCapacityService(deps CapacityDeps) *CapacityService {
	return NewCapacityServiceWithLogger(deps, nil)
}

// NewCapacityServiceWithLogger constructs a capacity service with a specified logger.
func NewCapacityServiceWithLogger(deps CapacityDeps, logger *slog.Logger) *CapacityService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger = defaultLogger(logger)
	return &CapacityService{
		slots:        deps.Slots,
		reservations: deps.Reservations,
		experiences:  experienceSource{repo: deps.Experiences, cache: deps.Cache, logger: logger},
		settings:     settingsOrDefault(deps.Settings),
		idGenerator:  deps.IDGenerator,
		now:          deps.Now,
		logger:       logger,
	}
}

func (s *CapacityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CapacityService", operation, attrs...)
}

// UpdateCapacity replaces a slot's total and per-type capacity. The change is
// rejected with a *CapacityConflictError when it would drop below the seats
// already booked.
func (s *CapacityService) UpdateCapacity(ctx context.Context, params UpdateCapacityParams) (updated SlotWithAvailability, err error) {
	if s == nil {
		return SlotWithAvailability{}, fmt.Errorf("CapacityService is nil")
	}
	if s.slots == nil {
		return SlotWithAvailability{}, fmt.Errorf("slot repository not configured")
	}

	logger := s.loggerWith(ctx, "UpdateCapacity", "slot_id", params.SlotID, "capacity_total", params.Total)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update slot capacity", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "slot capacity updated", "reserved", updated.Availability.Reserved)
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.SlotID) == "" {
		vErr.add("slot_id", "slot id is required")
	}
	if params.Total < 0 {
		vErr.add("capacity_total", "capacity must not be negative")
	}
	perType := make(map[string]int, len(params.PerType))
	for slug, limit := range params.PerType {
		clean := pricing.SanitizeSlug(slug)
		if clean == "" {
			vErr.add("capacity_per_type", "ticket type slugs must not be blank")
			continue
		}
		if limit < 0 {
			vErr.add("capacity_per_type", "per-type capacity must not be negative")
			continue
		}
		perType[clean] = limit
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	perType = capacity.NormalizePerType(perType)

	guard := func(booked capacity.Booked) error {
		return capacity.CheckCapacityUpdate(params.Total, perType, booked)
	}
	if updateErr := s.slots.UpdateSlotCapacity(ctx, params.SlotID, params.Total, perType, guard); updateErr != nil {
		err = mapCapacityError(params.SlotID, updateErr)
		return
	}

	updated, err = s.SlotAvailability(ctx, params.SlotID)
	return
}

// MoveSlot relocates a slot. Experiences with a resource lock refuse moves
// whose buffered window would overlap another active slot.
func (s *CapacityService) MoveSlot(ctx context.Context, params MoveSlotParams) (moved persistence.Slot, err error) {
	if s == nil {
		return persistence.Slot{}, fmt.Errorf("CapacityService is nil")
	}
	if s.slots == nil {
		return persistence.Slot{}, fmt.Errorf("slot repository not configured")
	}

	logger := s.loggerWith(ctx, "MoveSlot", "slot_id", params.SlotID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to move slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "slot moved", "start", moved.Start, "end", moved.End)
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.SlotID) == "" {
		vErr.add("slot_id", "slot id is required")
	}
	start, end := parseRange(params.Start, params.End, s.settings.Location(), vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var current persistence.Slot
	current, err = s.slots.GetSlot(ctx, params.SlotID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if current.Status == persistence.SlotStatusCancelled {
		err = fmt.Errorf("%w: slot %s is cancelled", ErrConflict, current.ID)
		return
	}

	if err = s.checkResourceLock(ctx, current, start, end); err != nil {
		return
	}

	if moveErr := s.slots.MoveSlot(ctx, current.ID, start, end); moveErr != nil {
		err = mapRepoError(moveErr)
		return
	}

	moved, err = s.slots.GetSlot(ctx, current.ID)
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// Reserve books seats on a slot. The capacity check and the insert happen
// atomically so concurrent reservations never overbook.
func (s *CapacityService) Reserve(ctx context.Context, params ReserveParams) (reservation persistence.Reservation, err error) {
	if s == nil {
		return persistence.Reservation{}, fmt.Errorf("CapacityService is nil")
	}
	if s.reservations == nil {
		return persistence.Reservation{}, fmt.Errorf("reservation repository not configured")
	}

	logger := s.loggerWith(ctx, "Reserve", "slot_id", params.SlotID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reserve seats", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "seats reserved", "reservation_id", reservation.ID, "pax", reservation.Pax)
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.SlotID) == "" {
		vErr.add("slot_id", "slot id is required")
	}
	paxByType := make(map[string]int, len(params.PaxByType))
	for slug, count := range params.PaxByType {
		clean := pricing.SanitizeSlug(slug)
		if clean == "" || count < 0 {
			vErr.add("pax_by_type", "ticket quantities need a slug and must not be negative")
			continue
		}
		if count > 0 {
			paxByType[clean] += count
		}
	}
	requested := capacity.Reservation{Pax: params.Pax, PaxByType: paxByType}
	pax := requested.Headcount()
	if params.Pax < 0 || pax <= 0 {
		vErr.add("pax", "at least one guest is required")
	} else if !requested.Consistent() {
		vErr.add("pax", "pax must equal the sum of pax_by_type")
	}
	status := params.Status
	switch status {
	case "":
		status = persistence.ReservationStatusConfirmed
	case persistence.ReservationStatusPending, persistence.ReservationStatusConfirmed:
	default:
		vErr.add("status", "status must be pending or confirmed")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if len(paxByType) == 0 {
		paxByType = nil
	}

	candidate := persistence.Reservation{
		ID:        s.idGenerator(),
		SlotID:    params.SlotID,
		Status:    status,
		Pax:       pax,
		PaxByType: paxByType,
		CreatedAt: s.now().UTC(),
	}
	var experienceID string
	guard := func(slot persistence.Slot, booked capacity.Booked) error {
		experienceID = slot.ExperienceID
		if slot.Status == persistence.SlotStatusCancelled {
			return fmt.Errorf("%w: slot %s is cancelled", ErrConflict, slot.ID)
		}
		return capacity.CheckReservation(slot.CapacityTotal, slot.CapacityPerType, booked, capacity.Request{
			Pax:       candidate.Pax,
			PaxByType: candidate.PaxByType,
		})
	}

	if createErr := s.reservations.CreateReservation(ctx, candidate, guard); createErr != nil {
		err = mapCapacityError(params.SlotID, createErr)
		return
	}

	reservation = candidate
	reservation.ExperienceID = experienceID
	return
}

// CancelReservation releases a reservation's seats. Cancelling twice is a no-op.
func (s *CapacityService) CancelReservation(ctx context.Context, reservationID string) (reservation persistence.Reservation, err error) {
	if s == nil {
		return persistence.Reservation{}, fmt.Errorf("CapacityService is nil")
	}
	if s.reservations == nil {
		return persistence.Reservation{}, fmt.Errorf("reservation repository not configured")
	}
	if strings.TrimSpace(reservationID) == "" {
		return persistence.Reservation{}, invalidField("reservation_id", "reservation id is required")
	}

	logger := s.loggerWith(ctx, "CancelReservation", "reservation_id", reservationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation cancelled", "slot_id", reservation.SlotID)
	}()

	reservation, err = s.reservations.CancelReservation(ctx, reservationID)
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// SlotAvailability reports the derived occupancy of a single slot.
func (s *CapacityService) SlotAvailability(ctx context.Context, slotID string) (SlotWithAvailability, error) {
	if s == nil {
		return SlotWithAvailability{}, fmt.Errorf("CapacityService is nil")
	}
	if s.slots == nil {
		return SlotWithAvailability{}, fmt.Errorf("slot repository not configured")
	}
	if strings.TrimSpace(slotID) == "" {
		return SlotWithAvailability{}, invalidField("slot_id", "slot id is required")
	}

	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return SlotWithAvailability{}, mapRepoError(err)
	}
	annotated, err := annotateAvailability(ctx, s.reservations, []persistence.Slot{slot}, s.settings.Location())
	if err != nil {
		return SlotWithAvailability{}, err
	}
	return annotated[0], nil
}

// CancelSlot retires a slot. Rows are never deleted so reservations keep their slot.
func (s *CapacityService) CancelSlot(ctx context.Context, slotID string) (err error) {
	if s == nil {
		return fmt.Errorf("CapacityService is nil")
	}
	if s.slots == nil {
		return fmt.Errorf("slot repository not configured")
	}
	if strings.TrimSpace(slotID) == "" {
		return invalidField("slot_id", "slot id is required")
	}

	logger := s.loggerWith(ctx, "CancelSlot", "slot_id", slotID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "slot cancelled")
	}()

	if statusErr := s.slots.UpdateSlotStatus(ctx, slotID, persistence.SlotStatusCancelled); statusErr != nil {
		err = mapRepoError(statusErr)
	}
	return
}

func (s *CapacityService) checkResourceLock(ctx context.Context, slot persistence.Slot, start, end time.Time) error {
	experience, err := s.experiences.load(ctx, slot.ExperienceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !experience.Availability.ResourceLock {
		return nil
	}

	from := start.Add(-resourceLockLookaround)
	to := end.Add(resourceLockLookaround)
	neighbours, err := s.slots.ListSlots(ctx, persistence.SlotFilter{
		ExperienceID:    slot.ExperienceID,
		StartsAtOrAfter: &from,
		StartsBefore:    &to,
	})
	if err != nil {
		return mapRepoError(err)
	}

	windows := make([]capacity.Window, 0, len(neighbours))
	for _, other := range neighbours {
		windows = append(windows, capacity.Window{
			ID:           other.ID,
			Start:        other.Start,
			End:          other.End,
			BufferBefore: other.BufferBefore,
			BufferAfter:  other.BufferAfter,
		})
	}
	overlaps := capacity.DetectOverlaps(windows, capacity.Window{
		ID:           slot.ID,
		Start:        start,
		End:          end,
		BufferBefore: slot.BufferBefore,
		BufferAfter:  slot.BufferAfter,
	})
	if len(overlaps) > 0 {
		return fmt.Errorf("%w: slot would overlap slot %s", ErrConflict, overlaps[0].WithID)
	}
	return nil
}

// mapCapacityError turns allocator rejections raised inside a store
// transaction into *CapacityConflictError and defers everything else to
// mapRepoError.
func mapCapacityError(slotID string, err error) error {
	var below *capacity.BelowBookedError
	if errors.As(err, &below) {
		return &CapacityConflictError{SlotID: slotID, Scope: below.Scope, Capacity: below.Capacity, Booked: below.Booked}
	}
	var insufficient *capacity.InsufficientCapacityError
	if errors.As(err, &insufficient) {
		return &CapacityConflictError{
			SlotID:    slotID,
			Scope:     insufficient.Scope,
			Capacity:  insufficient.Remaining,
			Requested: insufficient.Requested,
		}
	}
	return mapRepoError(err)
}
