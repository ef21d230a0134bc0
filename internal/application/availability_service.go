package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/experience-booking/internal/capacity"
	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/recurrence"
)

// DefaultPreviewMonthCap bounds previews when the caller does not.
const DefaultPreviewMonthCap = 12

// maxAvailabilitySpanYears is the widest range GetAvailability answers.
const maxAvailabilitySpanYears = 1

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// AvailabilityDeps wires the collaborators of an AvailabilityService.
type AvailabilityDeps struct {
	Slots        persistence.SlotRepository
	Reservations persistence.ReservationRepository
	Experiences  persistence.ExperienceRepository
	Cache        CatalogCache
	Settings     SiteSettings
	IDGenerator  func() string
	Now          func() time.Time
	MonthCap     int
}

// AvailabilityService projects recurrences into occurrences, materializes
// them into slots and answers availability queries.
type AvailabilityService struct {
	slots        persistence.SlotRepository
	reservations persistence.ReservationRepository
	experiences  experienceSource
	settings     SiteSettings
	idGenerator  func() string
	now          func() time.Time
	monthCap     int
	logger       *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(deps AvailabilityDeps) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(deps, nil)
}

// NewAvailabilityServiceWithLogger constructs an availability service with a specified logger.
func NewAvailabilityServiceWithLogger(deps AvailabilityDeps, logger *slog.Logger) *AvailabilityService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MonthCap <= 0 {
		deps.MonthCap = DefaultPreviewMonthCap
	}
	logger = defaultLogger(logger)
	return &AvailabilityService{
		slots:        deps.Slots,
		reservations: deps.Reservations,
		experiences:  experienceSource{repo: deps.Experiences, cache: deps.Cache, logger: logger},
		settings:     settingsOrDefault(deps.Settings),
		idGenerator:  deps.IDGenerator,
		now:          deps.Now,
		monthCap:     deps.MonthCap,
		logger:       logger,
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// Preview projects rules into virtual occurrences without touching the store.
// Occurrences already materialized in existing are dropped unless
// opts.IncludeExisting is set, in which case they carry the slot id.
func (s *AvailabilityService) Preview(ctx context.Context, experienceID string, rules []recurrence.Rule, existing []persistence.Slot, opts PreviewOptions, monthCap int) []Occurrence {
	if monthCap <= 0 {
		monthCap = s.monthCap
	}
	engine := recurrence.NewEngine(s.settings.Location())
	projected := engine.ProjectAll(rules, recurrence.ProjectOptions{From: s.now(), MonthCap: monthCap})

	occurrences := annotateOccurrences(experienceID, projected, existing, opts.IncludeExisting)
	s.loggerWith(ctx, "Preview", "experience_id", experienceID).
		DebugContext(ctx, "recurrence projected", "rules", len(rules), "occurrences", len(occurrences))
	return occurrences
}

// ExpandPreview sanitizes a recurrence payload, or the experience's stored
// one, and previews it. Failing slot lookups degrade to an empty result.
func (s *AvailabilityService) ExpandPreview(ctx context.Context, params ExpandPreviewParams) (result PreviewResult, err error) {
	if s == nil {
		return PreviewResult{}, fmt.Errorf("AvailabilityService is nil")
	}
	monthCap := params.MonthCap
	if monthCap <= 0 {
		monthCap = s.monthCap
	}
	result = PreviewResult{ExperienceID: params.ExperienceID, MonthCap: monthCap, Occurrences: []Occurrence{}}

	logger := s.loggerWith(ctx, "ExpandPreview", "experience_id", params.ExperienceID, "month_cap", monthCap)

	rules, err := s.resolveRules(ctx, params.ExperienceID, params.Recurrence, params.Defaults)
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) {
			logger.WarnContext(ctx, "catalog lookup failed, previewing nothing", "error", err)
			return result, nil
		}
		return PreviewResult{}, err
	}
	result.RuleCount = len(rules)
	if len(rules) == 0 {
		return result, nil
	}

	existing, err := s.existingSlots(ctx, params.ExperienceID, monthCap)
	if err != nil {
		logger.WarnContext(ctx, "slot lookup failed, previewing nothing", "error", err)
		return result, nil
	}

	result.Occurrences = s.Preview(ctx, params.ExperienceID, rules, existing, PreviewOptions{IncludeExisting: params.IncludeExisting}, monthCap)
	return result, nil
}

// Generate materializes the full rule window into slots. Existing slots are
// skipped unless ReplaceExisting is set, so a rerun is a no-op.
func (s *AvailabilityService) Generate(ctx context.Context, params GenerateParams) (result GenerateResult, err error) {
	if s == nil {
		return GenerateResult{}, fmt.Errorf("AvailabilityService is nil")
	}
	if s.slots == nil {
		return GenerateResult{}, fmt.Errorf("slot repository not configured")
	}

	logger := s.loggerWith(ctx, "Generate",
		"experience_id", params.ExperienceID,
		"replace_existing", params.ReplaceExisting,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate slots", "error", err, "error_kind", ErrorKind(err),
				"created", result.Created, "updated", result.Updated)
			return
		}
		logger.InfoContext(ctx, "slots generated",
			"created", result.Created, "updated", result.Updated,
			"skipped", result.Skipped, "conflicts", result.Conflicts)
	}()

	var rules []recurrence.Rule
	rules, err = s.resolveRules(ctx, params.ExperienceID, params.Recurrence, params.Defaults)
	if err != nil {
		return
	}
	if len(rules) == 0 {
		err = invalidField("recurrence", "recurrence needs at least one weekday and one time slot")
		return
	}

	engine := recurrence.NewEngine(s.settings.Location())
	projected := engine.ProjectAll(rules, recurrence.ProjectOptions{From: s.now()})

	for _, occurrence := range annotateOccurrences(params.ExperienceID, projected, nil, false) {
		if err = ctx.Err(); err != nil {
			return
		}

		slot := persistence.Slot{
			ID:            s.idGenerator(),
			ExperienceID:  params.ExperienceID,
			Start:         occurrence.Start,
			End:           occurrence.End,
			CapacityTotal: occurrence.Capacity,
			Status:        persistence.SlotStatusActive,
			BufferBefore:  occurrence.BufferBefore,
			BufferAfter:   occurrence.BufferAfter,
		}

		if !params.ReplaceExisting {
			insertErr := s.slots.InsertSlot(ctx, slot)
			switch {
			case insertErr == nil:
				result.Created++
				occurrence.SlotID = slot.ID
			case errors.Is(insertErr, persistence.ErrDuplicate):
				result.Skipped++
				if occurrence.SlotID, err = s.existingSlotID(ctx, slot); err != nil {
					return
				}
			default:
				err = mapRepoError(insertErr)
				return
			}
			result.Preview = append(result.Preview, occurrence)
			continue
		}

		guard := func(booked capacity.Booked) error {
			return capacity.CheckCapacityUpdate(slot.CapacityTotal, nil, booked)
		}
		slotID, created, upsertErr := s.slots.UpsertSlot(ctx, slot, guard)
		switch {
		case upsertErr == nil && created:
			result.Created++
			occurrence.SlotID = slotID
		case upsertErr == nil:
			result.Updated++
			occurrence.SlotID = slotID
		case errors.Is(upsertErr, capacity.ErrCapacityBelowBooked):
			result.Conflicts++
			logger.WarnContext(ctx, "kept slot capacity above bookings",
				"start", slot.Start, "capacity", slot.CapacityTotal, "error", upsertErr)
			if occurrence.SlotID, err = s.existingSlotID(ctx, slot); err != nil {
				return
			}
		default:
			err = mapRepoError(upsertErr)
			return
		}
		result.Preview = append(result.Preview, occurrence)
	}
	return
}

func (s *AvailabilityService) existingSlotID(ctx context.Context, slot persistence.Slot) (string, error) {
	existing, err := s.slots.FindSlotByIdentity(ctx, slot.ExperienceID, slot.Start, slot.End)
	if err != nil {
		return "", mapRepoError(err)
	}
	return existing.ID, nil
}

// EnsureMaterialized returns the id of the slot for a virtual occurrence,
// creating it when needed. Concurrent callers converge on one row.
func (s *AvailabilityService) EnsureMaterialized(ctx context.Context, experienceID, startValue, endValue string) (slotID string, err error) {
	if s == nil {
		return "", fmt.Errorf("AvailabilityService is nil")
	}
	if s.slots == nil {
		return "", fmt.Errorf("slot repository not configured")
	}

	logger := s.loggerWith(ctx, "EnsureMaterialized", "experience_id", experienceID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to materialize slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("slot_id", slotID).DebugContext(ctx, "slot materialized")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(experienceID) == "" {
		vErr.add("experience_id", "experience id is required")
	}
	start, end := parseRange(startValue, endValue, s.settings.Location(), vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	existing, findErr := s.slots.FindSlotByIdentity(ctx, experienceID, start, end)
	if findErr == nil {
		slotID = existing.ID
		return
	}
	if !errors.Is(findErr, persistence.ErrNotFound) {
		err = mapRepoError(findErr)
		return
	}

	var experience persistence.Experience
	experience, err = s.experiences.load(ctx, experienceID)
	if err != nil {
		return
	}

	occurrence, ok := s.matchOccurrence(experience, start, end)
	if !ok {
		err = fmt.Errorf("%w: %s is not an occurrence of experience %s",
			ErrNotFound, start.In(s.settings.Location()).Format(time.RFC3339), experienceID)
		return
	}

	slot := persistence.Slot{
		ID:            s.idGenerator(),
		ExperienceID:  experienceID,
		Start:         start,
		End:           end,
		CapacityTotal: occurrence.Capacity,
		Status:        persistence.SlotStatusActive,
		BufferBefore:  occurrence.BufferBefore,
		BufferAfter:   occurrence.BufferAfter,
	}

	insertErr := s.slots.InsertSlot(ctx, slot)
	switch {
	case insertErr == nil:
		slotID = slot.ID
	case errors.Is(insertErr, persistence.ErrDuplicate):
		// Another request materialized the same occurrence first.
		existing, findErr = s.slots.FindSlotByIdentity(ctx, experienceID, start, end)
		if findErr != nil {
			err = mapRepoError(findErr)
			return
		}
		slotID = existing.ID
	default:
		err = mapRepoError(insertErr)
	}
	return
}

// GetAvailability lists the active slots starting within an inclusive local
// date range together with their remaining capacity.
func (s *AvailabilityService) GetAvailability(ctx context.Context, query AvailabilityQuery) (slots []SlotWithAvailability, err error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	if s.slots == nil {
		return nil, fmt.Errorf("slot repository not configured")
	}

	loc := s.settings.Location()
	from, to, vErr := parseDateRange(query.StartDate, query.EndDate, loc)
	if vErr.HasErrors() {
		return nil, vErr
	}

	logger := s.loggerWith(ctx, "GetAvailability",
		"experience_id", query.ExperienceID,
		"start_date", query.StartDate,
		"end_date", query.EndDate,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to load availability", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var materialized []persistence.Slot
	materialized, err = s.slots.ListSlots(ctx, persistence.SlotFilter{
		ExperienceID:    query.ExperienceID,
		StartsAtOrAfter: &from,
		StartsBefore:    &to,
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}

	slots, err = annotateAvailability(ctx, s.reservations, materialized, loc)
	return
}

func (s *AvailabilityService) resolveRules(ctx context.Context, experienceID string, raw map[string]any, defaults *recurrence.Defaults) ([]recurrence.Rule, error) {
	if strings.TrimSpace(experienceID) == "" {
		return nil, invalidField("experience_id", "experience id is required")
	}

	if raw == nil || defaults == nil {
		experience, err := s.experiences.load(ctx, experienceID)
		switch {
		case err == nil:
			if raw == nil {
				raw = decodeRecurrence(experience.Recurrence)
			}
			if defaults == nil {
				stored := availabilityDefaults(experience)
				defaults = &stored
			}
		case raw != nil && errors.Is(err, ErrNotFound):
			// Unsaved experiences can still be previewed with explicit input.
			defaults = &recurrence.Defaults{}
		default:
			return nil, err
		}
	}

	definition := recurrence.Sanitize(raw)
	return recurrence.BuildRules(definition, *defaults, s.now(), s.settings.Location()), nil
}

func (s *AvailabilityService) existingSlots(ctx context.Context, experienceID string, monthCap int) ([]persistence.Slot, error) {
	if s.slots == nil {
		return nil, nil
	}
	loc := s.settings.Location()
	now := s.now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, monthCap, 1)
	return s.slots.ListSlots(ctx, persistence.SlotFilter{
		ExperienceID:     experienceID,
		StartsAtOrAfter:  &from,
		StartsBefore:     &to,
		IncludeCancelled: true,
	})
}

// matchOccurrence finds the projected occurrence of the experience's stored
// recurrence that starts and ends exactly at start and end, inside its rule
// window. Capacity and buffers come from that occurrence.
func (s *AvailabilityService) matchOccurrence(experience persistence.Experience, start, end time.Time) (recurrence.Occurrence, bool) {
	loc := s.settings.Location()
	definition := recurrence.Sanitize(decodeRecurrence(experience.Recurrence))
	rules := recurrence.BuildRules(definition, availabilityDefaults(experience), s.now(), loc)
	if len(rules) == 0 {
		return recurrence.Occurrence{}, false
	}

	engine := recurrence.NewEngine(loc)
	day := start.In(loc)
	for _, occurrence := range engine.ProjectAll(rules, recurrence.ProjectOptions{RangeStart: &day, RangeEnd: &day}) {
		if occurrence.Start.Equal(start) && occurrence.End.Equal(end) {
			return occurrence, true
		}
	}
	return recurrence.Occurrence{}, false
}

func annotateOccurrences(experienceID string, projected []recurrence.Occurrence, existing []persistence.Slot, includeExisting bool) []Occurrence {
	type key struct{ start, end int64 }
	materialized := make(map[key]string, len(existing))
	for _, slot := range existing {
		if slot.ExperienceID != "" && slot.ExperienceID != experienceID {
			continue
		}
		materialized[key{slot.Start.UnixNano(), slot.End.UnixNano()}] = slot.ID
	}

	seen := make(map[key]struct{}, len(projected))
	occurrences := make([]Occurrence, 0, len(projected))
	for _, occurrence := range projected {
		k := key{occurrence.Start.UnixNano(), occurrence.End.UnixNano()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		slotID, exists := materialized[k]
		if exists && !includeExisting {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			ExperienceID: experienceID,
			RuleIndex:    occurrence.RuleIndex,
			Start:        occurrence.Start.UTC(),
			End:          occurrence.End.UTC(),
			LocalStart:   occurrence.Start,
			Capacity:     occurrence.Capacity,
			BufferBefore: occurrence.BufferBefore,
			BufferAfter:  occurrence.BufferAfter,
			SlotID:       slotID,
		})
	}
	return occurrences
}

func annotateAvailability(ctx context.Context, reservations persistence.ReservationRepository, slots []persistence.Slot, loc *time.Location) ([]SlotWithAvailability, error) {
	annotated := make([]SlotWithAvailability, 0, len(slots))
	if len(slots) == 0 {
		return annotated, nil
	}

	bySlot := make(map[string][]persistence.Reservation, len(slots))
	if reservations != nil {
		ids := make([]string, 0, len(slots))
		for _, slot := range slots {
			ids = append(ids, slot.ID)
		}
		held, err := reservations.ListReservations(ctx, ids)
		if err != nil {
			return nil, mapRepoError(err)
		}
		for _, reservation := range held {
			bySlot[reservation.SlotID] = append(bySlot[reservation.SlotID], reservation)
		}
	}

	for _, slot := range slots {
		booked := persistence.TallyReservations(bySlot[slot.ID])
		annotated = append(annotated, SlotWithAvailability{
			Slot:         slot,
			LocalStart:   slot.Start.In(loc),
			LocalEnd:     slot.End.In(loc),
			Availability: capacity.Evaluate(slot.CapacityTotal, slot.CapacityPerType, booked),
		})
	}
	return annotated, nil
}

// parseDateRange validates an inclusive YYYY-MM-DD range and returns the
// half-open [from, to) instants in loc.
func parseDateRange(startValue, endValue string, loc *time.Location) (time.Time, time.Time, *ValidationError) {
	vErr := &ValidationError{}
	start, startOK := parseLocalDate("start_date", startValue, loc, vErr)
	end, endOK := parseLocalDate("end_date", endValue, loc, vErr)
	if !startOK || !endOK {
		return time.Time{}, time.Time{}, vErr
	}
	if end.Before(start) {
		vErr.add("end_date", "end date must not be before start date")
		return time.Time{}, time.Time{}, vErr
	}
	if end.After(start.AddDate(maxAvailabilitySpanYears, 0, 0)) {
		vErr.add("end_date", "date range must not exceed one year")
		return time.Time{}, time.Time{}, vErr
	}
	return start, end.AddDate(0, 0, 1), vErr
}

func parseLocalDate(field, value string, loc *time.Location, vErr *ValidationError) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		vErr.add(field, "date is required")
		return time.Time{}, false
	}
	if !isoDatePattern.MatchString(value) {
		vErr.add(field, "date must use the YYYY-MM-DD format")
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		vErr.add(field, "date is not a valid calendar day")
		return time.Time{}, false
	}
	return parsed, true
}

var localInstantLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// parseInstant accepts RFC 3339 timestamps and offset-less wall-clock times,
// which are read in loc.
func parseInstant(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), true
	}
	for _, layout := range localInstantLayouts {
		if parsed, err := time.ParseInLocation(layout, value, loc); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseRange(startValue, endValue string, loc *time.Location, vErr *ValidationError) (time.Time, time.Time) {
	start, startOK := parseInstant(startValue, loc)
	if !startOK {
		vErr.add("start", "start must be an ISO 8601 date-time")
	}
	end, endOK := parseInstant(endValue, loc)
	if !endOK {
		vErr.add("end", "end must be an ISO 8601 date-time")
	}
	if startOK && endOK && !end.After(start) {
		vErr.add("end", "end must be after start")
	}
	return start, end
}

// mapRepoError converts persistence failures into application errors.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: a slot already exists at that time", ErrConflict)
	case errors.Is(err, persistence.ErrConstraintViolation):
		return invalidField("slot", "slot violates a storage constraint")
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return invalidField("slot_id", "referenced slot does not exist")
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
