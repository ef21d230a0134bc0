package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/pricing"
)

// PricingService prices booking attempts against an experience's catalog.
type PricingService struct {
	experiences experienceSource
	slots       persistence.SlotRepository
	settings    SiteSettings
	logger      *slog.Logger
}

// NewPricingService constructs a pricing service.
func NewPricingService(experiences persistence.ExperienceRepository, slots persistence.SlotRepository, cache CatalogCache, settings SiteSettings) *PricingService {
	return NewPricingServiceWithLogger(experiences, slots, cache, settings, nil)
}

// NewPricingServiceWithLogger constructs a pricing service with a specified logger.
func NewPricingServiceWithLogger(experiences persistence.ExperienceRepository, slots persistence.SlotRepository, cache CatalogCache, settings SiteSettings, logger *slog.Logger) *PricingService {
	logger = defaultLogger(logger)
	return &PricingService{
		experiences: experienceSource{repo: experiences, cache: cache, logger: logger},
		slots:       slots,
		settings:    settingsOrDefault(settings),
		logger:      logger,
	}
}

func (s *PricingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PricingService", operation, attrs...)
}

// ComputeBreakdown prices the requested tickets and addons for a slot. When
// SlotID is set the slot's stored start is used and must belong to the
// experience.
func (s *PricingService) ComputeBreakdown(ctx context.Context, params BreakdownParams) (breakdown pricing.Breakdown, err error) {
	if s == nil {
		return pricing.Breakdown{}, fmt.Errorf("PricingService is nil")
	}

	logger := s.loggerWith(ctx, "ComputeBreakdown", "experience_id", params.ExperienceID, "slot_id", params.SlotID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to compute breakdown", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "breakdown computed", "total", breakdown.Total, "adjustments", len(breakdown.Adjustments))
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.ExperienceID) == "" {
		vErr.add("experience_id", "experience id is required")
	}
	if params.SlotID == "" && params.SlotStart.IsZero() {
		vErr.add("slot_start", "slot id or slot start is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	start := params.SlotStart
	if params.SlotID != "" {
		if s.slots == nil {
			err = fmt.Errorf("slot repository not configured")
			return
		}
		var slot persistence.Slot
		slot, err = s.slots.GetSlot(ctx, params.SlotID)
		if err != nil {
			err = mapRepoError(err)
			return
		}
		if slot.ExperienceID != params.ExperienceID {
			err = invalidField("slot_id", "slot does not belong to the experience")
			return
		}
		start = slot.Start
	}

	var experience persistence.Experience
	experience, err = s.experiences.load(ctx, params.ExperienceID)
	if err != nil {
		return
	}

	catalog := buildCatalog(experience, s.settings)
	breakdown = pricing.ComputeBreakdown(catalog, start, s.settings.Location(), sanitizeQuantities(params.Tickets), sanitizeQuantities(params.Addons))
	return
}

// sanitizeQuantities keys quantities by their sanitized slug so they line up
// with the normalized catalog. Blank slugs and non-positive quantities are
// dropped rather than rejected.
func sanitizeQuantities(quantities map[string]int) map[string]int {
	clean := make(map[string]int, len(quantities))
	for slug, quantity := range quantities {
		if key := pricing.SanitizeSlug(slug); key != "" && quantity > 0 {
			clean[key] += quantity
		}
	}
	return clean
}
