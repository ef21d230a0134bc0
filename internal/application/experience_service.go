package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/example/experience-booking/internal/persistence"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ExperienceService stores experience configuration and keeps the catalog
// cache consistent with it.
type ExperienceService struct {
	experiences experienceSource
	settings    SiteSettings
	now         func() time.Time
	logger      *slog.Logger
}

// NewExperienceService constructs an experience service.
func NewExperienceService(repo persistence.ExperienceRepository, cache CatalogCache, settings SiteSettings, now func() time.Time) *ExperienceService {
	return NewExperienceServiceWithLogger(repo, cache, settings, now, nil)
}

// NewExperienceServiceWithLogger constructs an experience service with a specified logger.
func NewExperienceServiceWithLogger(repo persistence.ExperienceRepository, cache CatalogCache, settings SiteSettings, now func() time.Time, logger *slog.Logger) *ExperienceService {
	if now == nil {
		now = time.Now
	}
	logger = defaultLogger(logger)
	return &ExperienceService{
		experiences: experienceSource{repo: repo, cache: cache, logger: logger},
		settings:    settingsOrDefault(settings),
		now:         now,
		logger:      logger,
	}
}

func (s *ExperienceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ExperienceService", operation, attrs...)
}

// SaveExperience validates and stores an experience's configuration, then
// drops any cached copy so the next read sees the new catalog. When the cached
// copy cannot be dropped the write has still happened, but the error is
// returned so the caller retries instead of trusting a stale catalog.
func (s *ExperienceService) SaveExperience(ctx context.Context, input ExperienceInput) (saved persistence.Experience, err error) {
	if s == nil {
		return persistence.Experience{}, fmt.Errorf("ExperienceService is nil")
	}
	if s.experiences.repo == nil {
		return persistence.Experience{}, fmt.Errorf("experience repository not configured")
	}

	logger := s.loggerWith(ctx, "SaveExperience", "experience_id", input.ID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to save experience", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "experience saved")
	}()

	vErr := &ValidationError{}
	validateExperienceInput(input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.settings.Currency()
	}

	now := s.now().UTC()
	saved = persistence.Experience{
		ID:           strings.TrimSpace(input.ID),
		Title:        strings.TrimSpace(input.Title),
		BasePrice:    input.BasePrice,
		Currency:     currency,
		Availability: input.Availability,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if saved.Tickets, err = encodeEntries(input.Tickets); err != nil {
		err = invalidField("tickets", "tickets could not be encoded")
		return
	}
	if saved.Addons, err = encodeEntries(input.Addons); err != nil {
		err = invalidField("addons", "addons could not be encoded")
		return
	}
	if saved.PricingRules, err = encodeEntries(input.PricingRules); err != nil {
		err = invalidField("pricing_rules", "pricing rules could not be encoded")
		return
	}
	var recurrence any
	if len(input.Recurrence) > 0 {
		recurrence = input.Recurrence
	}
	if saved.Recurrence, err = encodeJSON(recurrence, "{}"); err != nil {
		err = invalidField("recurrence", "recurrence could not be encoded")
		return
	}

	if saveErr := s.experiences.repo.SaveExperience(ctx, saved); saveErr != nil {
		err = mapRepoError(saveErr)
		return
	}
	err = s.experiences.invalidate(ctx, saved.ID)
	return
}

// GetExperience returns an experience through the catalog cache.
func (s *ExperienceService) GetExperience(ctx context.Context, id string) (persistence.Experience, error) {
	if s == nil {
		return persistence.Experience{}, fmt.Errorf("ExperienceService is nil")
	}
	return s.experiences.load(ctx, strings.TrimSpace(id))
}

func validateExperienceInput(input ExperienceInput, vErr *ValidationError) {
	if strings.TrimSpace(input.ID) == "" {
		vErr.add("id", "experience id is required")
	}
	if input.BasePrice < 0 {
		vErr.add("base_price", "base price must not be negative")
	}
	if currency := strings.ToUpper(strings.TrimSpace(input.Currency)); currency != "" && !currencyPattern.MatchString(currency) {
		vErr.add("currency", "currency must be a three letter ISO code")
	}
	if input.Availability.Capacity < 0 {
		vErr.add("availability.capacity", "capacity must not be negative")
	}
	if input.Availability.BufferBefore < 0 || input.Availability.BufferAfter < 0 {
		vErr.add("availability.buffers", "buffers must not be negative")
	}
}

func encodeEntries(entries []map[string]any) ([]byte, error) {
	if len(entries) == 0 {
		return encodeJSON(nil, "[]")
	}
	return encodeJSON(entries, "[]")
}
