package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/experience-booking/internal/application"
	"github.com/example/experience-booking/internal/persistence"
	"github.com/example/experience-booking/internal/pricing"
)

type pricingService interface {
	ComputeBreakdown(ctx context.Context, params application.BreakdownParams) (pricing.Breakdown, error)
}

type experienceService interface {
	SaveExperience(ctx context.Context, input application.ExperienceInput) (persistence.Experience, error)
	GetExperience(ctx context.Context, id string) (persistence.Experience, error)
}

// CatalogHandler serves experience configuration and price breakdowns.
type CatalogHandler struct {
	pricing     pricingService
	experiences experienceService
	responder   responder
	logger      *slog.Logger
}

func NewCatalogHandler(pricing pricingService, experiences experienceService, logger *slog.Logger) *CatalogHandler {
	base := defaultLogger(logger)
	return &CatalogHandler{pricing: pricing, experiences: experiences, responder: newResponder(base), logger: base}
}

func (h *CatalogHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CatalogHandler", operation, attrs...)
}

func (h *CatalogHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.pricing == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	experienceID := chi.URLParam(r, "experienceID")
	var req breakdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Breakdown", "experience_id", experienceID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode breakdown request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	var slotStart time.Time
	if value := strings.TrimSpace(req.SlotStart); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			h.responder.writeInvalid(r.Context(), w, map[string]string{"slot_start": "slot start must be an RFC 3339 timestamp"})
			return
		}
		slotStart = parsed
	}

	breakdown, err := h.pricing.ComputeBreakdown(r.Context(), application.BreakdownParams{
		ExperienceID: experienceID,
		SlotID:       req.SlotID,
		SlotStart:    slotStart,
		Tickets:      req.Tickets,
		Addons:       req.Addons,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, breakdownResponse{Breakdown: toBreakdownDTO(breakdown)})
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.experiences == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	experience, err := h.experiences.GetExperience(r.Context(), chi.URLParam(r, "experienceID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, experienceResponse{Experience: toExperienceDTO(experience)})
}

func (h *CatalogHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.experiences == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	experienceID := chi.URLParam(r, "experienceID")
	var req experienceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Save", "experience_id", experienceID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode experience", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	experience, err := h.experiences.SaveExperience(r.Context(), req.toInput(experienceID))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, experienceResponse{Experience: toExperienceDTO(experience)})
}

type breakdownRequest struct {
	SlotID    string         `json:"slot_id"`
	SlotStart string         `json:"slot_start"`
	Tickets   map[string]int `json:"tickets"`
	Addons    map[string]int `json:"addons"`
}

type experienceRequest struct {
	Title        string                  `json:"title"`
	BasePrice    float64                 `json:"base_price"`
	Currency     string                  `json:"currency"`
	Tickets      []map[string]any        `json:"tickets"`
	Addons       []map[string]any        `json:"addons"`
	PricingRules []map[string]any        `json:"pricing_rules"`
	Recurrence   map[string]any          `json:"recurrence"`
	Availability availabilityDefaultsDTO `json:"availability"`
}

func (r experienceRequest) toInput(id string) application.ExperienceInput {
	return application.ExperienceInput{
		ID:           id,
		Title:        r.Title,
		BasePrice:    r.BasePrice,
		Currency:     r.Currency,
		Tickets:      r.Tickets,
		Addons:       r.Addons,
		PricingRules: r.PricingRules,
		Recurrence:   r.Recurrence,
		Availability: persistence.AvailabilityDefaults(r.Availability),
	}
}

type breakdownResponse struct {
	Breakdown breakdownDTO `json:"breakdown"`
}

type experienceResponse struct {
	Experience experienceDTO `json:"experience"`
}
