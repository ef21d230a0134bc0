package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/experience-booking/internal/application"
)

type availabilityService interface {
	ExpandPreview(ctx context.Context, params application.ExpandPreviewParams) (application.PreviewResult, error)
	Generate(ctx context.Context, params application.GenerateParams) (application.GenerateResult, error)
	EnsureMaterialized(ctx context.Context, experienceID, start, end string) (string, error)
	GetAvailability(ctx context.Context, query application.AvailabilityQuery) ([]application.SlotWithAvailability, error)
}

// AvailabilityHandler serves recurrence previews, slot generation and
// availability queries.
type AvailabilityHandler struct {
	service   availabilityService
	responder responder
	logger    *slog.Logger
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	base := defaultLogger(logger)
	return &AvailabilityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AvailabilityHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AvailabilityHandler", operation, attrs...)
}

func (h *AvailabilityHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	experienceID := chi.URLParam(r, "experienceID")
	var req recurrenceRequest
	if !decodeOptionalBody(r, &req) {
		h.log(r.Context(), "Preview", "experience_id", experienceID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode preview request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.ExpandPreview(r.Context(), application.ExpandPreviewParams{
		ExperienceID:    experienceID,
		Recurrence:      req.Recurrence,
		Defaults:        req.Availability.toDefaults(),
		MonthCap:        req.MonthCap,
		IncludeExisting: req.IncludeExisting,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, previewResponse{
		ExperienceID: result.ExperienceID,
		MonthCap:     result.MonthCap,
		RuleCount:    result.RuleCount,
		Occurrences:  toOccurrenceDTOs(result.Occurrences),
	})
}

func (h *AvailabilityHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	experienceID := chi.URLParam(r, "experienceID")
	var req recurrenceRequest
	if !decodeOptionalBody(r, &req) {
		h.log(r.Context(), "Generate", "experience_id", experienceID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode generate request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Generate(r.Context(), application.GenerateParams{
		ExperienceID:    experienceID,
		Recurrence:      req.Recurrence,
		Defaults:        req.Availability.toDefaults(),
		ReplaceExisting: req.ReplaceExisting,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, generateResponse{
		Created:   result.Created,
		Updated:   result.Updated,
		Skipped:   result.Skipped,
		Conflicts: result.Conflicts,
		Preview:   toOccurrenceDTOs(result.Preview),
	})
}

func (h *AvailabilityHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	experienceID := chi.URLParam(r, "experienceID")
	var req timeRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Ensure", "experience_id", experienceID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode ensure request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	slotID, err := h.service.EnsureMaterialized(r.Context(), experienceID, req.Start, req.End)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, ensureResponse{SlotID: slotID})
}

func (h *AvailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	slots, err := h.service.GetAvailability(r.Context(), application.AvailabilityQuery{
		ExperienceID: strings.TrimSpace(query.Get("experience_id")),
		StartDate:    query.Get("start"),
		EndDate:      query.Get("end"),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "List").DebugContext(r.Context(), "availability listed", "result_count", len(slots))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{Slots: toAvailableSlotDTOs(slots)})
}

// decodeOptionalBody accepts an empty body as the zero request.
func decodeOptionalBody(r *http.Request, target any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(target)
	return err == nil || errors.Is(err, io.EOF)
}

type recurrenceRequest struct {
	Recurrence      map[string]any           `json:"recurrence"`
	Availability    *availabilityDefaultsDTO `json:"availability"`
	MonthCap        int                      `json:"month_cap"`
	IncludeExisting bool                     `json:"include_existing"`
	ReplaceExisting bool                     `json:"replace_existing"`
}

type timeRangeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type previewResponse struct {
	ExperienceID string          `json:"experience_id"`
	MonthCap     int             `json:"month_cap"`
	RuleCount    int             `json:"rule_count"`
	Occurrences  []occurrenceDTO `json:"occurrences"`
}

type generateResponse struct {
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Skipped   int             `json:"skipped"`
	Conflicts int             `json:"conflicts"`
	Preview   []occurrenceDTO `json:"preview"`
}

type ensureResponse struct {
	SlotID string `json:"slot_id"`
}

type availabilityResponse struct {
	Slots []slotDTO `json:"slots"`
}
