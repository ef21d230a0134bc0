package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/experience-booking/internal/application"
	"github.com/example/experience-booking/internal/persistence"
)

type capacityService interface {
	UpdateCapacity(ctx context.Context, params application.UpdateCapacityParams) (application.SlotWithAvailability, error)
	MoveSlot(ctx context.Context, params application.MoveSlotParams) (persistence.Slot, error)
	Reserve(ctx context.Context, params application.ReserveParams) (persistence.Reservation, error)
	CancelReservation(ctx context.Context, reservationID string) (persistence.Reservation, error)
	SlotAvailability(ctx context.Context, slotID string) (application.SlotWithAvailability, error)
	CancelSlot(ctx context.Context, slotID string) error
}

// SlotHandler serves slot mutations and reservations.
type SlotHandler struct {
	service   capacityService
	responder responder
	logger    *slog.Logger
}

func NewSlotHandler(service capacityService, logger *slog.Logger) *SlotHandler {
	base := defaultLogger(logger)
	return &SlotHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SlotHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SlotHandler", operation, attrs...)
}

func (h *SlotHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slot, err := h.service.SlotAvailability(r.Context(), chi.URLParam(r, "slotID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotResponse{Slot: toAvailableSlotDTO(slot)})
}

func (h *SlotHandler) Move(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slotID := chi.URLParam(r, "slotID")
	var req timeRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Move", "slot_id", slotID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode move request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	slot, err := h.service.MoveSlot(r.Context(), application.MoveSlotParams{SlotID: slotID, Start: req.Start, End: req.End})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotResponse{Slot: toSlotDTO(slot)})
}

func (h *SlotHandler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slotID := chi.URLParam(r, "slotID")
	var req capacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "UpdateCapacity", "slot_id", slotID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode capacity request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	slot, err := h.service.UpdateCapacity(r.Context(), application.UpdateCapacityParams{
		SlotID:  slotID,
		Total:   req.CapacityTotal,
		PerType: req.CapacityPerType,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotResponse{Slot: toAvailableSlotDTO(slot)})
}

func (h *SlotHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.service.CancelSlot(r.Context(), chi.URLParam(r, "slotID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SlotHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slotID := chi.URLParam(r, "slotID")
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Reserve", "slot_id", slotID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode reservation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	reservation, err := h.service.Reserve(r.Context(), application.ReserveParams{
		SlotID:    slotID,
		Pax:       req.Pax,
		PaxByType: req.PaxByType,
		Status:    persistence.ReservationStatus(req.Status),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, reservationResponse{Reservation: toReservationDTO(reservation)})
}

func (h *SlotHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservation, err := h.service.CancelReservation(r.Context(), chi.URLParam(r, "reservationID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(reservation)})
}

type capacityRequest struct {
	CapacityTotal   int            `json:"capacity_total"`
	CapacityPerType map[string]int `json:"capacity_per_type"`
}

type reservationRequest struct {
	Pax       int            `json:"pax"`
	PaxByType map[string]int `json:"pax_by_type"`
	Status    string         `json:"status"`
}

type slotResponse struct {
	Slot slotDTO `json:"slot"`
}

type reservationResponse struct {
	Reservation reservationDTO `json:"reservation"`
}
