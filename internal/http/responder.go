package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/example/experience-booking/internal/application"
)

var errBadRequestBody = errors.New("request body is not valid JSON")

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := err.Error(); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: codeForStatus(status), Message: message})
}

func (r responder) writeInvalid(ctx context.Context, w http.ResponseWriter, fields map[string]string) {
	r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
		ErrorCode: application.KindInvalidInput,
		Message:   "input is invalid",
		Errors:    fields,
	})
}

// handleServiceError maps the application error taxonomy onto HTTP statuses.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	kind := application.ErrorKind(err)
	switch kind {
	case application.KindInvalidInput:
		var vErr *application.ValidationError
		errors.As(err, &vErr)
		r.writeInvalid(ctx, w, vErr.FieldErrors)
	case application.KindNotFound:
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: kind, Message: "the requested resource was not found"})
	case application.KindConflict:
		response := errorResponse{ErrorCode: kind, Message: err.Error()}
		var capacityErr *application.CapacityConflictError
		if errors.As(err, &capacityErr) {
			response.Conflict = &conflictDTO{
				SlotID:    capacityErr.SlotID,
				Scope:     capacityErr.Scope,
				Capacity:  capacityErr.Capacity,
				Booked:    capacityErr.Booked,
				Requested: capacityErr.Requested,
			}
		}
		r.writeJSON(ctx, w, http.StatusConflict, response)
	case application.KindRateLimited:
		var limitErr *application.RateLimitError
		if errors.As(err, &limitErr) {
			seconds := int(math.Ceil(limitErr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
		}
		r.writeJSON(ctx, w, http.StatusTooManyRequests, errorResponse{ErrorCode: kind, Message: "too many requests"})
	case application.KindUpstreamUnavailable:
		r.loggerFor(ctx).ErrorContext(ctx, "upstream unavailable", "error", err)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{ErrorCode: kind, Message: "service temporarily unavailable"})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: application.KindUnexpected, Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return application.KindNotFound
	case http.StatusUnprocessableEntity:
		return application.KindInvalidInput
	default:
		return application.KindUnexpected
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflict  *conflictDTO      `json:"conflict,omitempty"`
}

type conflictDTO struct {
	SlotID    string `json:"slot_id"`
	Scope     string `json:"scope"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked,omitempty"`
	Requested int    `json:"requested,omitempty"`
}
