package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/experience-booking/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// Stable error kind labels shared by logs and the HTTP layer.
const (
	KindInvalidInput        = "invalid_input"
	KindNotFound            = "not_found"
	KindConflict            = "conflict"
	KindRateLimited         = "rate_limited"
	KindUpstreamUnavailable = "upstream_unavailable"
	KindUnexpected          = "unexpected"
)

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindInvalidInput
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	}
	return KindUnexpected
}
