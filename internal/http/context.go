package http

import (
	"context"
	"log/slog"

	"github.com/example/experience-booking/internal/logging"
)

type contextKey string

const actorContextKey contextKey = "actor"

// ContextWithLogger attaches the request-scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request-scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// ContextWithActor records who is making the request for rate limiting.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext extracts the actor resolved by the request logger.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorContextKey).(string)
	return actor, ok && actor != ""
}
