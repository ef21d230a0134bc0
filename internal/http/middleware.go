package http

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/example/experience-booking/internal/application"
	"github.com/example/experience-booking/internal/ratelimit"
)

// ActorHeader identifies the caller for rate limiting. Requests without it
// are keyed by client address.
const ActorHeader = "X-Actor-ID"

// RequestLogger derives a request-scoped logger and resolves the actor.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			ctx = ContextWithActor(ctx, resolveActor(r))
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", ww.Status(), "duration", time.Since(start))
		})
	}
}

// RateLimit rejects requests once the actor exhausted its budget. Limiter
// failures are logged and the request is let through.
func RateLimit(limiter ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := ActorFromContext(ctx)
			if !ok {
				actor = resolveActor(r)
			}

			decision, err := limiter.Allow(ctx, actor)
			if err != nil {
				responder.loggerFor(ctx).WarnContext(ctx, "rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				responder.handleServiceError(ctx, w, &application.RateLimitError{RetryAfter: decision.RetryAfter})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveActor(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
		return "actor:" + actor
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
