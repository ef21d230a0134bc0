package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/experience-booking/internal/ratelimit"
)

type limiterStub struct {
	decision ratelimit.Decision
	err      error
	keys     []string
}

func (l *limiterStub) Allow(_ context.Context, key string) (ratelimit.Decision, error) {
	l.keys = append(l.keys, key)
	return l.decision, l.err
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("rejects with 429 and Retry-After", func(t *testing.T) {
		t.Parallel()
		limiter := &limiterStub{decision: ratelimit.Decision{Limit: 3, RetryAfter: 1500 * time.Millisecond}}
		var called bool
		handler := RateLimit(limiter, nil)(okHandler(&called))

		req := httptest.NewRequest(http.MethodPatch, "/slots/s/time", nil)
		req.Header.Set(ActorHeader, "agent-7")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
		assert.Equal(t, "2", recorder.Header().Get("Retry-After"))
		assert.Equal(t, "3", recorder.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"actor:agent-7"}, limiter.keys)
	})

	t.Run("allows within budget", func(t *testing.T) {
		t.Parallel()
		limiter := &limiterStub{decision: ratelimit.Decision{Allowed: true, Limit: 3, Remaining: 2}}
		var called bool
		handler := RateLimit(limiter, nil)(okHandler(&called))

		req := httptest.NewRequest(http.MethodPatch, "/slots/s/time", nil)
		req.RemoteAddr = "198.51.100.4:5123"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		assert.True(t, called)
		assert.Equal(t, "2", recorder.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, []string{"addr:198.51.100.4"}, limiter.keys)
	})

	t.Run("fails open when the limiter errors", func(t *testing.T) {
		t.Parallel()
		limiter := &limiterStub{err: errors.New("redis down")}
		var called bool
		handler := RateLimit(limiter, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))(okHandler(&called))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPatch, "/", nil))
		assert.True(t, called)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("limits real requests through the memory limiter", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.NewMemoryLimiter(2, time.Minute, nil)
		var called bool
		handler := RequestLogger(nil)(RateLimit(limiter, nil)(okHandler(&called)))

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/slots/s/cancel", nil)
			req.Header.Set(ActorHeader, "same")
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)
			codes = append(codes, recorder.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())
		require.NotNil(t, logger)
		actor, ok := ActorFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "actor:ops", actor)
		logger.Info("inside")
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/availability", nil)
	req.Header.Set(ActorHeader, "ops")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	output := buf.String()
	assert.True(t, strings.Contains(output, "path=/availability"), output)
	assert.Contains(t, output, "status=202")
}
