package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/deskforge/deskforge/pkg/permissions"
)

func testRateLimiter(t *testing.T, config *RateLimitConfig) *RateLimiter {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRateLimiter(client, config, logger)
}

func limitedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	return req.WithContext(WithActor(req.Context(), permissions.Actor{UserID: userID, Role: "staff"}))
}

func TestRateLimiterEnforcesLimit(t *testing.T) {
	rl := testRateLimiter(t, &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest("u-1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("u-1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterPerActor(t *testing.T) {
	rl := testRateLimiter(t, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("u-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// a different actor has its own window
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("u-2"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("u-1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiterSkipsAnonymous(t *testing.T) {
	rl := testRateLimiter(t, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// health checks carry no actor and are never limited
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
