package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/deskforge/deskforge/pkg/httputil"
)

// RateLimitConfig defines rate limiting behavior
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig allows 300 requests per minute per actor
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 300,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter is a Redis-backed fixed-window limiter keyed by actor.
// Redis keeps the counters shared across instances; on Redis errors
// it fails open so a cache outage never takes the API down with it.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	logger *logrus.Logger
}

func NewRateLimiter(redisClient *redis.Client, config *RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{redis: redisClient, config: config, logger: logger}
}

// Middleware enforces the limit per actor. Requests without an actor
// (health checks, metrics) pass through untouched.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("deskforge:ratelimit:%s", actor.UserID)
		pipe := rl.redis.Pipeline()
		incr := pipe.Incr(r.Context(), key)
		pipe.Expire(r.Context(), key, rl.config.WindowDuration)
		if _, err := pipe.Exec(r.Context()); err != nil {
			rl.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if incr.Val() > int64(rl.config.RequestsPerWindow) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.config.WindowDuration.Seconds())))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
