// Package middleware holds the HTTP middleware the API server mounts:
// actor extraction from identity headers and a Redis-backed rate
// limiter shared across instances.
package middleware
