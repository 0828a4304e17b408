// Package observability provides structured logging, Prometheus metrics,
// health probes, panic recovery, and graceful shutdown for the platform.
//
// Logging is JSON over stdlib slog. Every swallowed failure in the webhook
// dispatch path lands here as an operational log line, never as a caller
// error. Metrics cover the HTTP surface, permission evaluation, webhook
// deliveries, storage operations, and the permission cache.
package observability
