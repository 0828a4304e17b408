// Package webhooks delivers record events to per-app HTTP
// subscriptions. Dispatch is fire-and-forget: mutations never wait on
// or fail because of webhook outcomes, and every attempted delivery
// leaves an audit log row.
package webhooks
