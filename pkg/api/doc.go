// Package api exposes the platform over HTTP: app registry, records,
// permission grants, webhook subscriptions and the audit trail. All
// routes under /api/v1 require identity headers; authorization
// decisions live in the domain services, not here.
package api
