// Package apps implements the application registry: schema-defined
// collections of records with feature flags, a soft-delete lifecycle
// and reusable templates.
package apps
