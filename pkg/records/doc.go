// Package records implements the generic record store behind every
// app: open field-data documents with comments, status tracking and a
// guarded bulk delete path. All reads pass field-level redaction and
// all mutations fire webhook events.
package records
