// Package permissions implements the platform's permission engine:
// app-level action gating through flat (app, role) grant rows and
// field-level visibility gating through (app, field, role) rows.
//
// The evaluator is deny-by-default. No grant row means denied, unknown
// apps and unknown roles mean denied, and there is no implicit admin
// override except the reserved super-role set, which comes from
// configuration. Evaluation is a pure lookup with no side effects;
// callers enforce the decision before touching storage.
//
// Field visibility is data, not code: hiding a newly confidential field
// from a role means inserting a row, not shipping a change.
package permissions
