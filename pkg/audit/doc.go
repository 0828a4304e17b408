// Package audit keeps the platform's append-only trail of who did
// what: app lifecycle changes, permission denials, bulk deletes and
// per-record history for apps that enable it.
package audit
