package audit

import (
	"time"
)

// Well-known event types. Free-form types are allowed; these are the
// ones the platform itself emits.
const (
	EventAppCreated      = "app.created"
	EventAppUpdated      = "app.updated"
	EventAppDeleted      = "app.deleted"
	EventAppRestored     = "app.restored"
	EventSettingsChanged = "app.settings_changed"

	EventPermissionDenied = "permission.denied"

	EventRecordCreated = "record.created"
	EventRecordUpdated = "record.updated"
	EventRecordDeleted = "record.deleted"
	EventStatusChanged = "record.status_changed"
	EventBulkDeleted   = "record.bulk_deleted"
)

// Event is one audit trail entry
type Event struct {
	ID        int64                  `json:"id"`
	EventType string                 `json:"event_type"`
	Actor     string                 `json:"actor"`
	AppCode   string                 `json:"app_code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Query filters trail listings. Zero values mean no filter.
type Query struct {
	EventType string
	Actor     string
	AppCode   string
	Since     time.Time
	Limit     int
}
