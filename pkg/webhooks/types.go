package webhooks

import (
	"time"

	"github.com/deskforge/deskforge/pkg/permissions"
)

// TriggerType identifies the record event a webhook subscribes to
type TriggerType string

const (
	TriggerRecordAdded   TriggerType = "record_added"
	TriggerRecordEdited  TriggerType = "record_edited"
	TriggerRecordDeleted TriggerType = "record_deleted"
	TriggerCommentAdded  TriggerType = "comment_added"
	TriggerStatusChanged TriggerType = "status_changed"
)

// Valid reports whether t is a known trigger type
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerRecordAdded, TriggerRecordEdited, TriggerRecordDeleted,
		TriggerCommentAdded, TriggerStatusChanged:
		return true
	}
	return false
}

// Webhook is one subscription: app + trigger + target URL. Inactive
// webhooks are skipped at dispatch without logging.
type Webhook struct {
	ID          int64             `json:"id"`
	AppCode     string            `json:"app_code"`
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	TriggerType TriggerType       `json:"trigger_type"`
	Headers     map[string]string `json:"headers,omitempty"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Event is one occurrence of a trigger inside an app
type Event struct {
	Trigger  TriggerType
	AppID    int64
	AppCode  string
	RecordID string
	Record   map[string]interface{}
	Actor    permissions.Actor
	// Extra carries trigger-specific context, e.g. the comment body
	// for comment_added or old/new status for status_changed.
	Extra map[string]interface{}
}

// Payload is the JSON body POSTed to every matched subscription. One
// payload is built per event and shared across deliveries. Every key
// is always present; values absent from the event are explicit nulls
// so consumers can rely on the shape.
type Payload struct {
	Event TriggerType `json:"event"`
	App   PayloadApp  `json:"app"`
	// RecordID and Actor are null for events without a record or
	// without a user actor. Actor is the acting user id.
	RecordID *string                `json:"recordId"`
	Record   map[string]interface{} `json:"record"`
	Actor    *string                `json:"actor"`
	Extra    map[string]interface{} `json:"extra"`
	// Timestamp is ISO-8601 in UTC
	Timestamp string `json:"timestamp"`
}

type PayloadApp struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

// DeliveryLog is the audit record of a single delivery attempt.
// Status fields are nil when the request never produced a response.
type DeliveryLog struct {
	ID          int64       `json:"id"`
	WebhookID   int64       `json:"webhook_id"`
	AppCode     string      `json:"app_code"`
	TriggerType TriggerType `json:"trigger_type"`
	URL         string      `json:"url"`
	// Payload is the exact JSON body that was sent.
	Payload        string    `json:"payload"`
	Success        bool      `json:"success"`
	ResponseStatus *int      `json:"response_status,omitempty"`
	ResponseBody   *string   `json:"response_body,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	Duration       int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// DeliveryStats aggregates a webhook's delivery history
type DeliveryStats struct {
	WebhookID   int64   `json:"webhook_id"`
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}
