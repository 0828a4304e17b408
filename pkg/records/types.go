package records

import (
	"time"
)

// DefaultStatus is assigned to new records
const DefaultStatus = "open"

// Record is one row of an app. FieldData is an open mapping from
// field_code to value; field definitions shape validation and
// presentation but never constrain which keys may be stored.
type Record struct {
	ID        string                 `json:"id"`
	AppID     int64                  `json:"app_id"`
	AppCode   string                 `json:"app_code"`
	FieldData map[string]interface{} `json:"field_data"`
	Status    string                 `json:"status"`
	IsActive  bool                   `json:"is_active"`
	CreatedBy string                 `json:"created_by"`
	UpdatedBy string                 `json:"updated_by"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Comment is a discussion entry attached to a record
type Comment struct {
	ID        int64     `json:"id"`
	RecordID  string    `json:"record_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOptions narrows record listings
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}
