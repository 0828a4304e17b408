package apps

import (
	"time"
)

// AppType distinguishes platform-defined apps from user-defined ones
type AppType string

const (
	AppTypeStatic  AppType = "static"
	AppTypeDynamic AppType = "dynamic"
)

// App is a named, schema-described collection of records with its own
// permission and webhook configuration.
//
// Invariant: IsActive == false exactly when DeletedAt is set. The core
// never hard-deletes an app.
type App struct {
	ID             int64             `json:"id"`
	Code           string            `json:"code"` // unique, immutable
	Name           string            `json:"name"`
	LocalizedNames map[string]string `json:"localized_names,omitempty"`
	AppType        AppType           `json:"app_type"`
	IsActive       bool              `json:"is_active"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty"`
	DeletedBy      *string           `json:"deleted_by,omitempty"`

	EnableBulkDelete bool `json:"enable_bulk_delete"`
	EnableHistory    bool `json:"enable_history"`
	EnableComments   bool `json:"enable_comments"`

	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FieldType enumerates the value kinds a field can hold
type FieldType string

const (
	FieldTypeText       FieldType = "text"
	FieldTypeTextArea   FieldType = "textarea"
	FieldTypeNumber     FieldType = "number"
	FieldTypeDate       FieldType = "date"
	FieldTypeDropdown   FieldType = "dropdown"
	FieldTypeCheckbox   FieldType = "checkbox"
	FieldTypeFile       FieldType = "file"
	FieldTypeCalculated FieldType = "calculated"
)

// Valid reports whether t is a known field type
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeTextArea, FieldTypeNumber, FieldTypeDate,
		FieldTypeDropdown, FieldTypeCheckbox, FieldTypeFile, FieldTypeCalculated:
		return true
	}
	return false
}

// Field describes presentation and validation for one field of an app's
// records. Field definitions do not constrain storage shape; records
// remain an open field_code to value mapping.
type Field struct {
	ID           int64                  `json:"id"`
	AppID        int64                  `json:"app_id"`
	FieldCode    string                 `json:"field_code"` // unique within app
	FieldType    FieldType              `json:"field_type"`
	Label        string                 `json:"label"`
	Required     bool                   `json:"required"`
	UniqueField  bool                   `json:"unique_field"`
	DefaultValue *string                `json:"default_value,omitempty"`
	Options      []string               `json:"options,omitempty"`    // for dropdown-like types
	Validation   map[string]interface{} `json:"validation,omitempty"` // rule set
	DisplayOrder int                    `json:"display_order"`
	RowIndex     int                    `json:"row_index"`
	ColIndex     int                    `json:"col_index"`
	ColSpan      int                    `json:"col_span"`
	IsActive     bool                   `json:"is_active"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// SettingsPatch is a partial update of an app's feature flags. Nil
// pointers mean "leave unchanged"; a patch with no recognized field is
// rejected as a no-op.
type SettingsPatch struct {
	EnableBulkDelete *bool `json:"enable_bulk_delete,omitempty"`
	EnableHistory    *bool `json:"enable_history,omitempty"`
	EnableComments   *bool `json:"enable_comments,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p SettingsPatch) Empty() bool {
	return p.EnableBulkDelete == nil && p.EnableHistory == nil && p.EnableComments == nil
}

// Template is a reusable App+Field blueprint. System templates cannot
// be deleted.
type Template struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	IsSystem    bool              `json:"is_system"`
	Blueprint   TemplateBlueprint `json:"blueprint"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TemplateBlueprint captures everything needed to instantiate an app
type TemplateBlueprint struct {
	Name             string          `json:"name" yaml:"name"`
	AppType          AppType         `json:"app_type" yaml:"app_type"`
	EnableBulkDelete bool            `json:"enable_bulk_delete" yaml:"enable_bulk_delete"`
	EnableHistory    bool            `json:"enable_history" yaml:"enable_history"`
	EnableComments   bool            `json:"enable_comments" yaml:"enable_comments"`
	Fields           []TemplateField `json:"fields" yaml:"fields"`
}

// TemplateField is a field definition inside a blueprint
type TemplateField struct {
	FieldCode    string                 `json:"field_code" yaml:"field_code"`
	FieldType    FieldType              `json:"field_type" yaml:"field_type"`
	Label        string                 `json:"label" yaml:"label"`
	Required     bool                   `json:"required" yaml:"required"`
	UniqueField  bool                   `json:"unique_field" yaml:"unique_field"`
	DefaultValue *string                `json:"default_value,omitempty" yaml:"default_value"`
	Options      []string               `json:"options,omitempty" yaml:"options"`
	Validation   map[string]interface{} `json:"validation,omitempty" yaml:"validation"`
}
