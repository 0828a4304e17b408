package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/apps"
)

// Validate checks field data against an app's field definitions.
// Unknown keys pass through untouched; definitions only constrain the
// fields they name. Calculated fields are derived server-side and may
// not be written.
func Validate(data map[string]interface{}, fields []*apps.Field) error {
	var problems []string

	for _, f := range fields {
		value, present := data[f.FieldCode]

		if f.FieldType == apps.FieldTypeCalculated && present {
			problems = append(problems, fmt.Sprintf("%s: calculated fields are read-only", f.FieldCode))
			continue
		}

		if f.Required && (!present || isEmpty(value)) {
			problems = append(problems, fmt.Sprintf("%s: required", f.FieldCode))
			continue
		}
		if !present || value == nil {
			continue
		}

		if err := checkType(f, value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.FieldCode, err))
		}
	}

	if len(problems) > 0 {
		return apperrors.InvalidState("invalid field data: %s", strings.Join(problems, "; "))
	}
	return nil
}

func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func checkType(f *apps.Field, value interface{}) error {
	switch f.FieldType {
	case apps.FieldTypeText, apps.FieldTypeTextArea, apps.FieldTypeFile:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case apps.FieldTypeNumber:
		switch value.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case apps.FieldTypeCheckbox:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case apps.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected date string, got %T", value)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				return fmt.Errorf("invalid date %q", s)
			}
		}
	case apps.FieldTypeDropdown:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if len(f.Options) > 0 && !contains(f.Options, s) {
			return fmt.Errorf("%q is not an allowed option", s)
		}
	}
	return nil
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}
