package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/apps"
)

func TestValidateRequiredField(t *testing.T) {
	fields := []*apps.Field{
		{FieldCode: "name", FieldType: apps.FieldTypeText, Required: true},
	}

	err := Validate(map[string]interface{}{}, fields)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
	assert.Contains(t, err.Error(), "name: required")

	err = Validate(map[string]interface{}{"name": "  "}, fields)
	require.Error(t, err)

	err = Validate(map[string]interface{}{"name": "Acme"}, fields)
	assert.NoError(t, err)
}

func TestValidateUnknownKeysPass(t *testing.T) {
	fields := []*apps.Field{
		{FieldCode: "name", FieldType: apps.FieldTypeText},
	}
	err := Validate(map[string]interface{}{"name": "Acme", "legacy_code": 42}, fields)
	assert.NoError(t, err)
}

func TestValidateTypes(t *testing.T) {
	fields := []*apps.Field{
		{FieldCode: "title", FieldType: apps.FieldTypeText},
		{FieldCode: "amount", FieldType: apps.FieldTypeNumber},
		{FieldCode: "done", FieldType: apps.FieldTypeCheckbox},
		{FieldCode: "due", FieldType: apps.FieldTypeDate},
	}

	err := Validate(map[string]interface{}{
		"title":  "invoice",
		"amount": float64(99.5),
		"done":   true,
		"due":    "2026-09-01",
	}, fields)
	assert.NoError(t, err)

	err = Validate(map[string]interface{}{"amount": "ninety"}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount")

	err = Validate(map[string]interface{}{"done": "yes"}, fields)
	require.Error(t, err)

	err = Validate(map[string]interface{}{"due": "tomorrow"}, fields)
	require.Error(t, err)
}

func TestValidateDropdownOptions(t *testing.T) {
	fields := []*apps.Field{
		{FieldCode: "priority", FieldType: apps.FieldTypeDropdown, Options: []string{"low", "high"}},
	}

	assert.NoError(t, Validate(map[string]interface{}{"priority": "low"}, fields))

	err := Validate(map[string]interface{}{"priority": "urgent"}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an allowed option")
}

func TestValidateCalculatedReadOnly(t *testing.T) {
	fields := []*apps.Field{
		{FieldCode: "total", FieldType: apps.FieldTypeCalculated},
	}
	err := Validate(map[string]interface{}{"total": 100}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestValidateMessageKeepsPercentSigns(t *testing.T) {
	fields := []*apps.Field{
		{FieldCode: "discount_%", FieldType: apps.FieldTypeNumber, Required: true},
	}
	err := Validate(map[string]interface{}{}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discount_%: required")
	assert.NotContains(t, err.Error(), "%!")
}

func TestValidateNilOptionalValue(t *testing.T) {
	fields := []*apps.Field{
		{FieldCode: "notes", FieldType: apps.FieldTypeTextArea},
	}
	assert.NoError(t, Validate(map[string]interface{}{"notes": nil}, fields))
}
