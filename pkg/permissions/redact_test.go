package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactRemovesHiddenKeys(t *testing.T) {
	record := map[string]interface{}{
		"id":     1,
		"name":   "A",
		"salary": 9000,
	}

	got := Redact(record, map[string]bool{"salary": true})

	assert.Equal(t, map[string]interface{}{"id": 1, "name": "A"}, got)
	_, present := got["salary"]
	assert.False(t, present, "hidden key must be absent, not nil")
}

func TestRedactLeavesOriginalUntouched(t *testing.T) {
	record := map[string]interface{}{"a": 1, "b": 2}

	Redact(record, map[string]bool{"a": true})

	assert.Len(t, record, 2, "redaction must copy, not mutate")
}

func TestRedactNoHiddenSet(t *testing.T) {
	record := map[string]interface{}{"a": 1, "b": 2}

	got := Redact(record, nil)
	assert.Equal(t, record, got)

	got = Redact(record, map[string]bool{"c": true})
	assert.Equal(t, record, got, "keys absent from the record are ignored")
}

func TestRedactNilRecord(t *testing.T) {
	assert.Nil(t, Redact(nil, map[string]bool{"a": true}))
}

func TestRedactAll(t *testing.T) {
	records := []map[string]interface{}{
		{"id": 1, "secret": "x"},
		{"id": 2, "secret": "y"},
		{"id": 3},
	}

	got := RedactAll(records, map[string]bool{"secret": true})

	for i, record := range got {
		_, present := record["secret"]
		assert.False(t, present, "record %d still has the hidden key", i)
	}
	assert.Nil(t, RedactAll(nil, nil))
}
