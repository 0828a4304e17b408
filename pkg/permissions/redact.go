package permissions

// Redact returns a copy of record with every key in hidden removed
// entirely. Keys are removed, never nulled: a caller must not be able to
// infer a hidden value from the presence of its key.
func Redact(record map[string]interface{}, hidden map[string]bool) map[string]interface{} {
	if record == nil {
		return nil
	}

	out := make(map[string]interface{}, len(record))
	for key, value := range record {
		if hidden[key] {
			continue
		}
		out[key] = value
	}
	return out
}

// RedactAll applies Redact to a slice of records
func RedactAll(records []map[string]interface{}, hidden map[string]bool) []map[string]interface{} {
	if records == nil {
		return nil
	}

	out := make([]map[string]interface{}, len(records))
	for i, record := range records {
		out[i] = Redact(record, hidden)
	}
	return out
}
