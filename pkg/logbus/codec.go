package logbus

import "encoding/json"

// metadataJSON marshals a LogEvent's metadata map for storage in a jsonb
// column, defaulting to an empty object rather than SQL NULL so reads never
// need a nil check.
func metadataJSON(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func decodeMetadata(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
