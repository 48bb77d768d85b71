package postgres

import (
	"encoding/json"

	"github.com/lib/pq"
)

// pqStringArray adapts a []string for use as a Postgres text[] bind
// parameter (e.g. ANY($1)).
func pqStringArray(ss []string) interface{} {
	return pq.Array(ss)
}

// jsonMetadata marshals a map to JSON for a JSONB column, defaulting
// to an empty object rather than SQL NULL.
func jsonMetadata(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func unmarshalMetadata(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
