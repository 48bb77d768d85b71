package catalog

import "testing"

func TestValidateInputSchema(t *testing.T) {
	cases := []struct {
		name    string
		schema  map[string]any
		wantErr bool
	}{
		{name: "nil schema ok", schema: nil, wantErr: false},
		{name: "empty object schema ok", schema: map[string]any{"type": "object"}, wantErr: false},
		{name: "nested properties ok", schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"repo": map[string]any{"type": "string"},
			},
		}, wantErr: false},
		{name: "unrecognized type rejected", schema: map[string]any{"type": "not-a-type"}, wantErr: true},
		{name: "malformed properties rejected", schema: map[string]any{
			"type":       "object",
			"properties": "not-an-object",
		}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateInputSchema(tc.schema)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validateInputSchema(%v) error = %v, wantErr %v", tc.schema, err, tc.wantErr)
			}
		})
	}
}
