package catalog

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// validateInputSchema rejects an upstream tool's input_schema if it
// isn't a compilable JSON Schema document (e.g. an unrecognized
// "type" value) before it's persisted. A nil/empty schema is treated
// as "no constraints" and accepted, matching tools that take no
// arguments.
func validateInputSchema(schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	loader := gojsonschema.NewGoLoader(schema)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return fmt.Errorf("invalid input schema: %w", err)
	}
	return nil
}
