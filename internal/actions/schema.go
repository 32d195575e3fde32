package actions

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateSchema проверяет конфигурацию по JSON-схеме действия.
func validateSchema(subtype string, schema map[string]any, config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, subtype, err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, subtype, strings.Join(errs, "; "))
	}

	return nil
}

// objectSchema собирает JSON-схему объекта.
func objectSchema(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}

var (
	nonEmptyString = map[string]any{"type": "string", "minLength": 1}
	anyString      = map[string]any{"type": "string"}
)
