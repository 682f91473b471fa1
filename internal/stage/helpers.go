package stage

import (
	"fmt"

	"loom/internal/results"
	"loom/internal/services"
)

// StringField extracts a required string from a stage payload. On a missing
// or mistyped value it returns a services.ErrValidation suitable for stage
// Execute methods.
func StringField(payload results.Payload, stageName, key string) (string, error) {
	value, ok := payload[key]
	if !ok {
		return "", services.Wrap(
			services.ErrValidation, stageName, "read accumulated data",
			fmt.Sprintf("required field %q missing; rerun %s", key, stageName), nil)
	}
	text, ok := value.(string)
	if !ok || text == "" {
		return "", services.Wrap(
			services.ErrValidation, stageName, "read accumulated data",
			fmt.Sprintf("field %q is empty or not a string", key), nil)
	}
	return text, nil
}

// OptionalString extracts a string field, returning empty when absent.
func OptionalString(payload results.Payload, key string) string {
	if payload == nil {
		return ""
	}
	if text, ok := payload[key].(string); ok {
		return text
	}
	return ""
}
