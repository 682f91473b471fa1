package stage_test

import (
	"errors"
	"testing"

	"loom/internal/results"
	"loom/internal/services"
	"loom/internal/stage"
)

func TestStringFieldReturnsValue(t *testing.T) {
	payload := results.Payload{"sku": "sku-1"}
	value, err := stage.StringField(payload, "extract", "sku")
	if err != nil {
		t.Fatalf("StringField failed: %v", err)
	}
	if value != "sku-1" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestStringFieldMissingIsValidationError(t *testing.T) {
	_, err := stage.StringField(results.Payload{}, "extract", "sku")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStringFieldWrongTypeIsValidationError(t *testing.T) {
	_, err := stage.StringField(results.Payload{"sku": 7}, "extract", "sku")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOptionalString(t *testing.T) {
	if got := stage.OptionalString(nil, "sku"); got != "" {
		t.Fatalf("expected empty from nil payload, got %q", got)
	}
	if got := stage.OptionalString(results.Payload{"sku": "sku-2"}, "sku"); got != "sku-2" {
		t.Fatalf("unexpected value %q", got)
	}
}
