package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks momentary infrastructure failures expected to
	// self-resolve on retry (store not ready, reset connections).
	ErrTransient = errors.New("transient infrastructure failure")
	// ErrValidation marks malformed or incomplete stage input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a natural-key collision reported by a persistence
	// target. Handled by the conflict resolver before it may escalate.
	ErrConflict = errors.New("natural key conflict")
	// ErrPersistentConflict marks a conflict that survived the full retry
	// budget. Fatal.
	ErrPersistentConflict = errors.New("persistent natural key conflict")
	// ErrLockTimeout marks a bounded lock wait that expired. Retryable by
	// re-queuing the stage.
	ErrLockTimeout = errors.New("entity lock timeout")
	// ErrConfiguration marks unusable configuration. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing upstream record. Never retried.
	ErrNotFound = errors.New("not found")
)

// Kind classifies an error for orchestrator decisions and structured logs.
type Kind string

const (
	KindTransient          Kind = "transient_infrastructure"
	KindValidation         Kind = "validation"
	KindConflict           Kind = "natural_key_conflict"
	KindPersistentConflict Kind = "persistent_conflict"
	KindLockTimeout        Kind = "lock_timeout"
	KindConfiguration      Kind = "configuration"
	KindNotFound           Kind = "not_found"
	KindUnknown            Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrPersistentConflict):
		return KindPersistentConflict
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrLockTimeout):
		return KindLockTimeout
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// Retryable reports whether the orchestrator may re-queue the failed stage.
// Unknown errors default to fatal so unexpected defects surface instead of
// looping.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindLockTimeout, KindConflict:
		return true
	default:
		return false
	}
}

// ErrorDetails carries structured failure context for logging and persistence.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Cause   error
}

// Details extracts structured failure context from a wrapped stage error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	return ErrorDetails{
		Kind:    Classify(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   errors.Unwrap(err),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
