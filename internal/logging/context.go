package logging

import (
	"context"
	"log/slog"

	"loom/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldWorkflowID is the standardized structured logging key for workflow identifiers.
	FieldWorkflowID = "workflow_id"
	// FieldEntityID is the standardized structured logging key for target entity identifiers.
	FieldEntityID = "entity_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldAttempt is the standardized structured logging key for stage attempt counts.
	FieldAttempt = "attempt"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType is the standardized structured logging key for machine-readable event tags.
	FieldEventType = "event_type"
	// FieldErrorKind is the standardized structured logging key for error classification.
	FieldErrorKind = "error_kind"
	// FieldErrorHint is the standardized structured logging key for operator guidance.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.WorkflowIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorkflowID, id))
	}
	if entity, ok := services.EntityIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEntityID, entity))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
