package services

import "context"

type contextKey string

const (
	workflowIDKey contextKey = "workflow_id"
	entityIDKey   contextKey = "entity_id"
	stageKey      contextKey = "stage"
	requestIDKey  contextKey = "request_id"
)

// WithWorkflowID annotates context with the workflow identifier.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, workflowIDKey, id)
}

// WorkflowIDFromContext extracts the workflow identifier if present.
func WorkflowIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workflowIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEntityID annotates context with the target entity identifier.
func WithEntityID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, entityIDKey, id)
}

// EntityIDFromContext extracts the target entity identifier if present.
func EntityIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(entityIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
