package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"loom/internal/queue"
)

// Named list views beyond plain status filters.
const (
	ViewActive = "active"
	ViewStuck  = "stuck"
)

// WorkflowStore abstracts the queue persistence the API needs.
type WorkflowStore interface {
	Submit(ctx context.Context, entityID, title, sourceRef, payloadJSON string) (*queue.Item, error)
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error)
	GetByID(ctx context.Context, id string) (*queue.Item, error)
	FindStuck(ctx context.Context, olderThan time.Duration) ([]*queue.Item, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	RetryFailed(ctx context.Context, ids ...string) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
}

// WorkflowService exposes queue operations returning API DTOs.
type WorkflowService struct {
	store          WorkflowStore
	stuckThreshold time.Duration
}

// NewWorkflowService constructs a WorkflowService around the provided store.
// stuckThreshold bounds how long an in-flight item may go without a heartbeat
// before the stuck view reports it.
func NewWorkflowService(store WorkflowStore, stuckThreshold time.Duration) *WorkflowService {
	if store == nil {
		return nil
	}
	return &WorkflowService{store: store, stuckThreshold: stuckThreshold}
}

// Submit enqueues a workflow for the entity. Existing reports whether an
// active workflow already covered it.
func (s *WorkflowService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("workflow store unavailable")
	}
	item, err := s.store.Submit(ctx, req.EntityID, req.Title, req.SourceRef, req.PayloadJSON)
	if errors.Is(err, queue.ErrDuplicateSubmission) {
		return &SubmitResponse{Item: FromQueueItem(item), Existing: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SubmitResponse{Item: FromQueueItem(item), Existing: false}, nil
}

// List returns workflow items for the named view or status filter. An empty
// state returns everything.
func (s *WorkflowService) List(ctx context.Context, state string) ([]WorkflowItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	trimmed := strings.ToLower(strings.TrimSpace(state))
	switch trimmed {
	case "":
		items, err := s.store.List(ctx)
		if err != nil {
			return nil, err
		}
		return FromQueueItems(items), nil
	case ViewStuck:
		items, err := s.store.FindStuck(ctx, s.stuckThreshold)
		if err != nil {
			return nil, err
		}
		return FromQueueItems(items), nil
	case ViewActive:
		items, err := s.store.List(ctx, queue.ActiveStatuses()...)
		if err != nil {
			return nil, err
		}
		return FromQueueItems(items), nil
	}
	status, ok := queue.ParseStatus(trimmed)
	if !ok {
		return nil, fmt.Errorf("unknown workflow state %q", state)
	}
	items, err := s.store.List(ctx, status)
	if err != nil {
		return nil, err
	}
	return FromQueueItems(items), nil
}

// Describe fetches a single workflow item, nil when absent.
func (s *WorkflowService) Describe(ctx context.Context, id string) (*WorkflowItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromQueueItem(item)
	return &dto, nil
}

// Stats returns queue summary counts keyed by status string.
func (s *WorkflowService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Retry resets failed workflows (optionally a subset) back to pending.
func (s *WorkflowService) Retry(ctx context.Context, ids ...string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("workflow store unavailable")
	}
	return s.store.RetryFailed(ctx, ids...)
}

// ClearFailed removes failed workflows from the queue.
func (s *WorkflowService) ClearFailed(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("workflow store unavailable")
	}
	return s.store.ClearFailed(ctx)
}
