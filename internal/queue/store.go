package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"loom/internal/storage"
)

// ErrDuplicateSubmission reports that a live workflow already targets the
// entity. Submit returns it alongside that workflow so callers can tell a
// reused workflow from a fresh one.
var ErrDuplicateSubmission = errors.New("duplicate submission")

// Store manages workflow persistence on the shared database. It holds a
// storage.Provider rather than a client so reconnects are picked up without
// restarting the store.
type Store struct {
	provider storage.Provider
}

// NewStore constructs a workflow store over the shared storage client.
func NewStore(provider storage.Provider) *Store {
	return &Store{provider: provider}
}

func (s *Store) client() *storage.Client {
	if s == nil || s.provider == nil {
		return nil
	}
	return s.provider()
}

// Submit records a new workflow for the target entity. When a live workflow
// already targets the entity, Submit returns that workflow together with
// ErrDuplicateSubmission instead of creating another.
func (s *Store) Submit(ctx context.Context, entityID, title, sourceRef, payloadJSON string) (*Item, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, errors.New("entity id is required")
	}

	if existing, err := s.FindActiveByEntity(ctx, entityID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, ErrDuplicateSubmission
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.client().Exec(
		ctx,
		`INSERT INTO workflow_items (
            id, entity_id, title, source_ref, payload_json, status,
            progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		entityID,
		nullableString(title),
		nullableString(sourceRef),
		nullableString(payloadJSON),
		StatusPending,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		// A concurrent submit may have won the partial unique index race;
		// surface that workflow instead of the constraint error.
		if isUniqueViolation(err) {
			existing, findErr := s.FindActiveByEntity(ctx, entityID)
			if findErr == nil && existing != nil {
				return existing, ErrDuplicateSubmission
			}
		}
		return nil, fmt.Errorf("insert workflow: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a workflow item by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	item, err := s.scanOne(ctx, `SELECT `+itemColumns+` FROM workflow_items WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindActiveByEntity returns the live (non-terminal) workflow targeting the
// entity, if any.
func (s *Store) FindActiveByEntity(ctx context.Context, entityID string) (*Item, error) {
	item, err := s.scanOne(
		ctx,
		`SELECT `+itemColumns+` FROM workflow_items
         WHERE entity_id = ? AND status NOT IN (?, ?)
         ORDER BY created_at LIMIT 1`,
		entityID, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("find active workflow: %w", err)
	}
	return item, nil
}

// Claim atomically moves an item from a stage's start status into its
// processing status. Only one of several competing workers sees true; the
// rest skip the item.
func (s *Store) Claim(ctx context.Context, id string, from, to Status, stageLabel string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.client().Exec(
		ctx,
		`UPDATE workflow_items
         SET status = ?, progress_stage = ?, progress_percent = 0,
             progress_message = ?, error_message = NULL, error_kind = NULL,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		to, stageLabel, stageLabel+" started", now, now, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Update persists changes to an existing workflow item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()

	attemptsJSON, err := marshalAttempts(item.Attempts)
	if err != nil {
		return err
	}

	_, err = s.client().Exec(
		ctx,
		`UPDATE workflow_items
         SET entity_id = ?, natural_key = ?, title = ?, source_ref = ?,
             payload_json = ?, status = ?, progress_stage = ?,
             progress_percent = ?, progress_message = ?, attempts_json = ?,
             error_message = ?, error_kind = ?, updated_at = ?,
             completed_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		item.EntityID,
		nullableString(item.NaturalKey),
		nullableString(item.Title),
		nullableString(item.SourceRef),
		nullableString(item.PayloadJSON),
		item.Status,
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		nullableString(attemptsJSON),
		nullableString(item.ErrorMessage),
		nullableString(item.ErrorKind),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.CompletedAt),
		nullableTime(item.LastHeartbeat),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns workflow items filtered by status set (or all items when no
// status is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM workflow_items`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.client().Query(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.client().Query(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list workflow items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// NextForStatuses returns the oldest item matching any of the provided
// statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	item, err := s.scanOne(
		ctx,
		`SELECT `+itemColumns+` FROM workflow_items WHERE status IN (`+placeholders+`) ORDER BY created_at LIMIT 1`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("next for statuses: %w", err)
	}
	return item, nil
}

// FindPending returns workflows awaiting their first stage.
func (s *Store) FindPending(ctx context.Context) ([]*Item, error) {
	return s.List(ctx, StatusPending)
}

// FindStuck returns non-terminal workflows whose last update is older than
// the supplied age. Used by operational tooling and the reclaim sweep.
func (s *Store) FindStuck(ctx context.Context, olderThan time.Duration) ([]*Item, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	rows, err := s.client().Query(
		ctx,
		`SELECT `+itemColumns+` FROM workflow_items
         WHERE status NOT IN (?, ?) AND updated_at < ?
         ORDER BY updated_at`,
		StatusCompleted, StatusFailed, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("find stuck workflows: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.client().Exec(
		ctx,
		`UPDATE workflow_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns items stuck in the given processing statuses
// back to their stage start when heartbeats expire. The queue backend treats
// an expired lease as redelivery.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, transitions map[Status]Status) (int64, error) {
	if len(transitions) == 0 {
		return 0, nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var reclaimed int64
	for processing, startStatus := range transitions {
		res, err := s.client().Exec(
			ctx,
			`UPDATE workflow_items
             SET status = ?, progress_message = 'Reclaimed from stale processing',
                 last_heartbeat = NULL, updated_at = ?
             WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			startStatus,
			now,
			processing,
			cutoff.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim stale items: %w", err)
		}
		count, err := res.RowsAffected()
		if err != nil {
			return reclaimed, fmt.Errorf("rows affected: %w", err)
		}
		reclaimed += count
	}
	return reclaimed, nil
}

// RetryFailed moves failed items back to pending for reprocessing. With no
// ids, every failed item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.client().Exec(
			ctx,
			`UPDATE workflow_items
            SET status = ?, progress_stage = NULL, progress_percent = 0,
                progress_message = 'Retry requested', error_message = NULL,
                error_kind = NULL, attempts_json = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE workflow_items
        SET status = ?, progress_stage = NULL, progress_percent = 0,
            progress_message = 'Retry requested', error_message = NULL,
            error_kind = NULL, attempts_json = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.client().Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.client().Query(ctx, `SELECT status, COUNT(1) FROM workflow_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.client().Exec(ctx, `DELETE FROM workflow_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes all items from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.client().Exec(ctx, `DELETE FROM workflow_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes only completed items from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.client().Exec(ctx, `DELETE FROM workflow_items WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed items from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.client().Exec(ctx, `DELETE FROM workflow_items WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) scanOne(ctx context.Context, query string, args ...any) (*Item, error) {
	rows, err := s.client().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	item, err := scanItem(rows)
	if err != nil {
		return nil, err
	}
	return item, rows.Err()
}

const itemColumns = "id, entity_id, natural_key, title, source_ref, payload_json, status, progress_stage, progress_percent, progress_message, attempts_json, error_message, error_kind, created_at, updated_at, completed_at, last_heartbeat"

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              string
		entityID        string
		naturalKey      sql.NullString
		title           sql.NullString
		sourceRef       sql.NullString
		payload         sql.NullString
		statusStr       string
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		attemptsRaw     sql.NullString
		errorMessage    sql.NullString
		errorKind       sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&entityID,
		&naturalKey,
		&title,
		&sourceRef,
		&payload,
		&statusStr,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&attemptsRaw,
		&errorMessage,
		&errorKind,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		EntityID:        entityID,
		NaturalKey:      naturalKey.String,
		Title:           title.String,
		SourceRef:       sourceRef.String,
		PayloadJSON:     payload.String,
		Status:          Status(statusStr),
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ErrorMessage:    errorMessage.String,
		ErrorKind:       errorKind.String,
	}

	if attemptsRaw.Valid && attemptsRaw.String != "" {
		attempts := map[string]int{}
		if err := json.Unmarshal([]byte(attemptsRaw.String), &attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
		item.Attempts = attempts
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func marshalAttempts(attempts map[string]int) (string, error) {
	if len(attempts) == 0 {
		return "", nil
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return "", fmt.Errorf("encode attempts: %w", err)
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
