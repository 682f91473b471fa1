package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loom/internal/storage"
)

// Payload holds a single stage's structured output.
type Payload map[string]any

// Store persists stage outputs keyed by workflow and stage so later stages
// can read everything produced before them. Writes within a stage namespace
// are last-write-wins; namespaces never clobber each other.
type Store struct {
	provider storage.Provider
	ttl      time.Duration
}

// NewStore constructs a result store. A non-positive ttl disables expiry.
func NewStore(provider storage.Provider, ttl time.Duration) *Store {
	return &Store{provider: provider, ttl: ttl}
}

func (s *Store) client() *storage.Client {
	if s == nil || s.provider == nil {
		return nil
	}
	return s.provider()
}

// Save records the payload under the workflow and stage namespace, replacing
// any earlier output from the same stage.
func (s *Store) Save(ctx context.Context, workflowID, stage string, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode stage result: %w", err)
	}

	now := time.Now().UTC()
	var expires any
	if s.ttl > 0 {
		expires = now.Add(s.ttl).Format(time.RFC3339Nano)
	}

	_, err = s.client().Exec(
		ctx,
		`INSERT INTO stage_results (workflow_id, stage, payload_json, updated_at, expires_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(workflow_id, stage) DO UPDATE SET
             payload_json = excluded.payload_json,
             updated_at = excluded.updated_at,
             expires_at = excluded.expires_at`,
		workflowID,
		stage,
		string(data),
		now.Format(time.RFC3339Nano),
		expires,
	)
	if err != nil {
		return fmt.Errorf("save stage result: %w", err)
	}
	return nil
}

// Accumulated returns every stage output recorded for the workflow, keyed by
// stage name.
func (s *Store) Accumulated(ctx context.Context, workflowID string) (map[string]Payload, error) {
	rows, err := s.client().Query(
		ctx,
		`SELECT stage, payload_json FROM stage_results WHERE workflow_id = ? ORDER BY stage`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("load stage results: %w", err)
	}
	defer rows.Close()

	accumulated := make(map[string]Payload)
	for rows.Next() {
		var stage, raw string
		if err := rows.Scan(&stage, &raw); err != nil {
			return nil, err
		}
		payload := Payload{}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", stage, err)
		}
		accumulated[stage] = payload
	}
	return accumulated, rows.Err()
}

// Get returns a single stage's output, or nil when the stage has not
// produced one.
func (s *Store) Get(ctx context.Context, workflowID, stage string) (Payload, error) {
	var raw string
	err := s.client().QueryRowScan(
		ctx,
		`SELECT payload_json FROM stage_results WHERE workflow_id = ? AND stage = ?`,
		[]any{workflowID, stage},
		&raw,
	)
	if err != nil {
		if storage.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load stage result: %w", err)
	}
	payload := Payload{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", stage, err)
	}
	return payload, nil
}

// Clear removes every stage output for the workflow. Called after the
// grace window once the workflow reaches a terminal state.
func (s *Store) Clear(ctx context.Context, workflowID string) error {
	if _, err := s.client().Exec(ctx, `DELETE FROM stage_results WHERE workflow_id = ?`, workflowID); err != nil {
		return fmt.Errorf("clear stage results: %w", err)
	}
	return nil
}

// SweepExpired deletes results whose expiry has passed and reports how many
// rows were removed.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.client().Exec(
		ctx,
		`DELETE FROM stage_results WHERE expires_at IS NOT NULL AND expires_at < ?`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired results: %w", err)
	}
	return res.RowsAffected()
}
