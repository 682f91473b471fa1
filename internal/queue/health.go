package queue

import (
	"context"
	"fmt"
	"os"
)

// CheckHealth probes the on-disk database and reports what a failed probe
// looked like instead of returning an error, so diagnostics can render
// partial results.
func (s *Store) CheckHealth(ctx context.Context) DatabaseHealth {
	client := s.client()
	health := DatabaseHealth{}
	if client == nil {
		health.Error = "database client unavailable"
		return health
	}
	health.DBPath = client.Path()

	if _, err := os.Stat(health.DBPath); err != nil {
		health.Error = fmt.Sprintf("database file not accessible: %v", err)
		return health
	}
	health.DatabaseExists = true

	if err := client.Ping(ctx); err != nil {
		health.Error = fmt.Sprintf("database not readable: %v", err)
		return health
	}
	health.DatabaseReadable = true

	var tableName string
	err := client.QueryRowScan(
		ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'workflow_items'`,
		nil,
		&tableName,
	)
	if err != nil {
		health.Error = fmt.Sprintf("workflow_items table missing: %v", err)
		return health
	}
	health.TableExists = true

	var integrity string
	if err := client.QueryRowScan(ctx, `PRAGMA integrity_check`, nil, &integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check failed: %v", err)
		return health
	}
	health.IntegrityCheck = integrity == "ok"
	if !health.IntegrityCheck {
		health.Error = fmt.Sprintf("integrity check reported %q", integrity)
		return health
	}

	var total int
	if err := client.QueryRowScan(ctx, `SELECT COUNT(1) FROM workflow_items`, nil, &total); err != nil {
		health.Error = fmt.Sprintf("count items: %v", err)
		return health
	}
	health.TotalItems = total
	return health
}
