package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"loom/internal/config"
)

// schemaVersion is the current schema version. Bump this when the schema
// changes; users must clear the database after schema changes.
const schemaVersion = 2

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Client wraps the shared SQLite handle with the transient-failure retry
// policy. One Client is constructed per process; long-lived services hold a
// Provider and resolve the current handle per operation instead of caching
// the Client by value.
type Client struct {
	db     *sql.DB
	path   string
	policy RetryPolicy
}

// Provider resolves the current storage client. Injected into services so a
// reopened handle is picked up without restarting dependents.
type Provider func() *Client

// Open initializes or connects to the shared database and applies the schema.
func Open(cfg *config.Config) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	client := &Client{
		db:     db,
		path:   dbPath,
		policy: PolicyFromConfig(cfg),
	}
	if err := client.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path returns the location of the backing database file.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// IsNoRows reports whether err is the no-rows result from a single-row scan.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Exec runs a statement through the retry policy.
func (c *Client) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := c.policy.Do(ctx, "exec", func() error {
		var execErr error
		res, execErr = c.db.ExecContext(ensureContext(ctx), query, args...)
		return execErr
	})
	return res, err
}

// Query runs a multi-row query through the retry policy.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := c.policy.Do(ctx, "query", func() error {
		var queryErr error
		rows, queryErr = c.db.QueryContext(ensureContext(ctx), query, args...)
		return queryErr
	})
	return rows, err
}

// QueryRowScan runs a single-row query through the retry policy and scans the
// result. Retrying must wrap the scan because a dead transport often only
// surfaces at read time, after a liveness probe has already passed.
func (c *Client) QueryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	return c.policy.Do(ctx, "query row", func() error {
		row := c.db.QueryRowContext(ensureContext(ctx), query, args...)
		err := row.Scan(dest...)
		if errors.Is(err, sql.ErrNoRows) {
			// Not a transport failure; surface without retry.
			return errNoRetry{err}
		}
		return err
	})
}

// Begin opens a transaction through the retry policy.
func (c *Client) Begin(ctx context.Context) (*sql.Tx, error) {
	var tx *sql.Tx
	err := c.policy.Do(ctx, "begin tx", func() error {
		var beginErr error
		tx, beginErr = c.db.BeginTx(ensureContext(ctx), nil)
		return beginErr
	})
	return tx, err
}

// Ping verifies connectivity without the retry policy; callers that need a
// warm-up probe use the policy explicitly.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return errors.New("storage client unavailable")
	}
	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	return c.db.PingContext(pingCtx)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
