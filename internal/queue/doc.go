// Package queue persists workflow executions in SQLite and provides the
// dispatch primitives the workflow manager builds on: idempotent submission
// keyed by entity, status-ordered retrieval, heartbeat tracking, and
// reclamation of executions whose processor died mid-stage.
package queue
