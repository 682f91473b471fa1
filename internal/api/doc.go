// Package api defines the transport DTOs shared by the daemon HTTP server
// and the CLI, plus a thin service layer over the workflow queue.
package api
