// Package daemon hosts the long-running loom process: it wires storage,
// queue, locks, and the workflow manager together, enforces single-instance
// execution, and serves the HTTP API.
package daemon
