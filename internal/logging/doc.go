// Package logging builds the slog loggers used across the daemon and CLI.
//
// It provides a human-oriented console handler, a JSON handler for log
// shipping, standardized field-name constants, and helpers that enrich
// loggers from context values (workflow id, entity id, stage, correlation
// id) carried by the services package.
package logging
