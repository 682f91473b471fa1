// Package storage owns the shared SQLite handle and the connection
// resilience layer around it.
//
// The store can be transiently unready right after a cold start, and an
// idle transport can die between a successful liveness probe and the next
// operation. Every operation therefore runs through a bounded
// exponential-backoff retry policy that recognizes a small fixed set of
// transient signatures; exhaustion surfaces a transient-infrastructure
// classified error rather than a business failure.
//
// Dependent services receive a Provider and resolve the current client at
// the start of each operation. Caching the raw handle inside a long-lived
// service is the defect this layer exists to prevent.
package storage
