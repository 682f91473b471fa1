// Package workflow advances queue items through the configured processing
// stages.
//
// The Manager runs a small worker pool per stage. Each worker polls the
// queue for items at its stage's start status, claims one atomically,
// acquires the per-entity lock, and executes the registered handler while a
// heartbeat loop keeps the item and lock visibly alive. Stage outputs are
// written to the result accumulator before the status advance, so the next
// stage always observes the data produced before it.
//
// Failures are classified through the services error taxonomy: retryable
// kinds are re-queued at the same stage until the attempt budget runs out,
// everything else marks the workflow failed with a recorded kind. A lock
// that is reclaimed mid-execution cancels the stage and discards its output;
// the reclaiming processor owns the entity from then on.
//
// Add new lifecycle stages by extending StageSet, adding the queue status
// pair, and registering the transition in ConfigureStages; this package is
// the authoritative home for that coordination logic.
package workflow
