// Package locks serializes workflow processing per entity. A lock is held
// for the life of a workflow's active stage, kept alive by refreshes, and
// reclaimable by another processor once refreshes stop for long enough.
package locks
