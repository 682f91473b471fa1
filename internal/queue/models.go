package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a workflow item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusExtracted  Status = "extracted"
	StatusDrafting   Status = "drafting"
	StatusDrafted    Status = "drafted"
	StatusEnriching  Status = "enriching"
	StatusEnriched   Status = "enriched"
	StatusImaging    Status = "imaging"
	StatusImaged     Status = "imaged"
	StatusSyncing    Status = "syncing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusExtracted,
	StatusDrafting,
	StatusDrafted,
	StatusEnriching,
	StatusEnriched,
	StatusImaging,
	StatusImaged,
	StatusSyncing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var statusRank = func() map[Status]int {
	ranks := make(map[Status]int, len(allStatuses))
	for i, status := range allStatuses {
		ranks[status] = i
	}
	return ranks
}()

var processingStatuses = map[Status]struct{}{
	StatusExtracting: {},
	StatusDrafting:   {},
	StatusEnriching:  {},
	StatusImaging:    {},
	StatusSyncing:    {},
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// DatabaseHealth captures diagnostic information about the shared database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// Item represents a workflow execution persisted in SQLite.
type Item struct {
	ID              string
	EntityID        string
	NaturalKey      string
	Title           string
	SourceRef       string
	PayloadJSON     string
	Status          Status
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	Attempts        map[string]int
	ErrorMessage    string
	ErrorKind       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ActiveStatuses returns every non-terminal status in forward order.
func ActiveStatuses() []Status {
	active := make([]Status, 0, len(allStatuses))
	for _, status := range allStatuses {
		if status == StatusCompleted || status == StatusFailed {
			continue
		}
		active = append(active, status)
	}
	return active
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Rank returns the position of a status in the declared forward order, or -1
// for unknown statuses. Stage transitions must never decrease rank except as
// same-stage retries.
func Rank(status Status) int {
	rank, ok := statusRank[status]
	if !ok {
		return -1
	}
	return rank
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (i Item) IsProcessing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether the item reached a final state.
func (i Item) IsTerminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}

// Attempt returns the recorded attempt count for a stage.
func (i Item) Attempt(stage string) int {
	if i.Attempts == nil {
		return 0
	}
	return i.Attempts[stage]
}

// IncrementAttempt bumps the attempt counter for a stage and returns the new
// count.
func (i *Item) IncrementAttempt(stage string) int {
	if i.Attempts == nil {
		i.Attempts = make(map[string]int, 1)
	}
	i.Attempts[stage]++
	return i.Attempts[stage]
}

// SetProgress updates all three progress fields atomically.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item as failed with the given error detail.
func (i *Item) SetFailed(message, kind string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ErrorKind = kind
	i.ProgressMessage = message
	i.ProgressStage = "Failed"
	i.LastHeartbeat = nil
}
