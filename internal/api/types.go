package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// WorkflowItem describes a workflow queue entry in a transport-friendly
// format.
type WorkflowItem struct {
	ID           string           `json:"id"`
	EntityID     string           `json:"entityId"`
	NaturalKey   string           `json:"naturalKey,omitempty"`
	Title        string           `json:"title,omitempty"`
	SourceRef    string           `json:"sourceRef,omitempty"`
	Status       string           `json:"status"`
	Progress     WorkflowProgress `json:"progress"`
	Attempts     map[string]int   `json:"attempts,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	ErrorKind    string           `json:"errorKind,omitempty"`
	CreatedAt    string           `json:"createdAt,omitempty"`
	UpdatedAt    string           `json:"updatedAt,omitempty"`
	CompletedAt  string           `json:"completedAt,omitempty"`
}

// WorkflowProgress captures stage progress information for a workflow entry.
type WorkflowProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastItem    *WorkflowItem  `json:"lastItem,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// SubmitRequest is the payload for enqueueing a new workflow.
type SubmitRequest struct {
	EntityID    string `json:"entityId"`
	Title       string `json:"title,omitempty"`
	SourceRef   string `json:"sourceRef,omitempty"`
	PayloadJSON string `json:"payload,omitempty"`
}

// SubmitResponse reports the outcome of a workflow submission.
type SubmitResponse struct {
	Item     WorkflowItem `json:"item"`
	Existing bool         `json:"existing"`
}

// WorkflowListResponse wraps a collection of workflow items.
type WorkflowListResponse struct {
	Items []WorkflowItem `json:"items"`
}

// WorkflowItemResponse wraps a single workflow item.
type WorkflowItemResponse struct {
	Item WorkflowItem `json:"item"`
}

// RetryResponse reports how many items an action touched.
type RetryResponse struct {
	Updated int64 `json:"updated"`
}

// StatsResponse provides a normalized queue stats payload.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}
