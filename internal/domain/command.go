package domain

import "time"

// CommandRequest is one user-issued natural-language command against a canvas.
type CommandRequest struct {
	Command     string   `json:"command"`
	CanvasID    string   `json:"canvas_id"`
	UserID      string   `json:"user_id"`
	Viewport    Viewport `json:"viewport"`
	SelectedIDs []string `json:"selected_ids,omitempty"`
	// JobID is the caller-supplied idempotency key. When empty the engine
	// generates one; retries with the same JobID are no-ops once the job
	// has completed.
	JobID string `json:"job_id,omitempty"`
}

// Model tier sentinels reported in ExecutionResult.ModelTier for paths that
// never reached a model.
const (
	TierFastPath = "fast-path"
	TierTemplate = "template"
	TierCached   = "cached"
)

// ExecutionResult is the uniform outcome shape every execution path produces.
type ExecutionResult struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	CreatedIDs []string `json:"created_ids,omitempty"`
	UpdatedIDs []string `json:"updated_ids,omitempty"`
	DeletedIDs []string `json:"deleted_ids,omitempty"`
	// Focus is the bounding box over newly created objects, for the caller
	// to pan/zoom to. Nil when nothing was created.
	Focus           *Rect   `json:"focus,omitempty"`
	ModelTier       string  `json:"model_tier,omitempty"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	ToolCalls       int     `json:"tool_calls"`
	ElapsedMS       int64   `json:"elapsed_ms"`
	RouteSource     string  `json:"route_source,omitempty"`
	RouteConfidence float64 `json:"route_confidence,omitempty"`
}

// JobStatus is the lifecycle state of a command job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobPlanning  JobStatus = "planning"
	JobExecuting JobStatus = "executing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ProgressEntry is one human-readable step in a job's progress trail.
type ProgressEntry struct {
	Note string    `json:"note"`
	At   time.Time `json:"at"`
}

// Job tracks one command's lifecycle for idempotent resumption. Terminal jobs
// are immutable; a retry against a completed job returns its cached result
// without touching the canvas.
type Job struct {
	CanvasID     string           `json:"canvas_id"`
	JobID        string           `json:"job_id"`
	Command      string           `json:"command"`
	UserID       string           `json:"user_id"`
	Status       JobStatus        `json:"status"`
	StartVersion int64            `json:"start_version"`
	EndVersion   int64            `json:"end_version"`
	Progress     []ProgressEntry  `json:"progress,omitempty"`
	Result       *ExecutionResult `json:"result,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
