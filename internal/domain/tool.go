package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the uniform outcome of executing one tool call. Tools never
// panic or return Go errors past their boundary; every failure becomes
// Success=false with Error set, so the surrounding loop can always continue.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Success    bool            `json:"success"`
	ObjectID   string          `json:"object_id,omitempty"`
	ObjectIDs  []string        `json:"object_ids,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Transcript renders the result as the tool-role message content fed back to
// the model.
func (r *ToolResult) Transcript() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(b)
}

// ToolRunner executes tool calls against one command's canvas state and
// announces the available catalog.
type ToolRunner interface {
	// Run executes a single call. The returned result is never nil.
	Run(ctx context.Context, call ToolCall) *ToolResult
	// Schemas returns the catalog announced to the model, optionally
	// filtered to an allowed subset (nil means the full catalog).
	Schemas(allowed []string) []ToolSchema
	// ParallelSafe reports whether a tool may run concurrently with other
	// parallel-safe calls in the same batch.
	ParallelSafe(name string) bool
}
