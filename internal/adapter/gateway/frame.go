package gateway

import (
	"time"

	"boardpilot/internal/domain"
)

// EventType identifies the kind of frame pushed over the progress websocket.
type EventType string

const (
	// EventHello is sent once, immediately after a successful subscribe.
	EventHello EventType = "hello"
	// EventProgress carries one job progress update.
	EventProgress EventType = "progress"
)

// Event is the envelope streamed to websocket clients.
type Event struct {
	Type     EventType        `json:"type"`
	CanvasID string           `json:"canvas_id,omitempty"`
	JobID    string           `json:"job_id,omitempty"`
	Status   domain.JobStatus `json:"status,omitempty"`
	Note     string           `json:"note,omitempty"`
	At       time.Time        `json:"at,omitempty"`
}
