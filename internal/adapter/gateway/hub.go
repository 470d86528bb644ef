package gateway

import (
	"log/slog"
	"sync"

	"boardpilot/internal/domain"
)

// subscriber buffers events for one websocket client.
type subscriber struct {
	canvasID string // "" subscribes to every canvas
	ch       chan Event
}

// ProgressHub fans job progress updates out to websocket subscribers. It
// implements the engine's progress notifier and never blocks it: a client
// that stops draining its buffer loses events, not the engine.
type ProgressHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
}

// NewProgressHub creates an empty hub.
func NewProgressHub(logger *slog.Logger) *ProgressHub {
	return &ProgressHub{logger: logger, subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a client for progress events, optionally filtered to
// one canvas. The returned id releases the subscription via Unsubscribe.
func (h *ProgressHub) Subscribe(canvasID string) (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	sub := &subscriber{canvasID: canvasID, ch: make(chan Event, 64)}
	h.subs[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a client and closes its channel.
func (h *ProgressHub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// SubscriberCount reports how many clients are connected.
func (h *ProgressHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// NotifyProgress delivers one job update to every matching subscriber.
// Full client buffers drop the event.
func (h *ProgressHub) NotifyProgress(canvasID, jobID string, status domain.JobStatus, entry domain.ProgressEntry) {
	event := Event{
		Type:     EventProgress,
		CanvasID: canvasID,
		JobID:    jobID,
		Status:   status,
		Note:     entry.Note,
		At:       entry.At,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.canvasID != "" && sub.canvasID != canvasID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("progress event dropped for slow client", "canvas_id", canvasID, "job_id", jobID)
		}
	}
}
