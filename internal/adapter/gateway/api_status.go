package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  ServiceStatus  `json:"service"`
	Commands CommandsStatus `json:"commands"`
	Streams  StreamsStatus  `json:"streams"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// CommandsStatus aggregates command outcomes across every execution path.
type CommandsStatus struct {
	Succeeded    int64 `json:"succeeded"`
	Failed       int64 `json:"failed"`
	Cached       int64 `json:"cached"`
	Rejected     int64 `json:"rejected"`
	ToolCalls    int64 `json:"tool_calls"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// StreamsStatus holds websocket stream info.
type StreamsStatus struct {
	Subscribers int `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Metrics.Snapshot()

	resp := StatusResponse{
		Service: ServiceStatus{
			Name:          "boardpilot",
			Version:       s.deps.Version,
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		},
		Commands: CommandsStatus{
			ToolCalls:    snap.ToolCalls,
			InputTokens:  snap.InputTokens,
			OutputTokens: snap.OutputTokens,
		},
		Streams: StreamsStatus{
			Subscribers: s.deps.Hub.SubscriberCount(),
		},
	}
	for _, c := range snap.Commands {
		switch c.Status {
		case "success":
			// Cache hits are successes too, but reported separately.
			if c.Path == "cached" {
				resp.Commands.Cached += c.Count
			} else {
				resp.Commands.Succeeded += c.Count
			}
		case "failed":
			resp.Commands.Failed += c.Count
		case "rejected":
			resp.Commands.Rejected += c.Count
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
