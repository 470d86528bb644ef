package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// handleMetrics serves GET /metrics in Prometheus text format. The counters
// are few enough that rendering them by hand beats pulling in the full
// prometheus client.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	snap := s.deps.Metrics.Snapshot()

	// Command metrics.
	fmt.Fprintf(w, "# HELP boardpilot_commands_total Commands processed, by execution path and outcome.\n")
	fmt.Fprintf(w, "# TYPE boardpilot_commands_total counter\n")
	for _, c := range snap.Commands {
		fmt.Fprintf(w, "boardpilot_commands_total{path=%q,status=%q} %d\n", c.Path, c.Status, c.Count)
	}

	fmt.Fprintf(w, "# HELP boardpilot_path_fallbacks_total Commands that fell through an execution path to the next.\n")
	fmt.Fprintf(w, "# TYPE boardpilot_path_fallbacks_total counter\n")
	for _, f := range snap.Fallbacks {
		fmt.Fprintf(w, "boardpilot_path_fallbacks_total{path=%q} %d\n", f.Path, f.Count)
	}

	fmt.Fprintf(w, "# HELP boardpilot_tool_calls_total Total canvas tool invocations.\n")
	fmt.Fprintf(w, "# TYPE boardpilot_tool_calls_total counter\n")
	fmt.Fprintf(w, "boardpilot_tool_calls_total %d\n", snap.ToolCalls)

	// Token metrics.
	fmt.Fprintf(w, "# HELP boardpilot_tokens_total Model tokens consumed, by direction.\n")
	fmt.Fprintf(w, "# TYPE boardpilot_tokens_total counter\n")
	fmt.Fprintf(w, "boardpilot_tokens_total{direction=\"input\"} %d\n", snap.InputTokens)
	fmt.Fprintf(w, "boardpilot_tokens_total{direction=\"output\"} %d\n", snap.OutputTokens)

	// Stream metrics.
	fmt.Fprintf(w, "# HELP boardpilot_ws_subscribers Connected progress stream subscribers.\n")
	fmt.Fprintf(w, "# TYPE boardpilot_ws_subscribers gauge\n")
	fmt.Fprintf(w, "boardpilot_ws_subscribers %d\n", s.deps.Hub.SubscriberCount())

	// Uptime.
	fmt.Fprintf(w, "# HELP boardpilot_uptime_seconds Seconds since the service started.\n")
	fmt.Fprintf(w, "# TYPE boardpilot_uptime_seconds gauge\n")
	fmt.Fprintf(w, "boardpilot_uptime_seconds %.0f\n", time.Since(s.startTime).Seconds())

	// Go runtime metrics.
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
	fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)

	fmt.Fprintf(w, "# HELP go_memstats_sys_bytes Total bytes of memory obtained from the OS.\n")
	fmt.Fprintf(w, "# TYPE go_memstats_sys_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_sys_bytes %d\n", mem.Sys)

	fmt.Fprintf(w, "# HELP go_gc_duration_seconds Total GC pause duration.\n")
	fmt.Fprintf(w, "# TYPE go_gc_duration_seconds gauge\n")
	fmt.Fprintf(w, "go_gc_duration_seconds %f\n", float64(mem.PauseTotalNs)/1e9)
}
