package usecase

import (
	"sort"
	"sync"
)

// Metrics is the process-scoped counter service. It is injected rather than
// ambient so tests can construct isolated instances and Reset between cases;
// the gateway renders a Snapshot as Prometheus text.
type Metrics struct {
	mu           sync.Mutex
	commands     map[commandKey]int64
	fallbacks    map[string]int64
	toolCalls    int64
	inputTokens  int64
	outputTokens int64
}

type commandKey struct {
	Path   string
	Status string
}

// NewMetrics creates an empty metrics service.
func NewMetrics() *Metrics {
	return &Metrics{
		commands:  make(map[commandKey]int64),
		fallbacks: make(map[string]int64),
	}
}

// RecordCommand counts one finished command for the given execution path and
// status, accumulating its tool-call and token usage.
func (m *Metrics) RecordCommand(path, status string, toolCalls, inputTokens, outputTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[commandKey{Path: path, Status: status}]++
	m.toolCalls += int64(toolCalls)
	m.inputTokens += int64(inputTokens)
	m.outputTokens += int64(outputTokens)
}

// RecordFallback counts one path falling through to the next in the chain.
func (m *Metrics) RecordFallback(fromPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[fromPath]++
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = make(map[commandKey]int64)
	m.fallbacks = make(map[string]int64)
	m.toolCalls = 0
	m.inputTokens = 0
	m.outputTokens = 0
}

// CommandCount is one (path, status) command counter in a snapshot.
type CommandCount struct {
	Path   string
	Status string
	Count  int64
}

// FallbackCount is one per-path fallback counter in a snapshot.
type FallbackCount struct {
	Path  string
	Count int64
}

// MetricsSnapshot is a point-in-time copy of every counter, ordered
// deterministically for rendering.
type MetricsSnapshot struct {
	Commands     []CommandCount
	Fallbacks    []FallbackCount
	ToolCalls    int64
	InputTokens  int64
	OutputTokens int64
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		ToolCalls:    m.toolCalls,
		InputTokens:  m.inputTokens,
		OutputTokens: m.outputTokens,
	}
	for k, v := range m.commands {
		snap.Commands = append(snap.Commands, CommandCount{Path: k.Path, Status: k.Status, Count: v})
	}
	sort.Slice(snap.Commands, func(i, j int) bool {
		if snap.Commands[i].Path != snap.Commands[j].Path {
			return snap.Commands[i].Path < snap.Commands[j].Path
		}
		return snap.Commands[i].Status < snap.Commands[j].Status
	})
	for k, v := range m.fallbacks {
		snap.Fallbacks = append(snap.Fallbacks, FallbackCount{Path: k, Count: v})
	}
	sort.Slice(snap.Fallbacks, func(i, j int) bool {
		return snap.Fallbacks[i].Path < snap.Fallbacks[j].Path
	})
	return snap
}
