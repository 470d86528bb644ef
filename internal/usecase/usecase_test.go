package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"boardpilot/internal/domain"
)

// --- Mocks ---

type mockReply struct {
	resp *domain.ChatResponse
	err  error
}

type mockProvider struct {
	mu      sync.Mutex
	replies []mockReply
	reqs    []domain.ChatRequest
	idx     int
}

func (p *mockProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	if p.idx >= len(p.replies) {
		return textResponse("fallback"), nil
	}
	r := p.replies[p.idx]
	p.idx++
	if r.err != nil {
		return nil, r.err
	}
	return r.resp, nil
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

func (p *mockProvider) request(i int) domain.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reqs[i]
}

func textResponse(content string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: content},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolResponse(calls ...domain.ToolCall) *domain.ChatResponse {
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func tc(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// mockModels routes both tiers to scripted providers.
type mockModels struct {
	fast   domain.LLMProvider
	strong domain.LLMProvider
	err    error
}

func (m *mockModels) Route(tier domain.ModelTier) (domain.LLMProvider, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	if tier == domain.TierStrong && m.strong != nil {
		return m.strong, "strong-model", nil
	}
	if m.fast != nil {
		return m.fast, "fast-model", nil
	}
	return nil, "", domain.ErrProviderNotFound
}

// mockRunner records tool calls and answers them through a handler func.
// Without a handler every call succeeds with no ids.
type mockRunner struct {
	mu          sync.Mutex
	recorded    []domain.ToolCall
	handler     func(call domain.ToolCall) *domain.ToolResult
	unsafeNames map[string]bool
	delay       time.Duration
	inflight    int
	maxInflight int
}

func (r *mockRunner) Run(_ context.Context, call domain.ToolCall) *domain.ToolResult {
	r.mu.Lock()
	r.recorded = append(r.recorded, call)
	r.inflight++
	if r.inflight > r.maxInflight {
		r.maxInflight = r.inflight
	}
	h := r.handler
	d := r.delay
	r.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}
	var res *domain.ToolResult
	if h != nil {
		res = h(call)
	} else {
		res = &domain.ToolResult{ToolCallID: call.ID, Success: true}
	}

	r.mu.Lock()
	r.inflight--
	r.mu.Unlock()
	return res
}

func (r *mockRunner) Schemas(allowed []string) []domain.ToolSchema {
	out := make([]domain.ToolSchema, len(allowed))
	for i, name := range allowed {
		out[i] = domain.ToolSchema{Name: name, Parameters: json.RawMessage(`{"type":"object"}`)}
	}
	return out
}

func (r *mockRunner) ParallelSafe(name string) bool { return !r.unsafeNames[name] }

func (r *mockRunner) calls() []domain.ToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ToolCall(nil), r.recorded...)
}

func (r *mockRunner) callNames() []string {
	var names []string
	for _, c := range r.calls() {
		names = append(names, c.Name)
	}
	return names
}

func (r *mockRunner) argsOf(i int) map[string]any {
	calls := r.calls()
	var m map[string]any
	_ = json.Unmarshal(calls[i].Arguments, &m)
	return m
}

// boundsRunner adds a fixed focus rect on top of mockRunner.
type boundsRunner struct {
	*mockRunner
	rect domain.Rect
}

func (b *boundsRunner) BoundsOf(ids []string) (domain.Rect, bool) {
	if len(ids) == 0 {
		return domain.Rect{}, false
	}
	return b.rect, true
}

// mockJobStore is an in-memory domain.JobStore.
type mockJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	versions map[string]int64
	stale    []domain.Job
	loadErr  error
	saveErr  error
	saves    int
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[string]*domain.Job), versions: make(map[string]int64)}
}

func jobKey(canvasID, jobID string) string { return canvasID + "/" + jobID }

func (s *mockJobStore) LoadJob(_ context.Context, canvasID, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	j, ok := s.jobs[jobKey(canvasID, jobID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *j
	return &copied, nil
}

func (s *mockJobStore) SaveJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := *job
	s.jobs[jobKey(job.CanvasID, job.JobID)] = &copied
	return nil
}

func (s *mockJobStore) ListStaleJobs(_ context.Context, _ int64) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Job(nil), s.stale...), nil
}

func (s *mockJobStore) GetVersion(_ context.Context, canvasID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[canvasID], nil
}

func (s *mockJobStore) IncrementVersion(_ context.Context, canvasID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[canvasID]++
	return s.versions[canvasID], nil
}

func (s *mockJobStore) job(canvasID, jobID string) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobKey(canvasID, jobID)]
}

// mockCanvas serves a fixed snapshot; the engine only reads.
type mockCanvas struct {
	objects    []domain.Object
	connectors []domain.Connector
	listErr    error
}

func (c *mockCanvas) ListObjects(_ context.Context, _ string) ([]domain.Object, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]domain.Object(nil), c.objects...), nil
}

func (c *mockCanvas) GetObject(_ context.Context, _, objectID string) (*domain.Object, error) {
	for i := range c.objects {
		if c.objects[i].ID == objectID {
			o := c.objects[i]
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *mockCanvas) InsertObject(_ context.Context, _ *domain.Object) error { return nil }
func (c *mockCanvas) UpdateObject(_ context.Context, _ *domain.Object) error { return nil }
func (c *mockCanvas) DeleteObject(_ context.Context, _, _ string) error      { return nil }

func (c *mockCanvas) ListConnectors(_ context.Context, _ string) ([]domain.Connector, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]domain.Connector(nil), c.connectors...), nil
}

func (c *mockCanvas) InsertConnector(_ context.Context, _ *domain.Connector) error      { return nil }
func (c *mockCanvas) DeleteConnector(_ context.Context, _, _ string) error              { return nil }
func (c *mockCanvas) DeleteConnectorsForObject(_ context.Context, _, _ string) error    { return nil }

// --- Fixtures ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNote(id string, x, y float64) domain.Object {
	return domain.Object{
		ID: id, CanvasID: "c1", Type: domain.TypeNote, Text: "note " + id,
		X: x, Y: y, Width: 200, Height: 140, Color: "#FFF9B1",
	}
}

func testShape(id string, t domain.ObjectType, x, y float64) domain.Object {
	return domain.Object{
		ID: id, CanvasID: "c1", Type: t,
		X: x, Y: y, Width: 140, Height: 140, Color: "#A8D8FF",
	}
}

func testFrame(id, title string, x, y, w, h float64) domain.Object {
	return domain.Object{
		ID: id, CanvasID: "c1", Type: domain.TypeFrame, Text: title,
		X: x, Y: y, Width: w, Height: h,
	}
}

func childNote(id, parentID string, x, y float64) domain.Object {
	o := testNote(id, x, y)
	o.ParentID = parentID
	return o
}

func requireNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
