package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"boardpilot/internal/domain"
)

type engineHarness struct {
	engine  *Engine
	store   *mockJobStore
	metrics *Metrics
	runner  domain.ToolRunner
}

func newEngineHarness(canvas *mockCanvas, models ModelRouter, runner domain.ToolRunner) *engineHarness {
	store := newMockJobStore()
	metrics := NewMetrics()
	engine := NewEngine(EngineDeps{
		Canvas:    canvas,
		Jobs:      NewJobManager(store, testLogger()),
		Models:    models,
		Limiter:   NewRateLimitService(100, 0),
		Metrics:   metrics,
		NewRunner: func(domain.CommandRequest, []domain.Object, []domain.Connector) domain.ToolRunner { return runner },
		Logger:    testLogger(),
	})
	return &engineHarness{engine: engine, store: store, metrics: metrics, runner: runner}
}

func commandCount(snap MetricsSnapshot, path, status string) int64 {
	for _, c := range snap.Commands {
		if c.Path == path && c.Status == status {
			return c.Count
		}
	}
	return 0
}

func fallbackCount(snap MetricsSnapshot, path string) int64 {
	for _, f := range snap.Fallbacks {
		if f.Path == path {
			return f.Count
		}
	}
	return 0
}

func TestEngineFastPathEndToEnd(t *testing.T) {
	canvas := &mockCanvas{
		objects:    []domain.Object{testNote("n1", 0, 0), testNote("n2", 300, 0)},
		connectors: []domain.Connector{{ID: "conn1", CanvasID: "c1", FromID: "n1", ToID: "n2"}},
	}
	provider := &mockProvider{}
	runner := &mockRunner{handler: func(call domain.ToolCall) *domain.ToolResult {
		var args struct {
			Mode string `json:"mode"`
		}
		_ = json.Unmarshal(call.Arguments, &args)
		if call.Name != "bulk_delete" || args.Mode != "all" {
			t.Errorf("unexpected call %s %s", call.Name, call.Arguments)
		}
		return &domain.ToolResult{Success: true, ObjectIDs: []string{"n1", "n2"}}
	}}
	h := newEngineHarness(canvas, &mockModels{fast: provider}, runner)

	res, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "delete everything"})
	requireNoErr(t, err)

	if !res.Success || res.Message != "Deleted all 2 objects and 1 connectors." {
		t.Errorf("result = %+v", res)
	}
	if res.ModelTier != domain.TierFastPath || res.RouteSource != domain.RouteSourcePattern {
		t.Errorf("tier = %q source = %q", res.ModelTier, res.RouteSource)
	}
	if provider.calls() != 0 {
		t.Errorf("fast path must not call the model, calls = %d", provider.calls())
	}

	job := h.store.job("c1", "j1")
	if job == nil || job.Status != domain.JobCompleted || job.EndVersion != 1 {
		t.Errorf("job = %+v", job)
	}
	if got := commandCount(h.metrics.Snapshot(), "fast-path", "success"); got != 1 {
		t.Errorf("fast-path success count = %d", got)
	}
}

func TestEngineCachedDuplicateSubmission(t *testing.T) {
	canvas := &mockCanvas{objects: []domain.Object{testNote("n1", 0, 0)}}
	runner := &mockRunner{handler: func(domain.ToolCall) *domain.ToolResult {
		return &domain.ToolResult{Success: true, ObjectIDs: []string{"n1"}}
	}}
	h := newEngineHarness(canvas, &mockModels{fast: &mockProvider{}}, runner)
	req := domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "delete everything"}

	first, err := h.engine.SubmitCommand(context.Background(), req)
	requireNoErr(t, err)
	callsAfterFirst := len(runner.calls())

	second, err := h.engine.SubmitCommand(context.Background(), req)
	requireNoErr(t, err)

	if second.ModelTier != domain.TierCached {
		t.Errorf("tier = %q, want cached", second.ModelTier)
	}
	if second.Message != first.Message {
		t.Errorf("cached message = %q, want %q", second.Message, first.Message)
	}
	if got := len(runner.calls()); got != callsAfterFirst {
		t.Errorf("duplicate submission re-executed tools: %d calls", got)
	}
	if got := commandCount(h.metrics.Snapshot(), "cached", "success"); got != 1 {
		t.Errorf("cached count = %d", got)
	}
}

func TestEngineRejectsInvalidRequests(t *testing.T) {
	h := newEngineHarness(&mockCanvas{}, &mockModels{fast: &mockProvider{}}, &mockRunner{})

	_, err := h.engine.SubmitCommand(context.Background(), domain.CommandRequest{CanvasID: "c1", Command: "   "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("blank command err = %v", err)
	}
	_, err = h.engine.SubmitCommand(context.Background(), domain.CommandRequest{Command: "add a note"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing canvas err = %v", err)
	}
}

func TestEngineRateLimit(t *testing.T) {
	canvas := &mockCanvas{objects: []domain.Object{testNote("n1", 0, 0)}}
	runner := &mockRunner{handler: func(domain.ToolCall) *domain.ToolResult {
		return &domain.ToolResult{Success: true, ObjectIDs: []string{"n1"}}
	}}
	h := newEngineHarness(canvas, &mockModels{fast: &mockProvider{}}, runner)
	h.engine.deps.Limiter = NewRateLimitService(1, 0)

	_, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", Command: "delete everything"})
	requireNoErr(t, err)

	// No user id: both submissions share the anonymous bucket.
	_, err = h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j2", Command: "delete everything"})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Fatalf("err = %v, want rate limit", err)
	}
	if h.store.job("c1", "j2") != nil {
		t.Error("rejected command must not create a job")
	}
	if got := commandCount(h.metrics.Snapshot(), "rate-limit", "rejected"); got != 1 {
		t.Errorf("rejected count = %d", got)
	}
}

func TestEngineTemplatePath(t *testing.T) {
	provider := &mockProvider{replies: []mockReply{{resp: textResponse(`{"items":{}}`)}}}
	runner := mintingRunner()
	h := newEngineHarness(&mockCanvas{}, &mockModels{fast: provider}, runner)

	res, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "create a swot analysis"})
	requireNoErr(t, err)

	if res.Message != "Created the SWOT Analysis template with 4 objects." {
		t.Errorf("message = %q", res.Message)
	}
	if res.ModelTier != domain.TierTemplate || res.ToolCalls != 4 {
		t.Errorf("result = %+v", res)
	}
	if got := commandCount(h.metrics.Snapshot(), "template", "success"); got != 1 {
		t.Errorf("template success count = %d", got)
	}
}

func TestEngineUnregisteredTemplateFallsThrough(t *testing.T) {
	// lean_canvas routes as a template but has no layout; the general loop
	// picks the command up.
	provider := &mockProvider{replies: []mockReply{
		{resp: toolResponse(tc("t1", "create_frame", `{"title":"Problem"}`))},
	}}
	runner := mintingRunner()
	h := newEngineHarness(&mockCanvas{}, &mockModels{fast: provider}, runner)

	res, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "create a lean canvas"})
	requireNoErr(t, err)

	if !res.Success || res.Message != "Done: created 1 objects." {
		t.Errorf("result = %+v", res)
	}
	if got := fallbackCount(h.metrics.Snapshot(), "template"); got != 1 {
		t.Errorf("template fallback count = %d", got)
	}
	if got := commandCount(h.metrics.Snapshot(), "general", "success"); got != 1 {
		t.Errorf("general success count = %d", got)
	}
}

func TestEnginePlannerPath(t *testing.T) {
	planJSON, _ := json.Marshal(&domain.Plan{
		Summary: "Grouped 2 notes into a Bugs frame.",
		NewFrames: []domain.PlanFrame{{Key: "k1", Title: "Bugs", EstimatedChildren: 2}},
		Moves: []domain.PlanMove{
			{ObjectID: "n1", Target: "k1"},
			{ObjectID: "n2", Target: "k1"},
		},
		TidyFrames: []string{"k1"},
	})
	strong := &mockProvider{replies: []mockReply{{resp: textResponse(string(planJSON))}}}
	canvas := &mockCanvas{objects: []domain.Object{testNote("n1", 0, 0), testNote("n2", 300, 0)}}
	runner := planRunner(nil)
	h := newEngineHarness(canvas, &mockModels{fast: &mockProvider{}, strong: strong}, runner)

	res, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "group the notes into a bugs frame"})
	requireNoErr(t, err)

	if res.Message != "Grouped 2 notes into a Bugs frame." {
		t.Errorf("message = %q", res.Message)
	}
	if res.ModelTier != string(domain.TierStrong) {
		t.Errorf("tier = %q", res.ModelTier)
	}
	if len(res.CreatedIDs) != 1 || len(res.UpdatedIDs) != 2 {
		t.Errorf("result ids = %+v", res)
	}
	if got := commandCount(h.metrics.Snapshot(), "planner", "success"); got != 1 {
		t.Errorf("planner success count = %d", got)
	}
}

func TestEngineRejectedPlanFallsThroughToLoop(t *testing.T) {
	overLimit := &domain.Plan{Summary: "too much"}
	for i := 0; i < 150; i++ {
		overLimit.NewLeaves = append(overLimit.NewLeaves, domain.PlanLeaf{Type: domain.TypeNote})
	}
	planJSON, _ := json.Marshal(overLimit)
	strong := &mockProvider{replies: []mockReply{
		{resp: textResponse(string(planJSON))},
		{resp: textResponse("That would create too many objects; I grouped the existing notes instead.")},
	}}
	canvas := &mockCanvas{objects: []domain.Object{testNote("n1", 0, 0)}}
	h := newEngineHarness(canvas, &mockModels{fast: &mockProvider{}, strong: strong}, mintingRunner())

	res, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "organize the board"})
	requireNoErr(t, err)

	if !res.Success || !strings.Contains(res.Message, "grouped the existing notes") {
		t.Errorf("result = %+v", res)
	}
	if got := fallbackCount(h.metrics.Snapshot(), "planner"); got != 1 {
		t.Errorf("planner fallback count = %d", got)
	}
}

func TestEngineStoreReadFailure(t *testing.T) {
	canvas := &mockCanvas{listErr: errors.New("connection refused")}
	h := newEngineHarness(canvas, &mockModels{fast: &mockProvider{}}, &mockRunner{})

	res, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "add a note"})
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("err = %v, want store failure", err)
	}
	if res == nil || res.Success {
		t.Errorf("result = %+v", res)
	}

	job := h.store.job("c1", "j1")
	if job == nil || job.Status != domain.JobFailed {
		t.Errorf("job = %+v", job)
	}
	if got := commandCount(h.metrics.Snapshot(), "engine", "failed"); got != 1 {
		t.Errorf("engine failed count = %d", got)
	}
}

func TestEngineFocusRect(t *testing.T) {
	provider := &mockProvider{replies: []mockReply{
		{resp: toolResponse(tc("t1", "create_leaf", `{"type":"note"}`))},
	}}
	rect := domain.Rect{X: 10, Y: 20, Width: 300, Height: 200}
	runner := &boundsRunner{mockRunner: mintingRunner(), rect: rect}
	h := newEngineHarness(&mockCanvas{}, &mockModels{fast: provider}, runner)

	res, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "put a fresh idea on the board"})
	requireNoErr(t, err)

	if res.Focus == nil || *res.Focus != rect {
		t.Errorf("focus = %+v, want %+v", res.Focus, rect)
	}
}

func TestEngineJobProgressTrail(t *testing.T) {
	canvas := &mockCanvas{objects: []domain.Object{testNote("n1", 0, 0)}}
	runner := &mockRunner{handler: func(domain.ToolCall) *domain.ToolResult {
		return &domain.ToolResult{Success: true, ObjectIDs: []string{"n1"}}
	}}
	h := newEngineHarness(canvas, &mockModels{fast: &mockProvider{}}, runner)

	_, err := h.engine.SubmitCommand(context.Background(),
		domain.CommandRequest{CanvasID: "c1", JobID: "j1", UserID: "u1", Command: "delete everything"})
	requireNoErr(t, err)

	job := h.store.job("c1", "j1")
	var notes []string
	for _, p := range job.Progress {
		notes = append(notes, p.Note)
	}
	if len(notes) < 4 {
		t.Fatalf("trail = %v", notes)
	}
	if notes[0] != "reading canvas" || notes[len(notes)-1] != "completed" {
		t.Errorf("trail = %v", notes)
	}
	if !strings.Contains(strings.Join(notes, "|"), "routed: delete (fast tier)") {
		t.Errorf("trail missing route note: %v", notes)
	}
}
