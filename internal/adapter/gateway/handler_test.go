package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"boardpilot/internal/domain"
	"boardpilot/internal/usecase"
)

// --- Mocks ---

type mockEngine struct {
	mu   sync.Mutex
	reqs []domain.CommandRequest
	res  *domain.ExecutionResult
	err  error
}

func (e *mockEngine) SubmitCommand(_ context.Context, req domain.CommandRequest) (*domain.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return e.res, e.err
}

func (e *mockEngine) request(i int) domain.CommandRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reqs[i]
}

type mockCanvas struct {
	objects    []domain.Object
	connectors []domain.Connector
	listErr    error
}

func (c *mockCanvas) ListObjects(_ context.Context, _ string) ([]domain.Object, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.objects, nil
}

func (c *mockCanvas) GetObject(_ context.Context, _, _ string) (*domain.Object, error) {
	return nil, domain.ErrNotFound
}
func (c *mockCanvas) InsertObject(_ context.Context, _ *domain.Object) error { return nil }
func (c *mockCanvas) UpdateObject(_ context.Context, _ *domain.Object) error { return nil }
func (c *mockCanvas) DeleteObject(_ context.Context, _, _ string) error      { return nil }

func (c *mockCanvas) InsertConnector(_ context.Context, _ *domain.Connector) error { return nil }
func (c *mockCanvas) DeleteConnector(_ context.Context, _, _ string) error         { return nil }
func (c *mockCanvas) DeleteConnectorsForObject(_ context.Context, _, _ string) error {
	return nil
}

func (c *mockCanvas) ListConnectors(_ context.Context, _ string) ([]domain.Connector, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.connectors, nil
}

// --- Helpers ---

const testToken = "test-token"

func newTestServer(engine CommandService, canvas domain.CanvasStore) (*Server, http.Handler) {
	deps := ServerDeps{
		Engine:  engine,
		Canvas:  canvas,
		Metrics: usecase.NewMetrics(),
		Auth:    NewStaticTokenAuth([]TokenEntry{{Name: "tester", Token: testToken}}),
		Logger:  testLogger(),
		Version: "test",
	}
	srv := NewServer(deps, "127.0.0.1:0")
	return srv, srv.routes(context.Background())
}

func doRequest(handler http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rd)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

// --- Tests ---

func TestSubmitCommand(t *testing.T) {
	engine := &mockEngine{res: &domain.ExecutionResult{
		Success:    true,
		Message:    "Created 1 note.",
		CreatedIDs: []string{"obj-1"},
		ModelTier:  "fast",
	}}
	_, handler := newTestServer(engine, &mockCanvas{})

	body := `{"command":"  add a note  ","user_id":"u1","job_id":"job-key","viewport":{"x":0,"y":0,"width":1920,"height":1080},"selected_ids":["o9"]}`
	w := doRequest(handler, "POST", "/api/v1/canvases/c1/commands", body, testToken)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID != "job-key" {
		t.Errorf("JobID = %q, want job-key", resp.JobID)
	}
	if resp.Result == nil || resp.Result.Message != "Created 1 note." {
		t.Errorf("Result = %+v", resp.Result)
	}

	req := engine.request(0)
	if req.CanvasID != "c1" {
		t.Errorf("CanvasID = %q, want c1", req.CanvasID)
	}
	if req.Command != "add a note" {
		t.Errorf("Command = %q, want trimmed", req.Command)
	}
	if req.JobID != "job-key" || req.UserID != "u1" {
		t.Errorf("JobID/UserID = %q/%q", req.JobID, req.UserID)
	}
	if req.Viewport.Width != 1920 {
		t.Errorf("Viewport.Width = %v", req.Viewport.Width)
	}
	if len(req.SelectedIDs) != 1 || req.SelectedIDs[0] != "o9" {
		t.Errorf("SelectedIDs = %v", req.SelectedIDs)
	}
}

func TestSubmitCommandGeneratesJobID(t *testing.T) {
	engine := &mockEngine{res: &domain.ExecutionResult{Success: true, Message: "ok"}}
	_, handler := newTestServer(engine, &mockCanvas{})

	w := doRequest(handler, "POST", "/api/v1/canvases/c1/commands", `{"command":"add a note"}`, testToken)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.JobID) != 26 {
		t.Errorf("JobID = %q, want generated ULID", resp.JobID)
	}
	if engine.request(0).JobID != resp.JobID {
		t.Error("engine saw a different JobID than the response")
	}
}

func TestSubmitCommandBadJSON(t *testing.T) {
	engine := &mockEngine{}
	_, handler := newTestServer(engine, &mockCanvas{})

	w := doRequest(handler, "POST", "/api/v1/canvases/c1/commands", `{not json`, testToken)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != domain.CodeInvalidInput {
		t.Errorf("Code = %q", resp.Code)
	}
	if len(engine.reqs) != 0 {
		t.Error("engine was called for an undecodable body")
	}
}

func TestSubmitCommandErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   domain.ErrorCode
	}{
		{"rate limit", domain.ErrRateLimit, http.StatusTooManyRequests, domain.CodeRateLimit},
		{"invalid input", domain.NewDomainError("Engine.SubmitCommand", domain.ErrInvalidInput, "command is empty"), http.StatusBadRequest, domain.CodeInvalidInput},
		{"planner timeout", domain.NewSubSystemError("planner", "Planner.Generate", domain.ErrTimeout, "deadline"), http.StatusGatewayTimeout, domain.CodePlannerTimeout},
		{"provider down", domain.NewDomainError("Orchestrator.Run", domain.ErrProviderError, "502 from upstream"), http.StatusBadGateway, domain.CodeProviderError},
		{"store failure", domain.NewSubSystemError("read", "Engine.SubmitCommand", domain.ErrStoreFailure, "db locked"), http.StatusInternalServerError, domain.CodeStoreRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{err: tt.err}
			_, handler := newTestServer(engine, &mockCanvas{})

			w := doRequest(handler, "POST", "/api/v1/canvases/c1/commands", `{"command":"do things"}`, testToken)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", resp.Code, tt.wantCode)
			}
			if resp.Error == "" {
				t.Error("Error message is empty")
			}
			if resp.JobID == "" {
				t.Error("JobID missing from error body")
			}
		})
	}
}

func TestSubmitCommandPartialResultInError(t *testing.T) {
	engine := &mockEngine{
		res: &domain.ExecutionResult{
			Success:    false,
			Message:    "The model became unavailable; changes made so far were kept.",
			CreatedIDs: []string{"obj-1", "obj-2"},
		},
		err: domain.NewDomainError("Orchestrator.Run", domain.ErrProviderError, "model call failed"),
	}
	_, handler := newTestServer(engine, &mockCanvas{})

	w := doRequest(handler, "POST", "/api/v1/canvases/c1/commands", `{"command":"add two notes"}`, testToken)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result == nil {
		t.Fatal("partial result missing from error body")
	}
	if len(resp.Result.CreatedIDs) != 2 {
		t.Errorf("CreatedIDs = %v", resp.Result.CreatedIDs)
	}
}

func TestListObjects(t *testing.T) {
	canvas := &mockCanvas{
		objects: []domain.Object{
			{ID: "o1", CanvasID: "c1", Type: domain.TypeNote, Text: "hello"},
			{ID: "f1", CanvasID: "c1", Type: domain.TypeFrame},
		},
		connectors: []domain.Connector{
			{ID: "conn-1", CanvasID: "c1", FromID: "o1", ToID: "f1", Style: domain.StyleArrow},
		},
	}
	_, handler := newTestServer(&mockEngine{}, canvas)

	w := doRequest(handler, "GET", "/api/v1/canvases/c1/objects", "", testToken)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp objectsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CanvasID != "c1" {
		t.Errorf("CanvasID = %q", resp.CanvasID)
	}
	if len(resp.Objects) != 2 || len(resp.Connectors) != 1 {
		t.Errorf("objects/connectors = %d/%d", len(resp.Objects), len(resp.Connectors))
	}
}

func TestListObjectsEmptyCanvas(t *testing.T) {
	_, handler := newTestServer(&mockEngine{}, &mockCanvas{})

	w := doRequest(handler, "GET", "/api/v1/canvases/c1/objects", "", testToken)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// Empty collections serialize as [] rather than null.
	body := w.Body.String()
	if !strings.Contains(body, `"objects":[]`) || !strings.Contains(body, `"connectors":[]`) {
		t.Errorf("body = %s", body)
	}
}

func TestListObjectsStoreFailure(t *testing.T) {
	canvas := &mockCanvas{listErr: domain.NewSubSystemError("read", "Store.ListObjects", domain.ErrStoreFailure, "disk gone")}
	_, handler := newTestServer(&mockEngine{}, canvas)

	w := doRequest(handler, "GET", "/api/v1/canvases/c1/objects", "", testToken)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != domain.CodeStoreRead {
		t.Errorf("Code = %q", resp.Code)
	}
}

func TestEndpointsRequireAuth(t *testing.T) {
	_, handler := newTestServer(&mockEngine{}, &mockCanvas{})

	paths := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/canvases/c1/commands"},
		{"GET", "/api/v1/canvases/c1/objects"},
		{"GET", "/api/v1/status"},
		{"GET", "/metrics"},
	}
	for _, p := range paths {
		w := doRequest(handler, p.method, p.path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, w.Code)
		}
	}

	w := doRequest(handler, "GET", "/api/v1/status", "", "wrong-token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}
}
