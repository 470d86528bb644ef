package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"boardpilot/internal/domain"
	"boardpilot/internal/usecase"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// submitRequest is the POST /api/v1/canvases/{id}/commands body. The canvas
// comes from the path; job_id is the optional idempotency key.
type submitRequest struct {
	Command     string          `json:"command"`
	UserID      string          `json:"user_id"`
	JobID       string          `json:"job_id"`
	Viewport    domain.Viewport `json:"viewport"`
	SelectedIDs []string        `json:"selected_ids"`
}

type submitResponse struct {
	JobID  string                  `json:"job_id"`
	Result *domain.ExecutionResult `json:"result"`
}

// errorResponse carries the failure code plus any partial result so callers
// can reconcile work that landed before the error.
type errorResponse struct {
	Error  string                  `json:"error"`
	Code   domain.ErrorCode        `json:"code"`
	JobID  string                  `json:"job_id,omitempty"`
	Result *domain.ExecutionResult `json:"result,omitempty"`
}

type objectsResponse struct {
	CanvasID   string             `json:"canvas_id"`
	Objects    []domain.Object    `json:"objects"`
	Connectors []domain.Connector `json:"connectors"`
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	canvasID := r.PathValue("id")

	var body submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{
			Error: "invalid JSON body: " + err.Error(),
			Code:  domain.CodeInvalidInput,
		})
		return
	}

	req := domain.CommandRequest{
		Command:     strings.TrimSpace(body.Command),
		CanvasID:    canvasID,
		UserID:      body.UserID,
		Viewport:    body.Viewport,
		SelectedIDs: body.SelectedIDs,
		JobID:       body.JobID,
	}
	// Assign the idempotency key here so the response can echo it; the
	// engine would otherwise generate one invisible to the caller.
	if req.JobID == "" {
		req.JobID = usecase.NewJobID()
	}

	res, err := s.deps.Engine.SubmitCommand(r.Context(), req)
	if err != nil {
		s.deps.Logger.Warn("command failed", "canvas_id", canvasID, "job_id", req.JobID, "error", err)
		writeError(w, httpStatusOf(err), errorResponse{
			Error:  err.Error(),
			Code:   domain.ErrorCodeOf(err),
			JobID:  req.JobID,
			Result: res,
		})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{JobID: req.JobID, Result: res})
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	canvasID := r.PathValue("id")

	objects, err := s.deps.Canvas.ListObjects(r.Context(), canvasID)
	if err != nil {
		writeError(w, httpStatusOf(err), errorResponse{Error: err.Error(), Code: domain.ErrorCodeOf(err)})
		return
	}
	connectors, err := s.deps.Canvas.ListConnectors(r.Context(), canvasID)
	if err != nil {
		writeError(w, httpStatusOf(err), errorResponse{Error: err.Error(), Code: domain.ErrorCodeOf(err)})
		return
	}
	if objects == nil {
		objects = []domain.Object{}
	}
	if connectors == nil {
		connectors = []domain.Connector{}
	}
	writeJSON(w, http.StatusOK, objectsResponse{CanvasID: canvasID, Objects: objects, Connectors: connectors})
}

// httpStatusOf maps domain sentinels to HTTP status codes.
func httpStatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrProviderError), errors.Is(err, domain.ErrProviderNotFound):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}
