// Package mcp exposes the command engine to MCP hosts over stdio, so agent
// frameworks can drive a canvas the same way the HTTP gateway does.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"boardpilot/internal/domain"
	"boardpilot/internal/usecase"
)

const serverName = "boardpilot"

// commandTimeout bounds one submit_command call. The slowest engine path is
// the planner followed by execution, well inside this.
const commandTimeout = 2 * time.Minute

// CommandService is the slice of the engine the MCP server needs.
type CommandService interface {
	SubmitCommand(ctx context.Context, req domain.CommandRequest) (*domain.ExecutionResult, error)
}

// Server hosts the MCP stdio server.
type Server struct {
	mcpServer *server.MCPServer
	engine    CommandService
	canvas    domain.CanvasStore
	logger    *slog.Logger
}

// SubmitCommandInput is the submit_command tool input.
type SubmitCommandInput struct {
	CanvasID    string       `json:"canvas_id"`
	Command     string       `json:"command"`
	UserID      string       `json:"user_id,omitempty"`
	Viewport    *domain.Rect `json:"viewport,omitempty"`
	SelectedIDs []string     `json:"selected_ids,omitempty"`
	JobID       string       `json:"job_id,omitempty"`
}

// SubmitCommandResult is the submit_command tool output.
type SubmitCommandResult struct {
	JobID      string   `json:"job_id"`
	Message    string   `json:"message"`
	CreatedIDs []string `json:"created_ids,omitempty"`
	UpdatedIDs []string `json:"updated_ids,omitempty"`
	DeletedIDs []string `json:"deleted_ids,omitempty"`
	ModelTier  string   `json:"model_tier,omitempty"`
	ElapsedMS  int64    `json:"elapsed_ms"`
}

// BoardSummaryInput is the board_summary tool input.
type BoardSummaryInput struct {
	CanvasID string `json:"canvas_id"`
}

// New creates an MCP server with both canvas tools registered.
func New(engine CommandService, canvas domain.CanvasStore, version string, logger *slog.Logger) *Server {
	s := &Server{engine: engine, canvas: canvas, logger: logger}

	mcpServer := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
	)
	mcpServer.AddTool(submitCommandTool(), s.handleSubmitCommand)
	mcpServer.AddTool(boardSummaryTool(), s.handleBoardSummary)
	s.mcpServer = mcpServer
	return s
}

// Serve runs the server on stdio until the host closes the stream.
func (s *Server) Serve() error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

func submitCommandTool() mcp.Tool {
	return mcp.NewTool(
		"submit_command",
		mcp.WithDescription("Run a natural-language command against a canvas and report what changed"),
		mcp.WithString("canvas_id",
			mcp.Required(),
			mcp.Description("Canvas to operate on"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description(`The instruction, e.g. "add a yellow note that says hello"`),
		),
		mcp.WithString("user_id",
			mcp.Description("Caller identity, used for per-user rate limiting"),
		),
		mcp.WithInputSchema[SubmitCommandInput](),
		mcp.WithOutputSchema[SubmitCommandResult](),
	)
}

func boardSummaryTool() mcp.Tool {
	return mcp.NewTool(
		"board_summary",
		mcp.WithDescription("Describe the canvas contents: object counts, frames, and per-object detail"),
		mcp.WithString("canvas_id",
			mcp.Required(),
			mcp.Description("Canvas to describe"),
		),
		mcp.WithInputSchema[BoardSummaryInput](),
	)
}

func (s *Server) handleSubmitCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SubmitCommandInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid submit_command arguments", err), nil
	}
	if input.CanvasID == "" || input.Command == "" {
		return mcp.NewToolResultError("canvas_id and command are required"), nil
	}

	req := domain.CommandRequest{
		Command:     input.Command,
		CanvasID:    input.CanvasID,
		UserID:      input.UserID,
		SelectedIDs: input.SelectedIDs,
		JobID:       input.JobID,
	}
	if input.Viewport != nil {
		req.Viewport = *input.Viewport
	}
	if req.JobID == "" {
		req.JobID = usecase.NewJobID()
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	res, err := s.engine.SubmitCommand(runCtx, req)
	if err != nil {
		s.logger.Warn("mcp command failed", "canvas_id", input.CanvasID, "job_id", req.JobID, "error", err)
		if res != nil {
			return mcp.NewToolResultError(fmt.Sprintf(
				"%v (partial work kept: %d created, %d updated, %d deleted)",
				err, len(res.CreatedIDs), len(res.UpdatedIDs), len(res.DeletedIDs))), nil
		}
		return mcp.NewToolResultErrorFromErr("command failed", err), nil
	}

	return mcp.NewToolResultStructuredOnly(SubmitCommandResult{
		JobID:      req.JobID,
		Message:    res.Message,
		CreatedIDs: res.CreatedIDs,
		UpdatedIDs: res.UpdatedIDs,
		DeletedIDs: res.DeletedIDs,
		ModelTier:  res.ModelTier,
		ElapsedMS:  res.ElapsedMS,
	}), nil
}

func (s *Server) handleBoardSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input BoardSummaryInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid board_summary arguments", err), nil
	}
	if input.CanvasID == "" {
		return mcp.NewToolResultError("canvas_id is required"), nil
	}

	objects, err := s.canvas.ListObjects(ctx, input.CanvasID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list objects failed", err), nil
	}
	connectors, err := s.canvas.ListConnectors(ctx, input.CanvasID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list connectors failed", err), nil
	}

	digest := usecase.BuildDigest(objects, usecase.DigestOptions{
		Scope:          domain.ScopeBoard,
		ConnectorCount: len(connectors),
		IncludeDetail:  true,
	})
	return mcp.NewToolResultText(digest), nil
}
