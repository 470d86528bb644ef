package console

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"boardpilot/internal/domain"
	"boardpilot/internal/usecase"
)

// commandTimeout bounds one engine call issued from the REPL.
const commandTimeout = 2 * time.Minute

// submitCmd runs the engine in a background goroutine and delivers the
// outcome as a resultMsg tagged with the request generation.
func submitCmd(engine CommandService, req domain.CommandRequest, gen uint64) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		res, err := engine.SubmitCommand(ctx, req)
		return resultMsg{res: res, err: err, elapsed: time.Since(start), gen: gen}
	}
}

// summaryCmd reads the canvas and builds the full board digest for /summary.
func summaryCmd(canvas domain.CanvasStore, canvasID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		objects, err := canvas.ListObjects(ctx, canvasID)
		if err != nil {
			return summaryMsg{err: err}
		}
		connectors, err := canvas.ListConnectors(ctx, canvasID)
		if err != nil {
			return summaryMsg{err: err}
		}
		digest := usecase.BuildDigest(objects, usecase.DigestOptions{
			Scope:          domain.ScopeBoard,
			ConnectorCount: len(connectors),
			IncludeDetail:  true,
		})
		return summaryMsg{digest: digest}
	}
}
