package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/tracer"
)

// LoopOptions are the orchestration budgets. Zero values fall back to the
// defaults below.
type LoopOptions struct {
	MaxIterations     int
	MaxToolCalls      int
	MaxCreatedObjects int
	CallTimeout       time.Duration
}

func (o *LoopOptions) defaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 6
	}
	if o.MaxToolCalls <= 0 {
		o.MaxToolCalls = 50
	}
	if o.MaxCreatedObjects <= 0 {
		o.MaxCreatedObjects = 120
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
}

// Loop is the general orchestration path: a bounded tool-calling conversation
// between the routed model and the canvas tools.
type Loop struct {
	models ModelRouter
	opts   LoopOptions
	logger *slog.Logger
}

// NewLoop creates the general execution loop.
func NewLoop(models ModelRouter, opts LoopOptions, logger *slog.Logger) *Loop {
	opts.defaults()
	return &Loop{models: models, opts: opts, logger: logger}
}

// workTally accumulates object IDs touched across iterations.
type workTally struct {
	created []string
	updated []string
	deleted []string
}

func (w *workTally) total() int { return len(w.created) + len(w.updated) + len(w.deleted) }

// record buckets one tool result by the tool's effect. Failed calls record
// nothing; the model sees the failure in the transcript and decides.
func (w *workTally) record(name string, res *domain.ToolResult) {
	if !res.Success {
		return
	}
	ids := res.ObjectIDs
	if len(ids) == 0 && res.ObjectID != "" {
		ids = []string{res.ObjectID}
	}
	switch name {
	case "create_leaf", "create_frame", "create_connector", "bulk_create":
		w.created = append(w.created, ids...)
	case "bulk_delete":
		w.deleted = append(w.deleted, ids...)
	case "move_object", "resize_object", "update_text", "change_color",
		"add_to_frame", "remove_from_frame", "arrange_objects", "rearrange_frame":
		w.updated = append(w.updated, ids...)
	}
}

// describe renders the tally as a user-facing sentence.
func (w *workTally) describe() string {
	var parts []string
	if n := len(w.created); n > 0 {
		parts = append(parts, fmt.Sprintf("created %d", n))
	}
	if n := len(w.updated); n > 0 {
		parts = append(parts, fmt.Sprintf("updated %d", n))
	}
	if n := len(w.deleted); n > 0 {
		parts = append(parts, fmt.Sprintf("deleted %d", n))
	}
	if len(parts) == 0 {
		return "No changes were made."
	}
	return "Done: " + strings.Join(parts, ", ") + " objects."
}

// Run drives the conversation until the model answers without tool calls or a
// budget is exhausted. The returned result always carries the IDs of the work
// actually performed, even when err is non-nil.
func (l *Loop) Run(ctx context.Context, req domain.CommandRequest, decision domain.RouteDecision, digest string, runner domain.ToolRunner, progress func(string)) (*domain.ExecutionResult, error) {
	ctx, span := tracer.StartSpan(ctx, "loop.run",
		trace.WithAttributes(
			tracer.StringAttr("loop.intent", string(decision.Intent)),
			tracer.StringAttr("loop.tier", string(decision.Tier)),
		))
	defer span.End()

	if progress == nil {
		progress = func(string) {}
	}

	provider, model, err := l.models.Route(decision.Tier)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: loopSystemPrompt(digest, decision, req.SelectedIDs), Timestamp: time.Now()},
		{Role: domain.RoleUser, Content: req.Command, Timestamp: time.Now()},
	}
	schemas := runner.Schemas(decision.AllowedTools)

	var (
		tally      workTally
		totalUsage domain.Usage
		callCount  int
		budgetHit  bool
	)

	for i := 0; i < l.opts.MaxIterations && !budgetHit; i++ {
		span.AddEvent("loop.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		toolChoice := domain.ToolChoiceAuto
		if i == 0 && decision.Intent != domain.IntentQuery {
			toolChoice = domain.ToolChoiceRequired
		}

		callCtx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
		resp, err := provider.Chat(callCtx, domain.ChatRequest{
			Model:      model,
			Messages:   messages,
			Tools:      schemas,
			ToolChoice: toolChoice,
		})
		cancel()
		if err != nil {
			tracer.RecordError(span, err)
			if errors.Is(err, context.DeadlineExceeded) {
				err = domain.NewSubSystemError("model", "Loop.Run", domain.ErrTimeout, "model call timed out")
			}
			return l.abort(&tally, totalUsage, callCount, err)
		}
		totalUsage.Add(resp.Usage)

		msg := resp.Message
		messages = append(messages, msg)

		l.logger.Debug("loop response",
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls means the model is done talking to the canvas.
		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			return l.finish(&tally, totalUsage, callCount, msg.Content), nil
		}

		calls := msg.ToolCalls
		if remaining := l.opts.MaxToolCalls - callCount; len(calls) > remaining {
			calls = calls[:remaining]
			budgetHit = true
		}

		results := l.executeBatch(ctx, runner, calls)

		roundOK := true
		for idx, res := range results {
			callCount++
			tally.record(calls[idx].Name, res)
			if !res.Success {
				roundOK = false
			}
			messages = append(messages, domain.Message{
				Role:       domain.RoleTool,
				Name:       calls[idx].Name,
				Content:    res.Transcript(),
				ToolCallID: calls[idx].ID,
				Timestamp:  time.Now(),
			})
		}
		progress(fmt.Sprintf("iteration %d: %d tool calls", i+1, len(calls)))

		if callCount >= l.opts.MaxToolCalls {
			budgetHit = true
		}
		if len(tally.created) >= l.opts.MaxCreatedObjects {
			budgetHit = true
		}

		// Simple creations confirmed by their tool results skip the final
		// model round; the canned summary is cheaper than another call.
		if i == 0 && decision.EarlyExit && roundOK && !budgetHit &&
			len(tally.created)+len(tally.deleted) > 0 {
			tracer.SetOK(span)
			return l.finish(&tally, totalUsage, callCount, ""), nil
		}
	}

	if tally.total() > 0 {
		l.logger.Warn("loop budget reached",
			"tool_calls", callCount,
			"created", len(tally.created),
		)
		tracer.SetOK(span)
		res := l.finish(&tally, totalUsage, callCount, "")
		res.Message = strings.TrimSuffix(res.Message, ".") + " before reaching the execution budget."
		return res, nil
	}

	err = domain.NewSubSystemError("orchestrator", "Loop.Run", domain.ErrLimitReached, "no progress within iteration budget")
	tracer.RecordError(span, err)
	return nil, err
}

// executeBatch runs one round of tool calls, in parallel only when every call
// in the batch is parallel-safe. Results keep the call order.
func (l *Loop) executeBatch(ctx context.Context, runner domain.ToolRunner, calls []domain.ToolCall) []*domain.ToolResult {
	results := make([]*domain.ToolResult, len(calls))

	parallel := len(calls) > 1
	for _, c := range calls {
		if !runner.ParallelSafe(c.Name) {
			parallel = false
			break
		}
	}

	if parallel {
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				results[idx] = runner.Run(ctx, c)
			}(i, call)
		}
		wg.Wait()
		return results
	}

	for i, call := range calls {
		results[i] = runner.Run(ctx, call)
	}
	return results
}

func (l *Loop) finish(tally *workTally, usage domain.Usage, callCount int, message string) *domain.ExecutionResult {
	if message == "" {
		message = tally.describe()
	}
	return &domain.ExecutionResult{
		Success:      true,
		Message:      message,
		CreatedIDs:   tally.created,
		UpdatedIDs:   dedupeIDs(tally.updated),
		DeletedIDs:   tally.deleted,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		ToolCalls:    callCount,
	}
}

// abort returns the model error together with whatever the loop already did,
// so the job record can report partial changes.
func (l *Loop) abort(tally *workTally, usage domain.Usage, callCount int, err error) (*domain.ExecutionResult, error) {
	if tally.total() == 0 {
		return nil, err
	}
	res := l.finish(tally, usage, callCount, "The model became unavailable; changes made so far were kept.")
	res.Success = false
	return res, err
}

func dedupeIDs(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
