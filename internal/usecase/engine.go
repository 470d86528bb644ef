package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/tracer"
)

// ModelRouter resolves a tier to a concrete provider and model name. The
// adapter layer implements it with failover and circuit breaking behind the
// same call.
type ModelRouter interface {
	Route(tier domain.ModelTier) (domain.LLMProvider, string, error)
}

// ToolRunnerFactory builds the per-command tool runner bound to one request's
// canvas snapshot.
type ToolRunnerFactory func(req domain.CommandRequest, objects []domain.Object, connectors []domain.Connector) domain.ToolRunner

// BoundsReporter is optionally implemented by tool runners that can report
// the bounding box of objects they created, for the result's focus rect.
type BoundsReporter interface {
	BoundsOf(ids []string) (domain.Rect, bool)
}

// EngineOptions carries every tunable the engine and its execution paths
// need, as plain values so configuration stays outside the use case layer.
type EngineOptions struct {
	MaxIterations       int
	MaxToolCalls        int
	MaxCreatedObjects   int
	MaxDetailObjects    int
	LoopCallTimeout     time.Duration
	PlannerTimeout      time.Duration
	ContentTimeout      time.Duration
	ExtractorTimeout    time.Duration
	ExtractorEnabled    bool
	PlannerTemperature  float64
	ExtractorConfidence float64
}

func (o *EngineOptions) defaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 6
	}
	if o.MaxToolCalls <= 0 {
		o.MaxToolCalls = 50
	}
	if o.MaxCreatedObjects <= 0 {
		o.MaxCreatedObjects = 120
	}
	if o.MaxDetailObjects <= 0 {
		o.MaxDetailObjects = DefaultMaxDetailObjects
	}
	if o.LoopCallTimeout <= 0 {
		o.LoopCallTimeout = 30 * time.Second
	}
	if o.PlannerTimeout <= 0 {
		o.PlannerTimeout = 40 * time.Second
	}
	if o.ContentTimeout <= 0 {
		o.ContentTimeout = 15 * time.Second
	}
	if o.ExtractorTimeout <= 0 {
		o.ExtractorTimeout = 5 * time.Second
	}
	if o.PlannerTemperature <= 0 {
		o.PlannerTemperature = 0.2
	}
	if o.ExtractorConfidence <= 0 {
		o.ExtractorConfidence = 0.8
	}
}

// EngineDeps are the engine's collaborators. Canvas, Models, and NewRunner
// are required; the rest degrade gracefully when nil.
type EngineDeps struct {
	Canvas    domain.CanvasStore
	Jobs      *JobManager
	Models    ModelRouter
	Limiter   *RateLimitService
	Metrics   *Metrics
	NewRunner ToolRunnerFactory
	Logger    *slog.Logger
	Options   EngineOptions
}

// Engine executes natural-language canvas commands through a chain of
// execution paths, cheapest first: fast path, template, planner, then the
// general orchestration loop. A path either handles the command, falls
// through to the next, or fails the command outright.
type Engine struct {
	deps      EngineDeps
	fastPath  *FastPath
	templates *TemplateExecutor
	planner   *Planner
	loop      *Loop
	now       func() time.Time
}

// NewEngine wires the execution paths from deps.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Options.defaults()
	o := deps.Options

	return &Engine{
		deps:      deps,
		fastPath:  NewFastPath(deps.Models, o.ExtractorEnabled, o.ExtractorConfidence, o.ExtractorTimeout, deps.Logger),
		templates: NewTemplateExecutor(deps.Models, o.ContentTimeout, deps.Logger),
		planner:   NewPlanner(deps.Models, o.PlannerTimeout, o.PlannerTemperature, deps.Logger),
		loop: NewLoop(deps.Models, LoopOptions{
			MaxIterations:     o.MaxIterations,
			MaxToolCalls:      o.MaxToolCalls,
			MaxCreatedObjects: o.MaxCreatedObjects,
			CallTimeout:       o.LoopCallTimeout,
		}, deps.Logger),
		now: time.Now,
	}
}

// SubmitCommand runs one command end to end: rate limit, job bookkeeping,
// routing, then the path chain. The returned result is also cached on the
// job record, so a retry with the same JobID returns it without re-executing.
func (e *Engine) SubmitCommand(ctx context.Context, req domain.CommandRequest) (*domain.ExecutionResult, error) {
	start := e.now()
	ctx, span := tracer.StartSpan(ctx, "engine.submit",
		trace.WithAttributes(tracer.StringAttr("canvas.id", req.CanvasID)))
	defer span.End()

	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return nil, domain.NewDomainError("Engine.SubmitCommand", domain.ErrInvalidInput, "empty command")
	}
	if req.CanvasID == "" {
		return nil, domain.NewDomainError("Engine.SubmitCommand", domain.ErrInvalidInput, "missing canvas id")
	}

	limitKey := req.UserID
	if limitKey == "" {
		limitKey = "anonymous"
	}
	if e.deps.Limiter != nil && !e.deps.Limiter.Allow(limitKey) {
		err := domain.NewDomainError("Engine.SubmitCommand", domain.ErrRateLimit,
			fmt.Sprintf("user %q over command rate limit", limitKey))
		tracer.RecordError(span, err)
		e.record("rate-limit", "rejected", nil)
		return nil, err
	}

	if req.JobID == "" {
		req.JobID = NewJobID()
	}
	job, cached, err := e.deps.Jobs.Begin(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if cached != nil {
		e.deps.Logger.Info("returning cached result", "canvas_id", req.CanvasID, "job_id", req.JobID)
		e.record("cached", "success", cached)
		tracer.SetOK(span)
		return cached, nil
	}

	// 1) Snapshot the canvas.
	e.deps.Jobs.Transition(ctx, job, domain.JobPlanning, "reading canvas")
	objects, err := e.deps.Canvas.ListObjects(ctx, req.CanvasID)
	if err != nil {
		return e.fail(ctx, span, job, "engine", nil, start,
			domain.NewSubSystemError("read", "Engine.SubmitCommand", domain.ErrStoreFailure, err.Error()))
	}
	connectors, err := e.deps.Canvas.ListConnectors(ctx, req.CanvasID)
	if err != nil {
		return e.fail(ctx, span, job, "engine", nil, start,
			domain.NewSubSystemError("read", "Engine.SubmitCommand", domain.ErrStoreFailure, err.Error()))
	}

	// 2) Route.
	decision := Route(req.Command, len(req.SelectedIDs), len(objects), frameTitles(objects))
	e.deps.Logger.Info("routed command",
		"canvas_id", req.CanvasID,
		"job_id", req.JobID,
		"intent", decision.Intent,
		"scope", decision.Scope,
		"tier", decision.Tier,
		"template", decision.TemplateID,
	)
	e.deps.Jobs.Progress(ctx, job, fmt.Sprintf("routed: %s (%s tier)", decision.Intent, decision.Tier))

	digest := BuildDigest(objects, DigestOptions{
		Scope:            decision.Scope,
		Viewport:         req.Viewport,
		SelectedIDs:      req.SelectedIDs,
		ConnectorCount:   len(connectors),
		IncludeDetail:    true,
		MaxDetailObjects: e.deps.Options.MaxDetailObjects,
	})
	e.deps.Logger.Debug("digest built", "estimated_tokens", EstimateTokens(digest))

	runner := e.deps.NewRunner(req, objects, connectors)
	progress := func(note string) { e.deps.Jobs.Progress(ctx, job, note) }
	e.deps.Jobs.Transition(ctx, job, domain.JobExecuting, "executing")

	// 3) Fast path: always probed, fully silent on miss.
	if res := e.fastPath.Run(ctx, req, runner, objects, connectors); res != nil {
		return e.complete(ctx, span, job, decision, runner, res, "fast-path", start)
	}

	// 4) Template path.
	if decision.Intent == domain.IntentTemplateCreate && decision.TemplateID != "" {
		res, err := e.runTemplate(ctx, req, decision, runner, objects, progress)
		switch {
		case err == nil:
			return e.complete(ctx, span, job, decision, runner, res, "template", start)
		case res != nil:
			// Partial mutation: failing over to another path would double
			// up the layout, so the command fails with what exists.
			return e.fail(ctx, span, job, "template", res, start, err)
		default:
			e.fallback("template", err)
		}
	}

	// 5) Planner path.
	if decision.Intent == domain.IntentReorganize {
		res, err := e.runPlanner(ctx, req, runner, objects, connectors, progress)
		switch {
		case err == nil:
			return e.complete(ctx, span, job, decision, runner, res, "planner", start)
		case res != nil:
			return e.fail(ctx, span, job, "planner", res, start, err)
		default:
			e.fallback("planner", err)
		}
	}

	// 6) General loop, the path of last resort.
	res, err := e.loop.Run(ctx, req, decision, digest, runner, progress)
	if err != nil {
		return e.fail(ctx, span, job, "general", res, start, err)
	}
	return e.complete(ctx, span, job, decision, runner, res, "general", start)
}

// runTemplate adapts the template executor to path-chain semantics: (nil,
// err) means fall through, (res, err) means partial failure, (res, nil)
// means handled.
func (e *Engine) runTemplate(ctx context.Context, req domain.CommandRequest, decision domain.RouteDecision, runner domain.ToolRunner, objects []domain.Object, progress func(string)) (*domain.ExecutionResult, error) {
	progress(fmt.Sprintf("building %s template", decision.TemplateID))
	tres, err := e.templates.Execute(ctx, req, decision.TemplateID, runner, objects)
	if err != nil {
		if tres == nil || len(tres.CreatedIDs) == 0 {
			return nil, err
		}
		partial := &domain.ExecutionResult{
			Success:      false,
			Message:      fmt.Sprintf("Template partially created: %d objects exist, then a write failed.", len(tres.CreatedIDs)),
			CreatedIDs:   tres.CreatedIDs,
			InputTokens:  tres.Usage.PromptTokens,
			OutputTokens: tres.Usage.CompletionTokens,
			ModelTier:    domain.TierTemplate,
		}
		return partial, err
	}
	spec, _ := templateByID(decision.TemplateID)
	return &domain.ExecutionResult{
		Success:      true,
		Message:      fmt.Sprintf("Created the %s template with %d objects.", spec.Name, len(tres.CreatedIDs)),
		CreatedIDs:   tres.CreatedIDs,
		InputTokens:  tres.Usage.PromptTokens,
		OutputTokens: tres.Usage.CompletionTokens,
		ToolCalls:    len(tres.CreatedIDs),
		ModelTier:    domain.TierTemplate,
	}, nil
}

// runPlanner generates, validates, and executes a reorganization plan.
// Failures before the first mutation fall through to the general loop;
// failures after it fail the command with the partial work reported.
func (e *Engine) runPlanner(ctx context.Context, req domain.CommandRequest, runner domain.ToolRunner, objects []domain.Object, connectors []domain.Connector, progress func(string)) (*domain.ExecutionResult, error) {
	plannerDigest := BuildDigest(objects, DigestOptions{
		Scope:            domain.ScopeBoard,
		ConnectorCount:   len(connectors),
		IncludeDetail:    true,
		MaxDetailObjects: plannerDetailObjects,
	})

	progress("planning reorganization")
	plan, usage, err := e.planner.Generate(ctx, req.Command, plannerDigest)
	if err != nil {
		return nil, err
	}
	if v := ValidatePlan(plan, len(objects)); !v.OK {
		e.deps.Logger.Warn("plan rejected", "reason", v.Reason)
		return nil, domain.NewDomainError("Engine.SubmitCommand", domain.ErrPlanRejected, v.Reason)
	} else if len(v.Warnings) > 0 {
		e.deps.Logger.Warn("plan accepted with warnings", "warnings", strings.Join(v.Warnings, "; "))
	}
	progress(fmt.Sprintf("plan: %s", plan.Summary))

	exec, err := e.planner.Execute(ctx, plan, req, runner, objects, progress)
	if err != nil {
		if exec == nil || len(exec.CreatedIDs)+len(exec.UpdatedIDs)+len(exec.DeletedIDs) == 0 {
			return nil, err
		}
		return &domain.ExecutionResult{
			Success:      false,
			Message:      "Reorganization stopped midway; completed steps were kept.",
			CreatedIDs:   exec.CreatedIDs,
			UpdatedIDs:   exec.UpdatedIDs,
			DeletedIDs:   exec.DeletedIDs,
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			ModelTier:    string(domain.TierStrong),
		}, err
	}

	msg := plan.Summary
	if msg == "" {
		msg = "Reorganized the canvas."
	}
	if exec.Skipped > 0 {
		msg += fmt.Sprintf(" (%d stale references skipped)", exec.Skipped)
	}
	return &domain.ExecutionResult{
		Success:      true,
		Message:      msg,
		CreatedIDs:   exec.CreatedIDs,
		UpdatedIDs:   exec.UpdatedIDs,
		DeletedIDs:   exec.DeletedIDs,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		ModelTier:    string(domain.TierStrong),
	}, nil
}

// fallback logs a path falling through to the next one in the chain.
func (e *Engine) fallback(path string, err error) {
	e.deps.Logger.Warn("path fell through", "path", path, "error", err)
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordFallback(path)
	}
}

func (e *Engine) complete(ctx context.Context, span trace.Span, job *domain.Job, decision domain.RouteDecision, runner domain.ToolRunner, res *domain.ExecutionResult, path string, start time.Time) (*domain.ExecutionResult, error) {
	if res.ModelTier == "" {
		res.ModelTier = string(decision.Tier)
	}
	if res.RouteSource == "" {
		res.RouteSource = domain.RouteSourcePattern
		res.RouteConfidence = 1
	}
	if len(res.CreatedIDs) > 0 && res.Focus == nil {
		if br, ok := runner.(BoundsReporter); ok {
			if rect, found := br.BoundsOf(res.CreatedIDs); found {
				res.Focus = &rect
			}
		}
	}
	res.ElapsedMS = e.now().Sub(start).Milliseconds()

	e.deps.Jobs.Complete(ctx, job, res)
	e.record(path, "success", res)
	e.deps.Logger.Info("command completed",
		"canvas_id", job.CanvasID,
		"job_id", job.JobID,
		"path", path,
		"created", len(res.CreatedIDs),
		"updated", len(res.UpdatedIDs),
		"deleted", len(res.DeletedIDs),
		"elapsed_ms", res.ElapsedMS,
	)
	tracer.SetOK(span)
	return res, nil
}

// fail finalizes a failed command. The result, when present, carries partial
// work; otherwise a bare failure result is synthesized so the job record
// always has one.
func (e *Engine) fail(ctx context.Context, span trace.Span, job *domain.Job, path string, res *domain.ExecutionResult, start time.Time, err error) (*domain.ExecutionResult, error) {
	if res == nil {
		res = &domain.ExecutionResult{Success: false, Message: userMessage(err)}
	}
	res.Success = false
	if res.Message == "" {
		res.Message = userMessage(err)
	}
	res.ElapsedMS = e.now().Sub(start).Milliseconds()

	e.deps.Jobs.Fail(ctx, job, res)
	e.record(path, "failed", res)
	e.deps.Logger.Error("command failed",
		"canvas_id", job.CanvasID,
		"job_id", job.JobID,
		"path", path,
		"error", err,
	)
	tracer.RecordError(span, err)
	return res, err
}

func (e *Engine) record(path, status string, res *domain.ExecutionResult) {
	if e.deps.Metrics == nil {
		return
	}
	if res == nil {
		e.deps.Metrics.RecordCommand(path, status, 0, 0, 0)
		return
	}
	e.deps.Metrics.RecordCommand(path, status, res.ToolCalls, res.InputTokens, res.OutputTokens)
}

// userMessage renders an internal error as the sentence stored on the job.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "The command timed out before finishing."
	case errors.Is(err, domain.ErrRateLimit):
		return "Too many commands right now; try again shortly."
	case errors.Is(err, domain.ErrLimitReached):
		return "The command stopped at an execution limit without finishing."
	case errors.Is(err, domain.ErrProviderError), errors.Is(err, domain.ErrProviderNotFound):
		return "The model service is unavailable; nothing was changed."
	default:
		return "The command could not be completed."
	}
}

func frameTitles(objects []domain.Object) []string {
	var titles []string
	for i := range objects {
		if objects[i].IsFrame() {
			titles = append(titles, objects[i].Text)
		}
	}
	return titles
}
