package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/tracer"
)

// planSchemaJSON constrains the planner's raw model output before any
// decoding happens. Frames are created by key; leaves and moves may target
// those keys or real frame ids.
const planSchemaJSON = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "new_frames": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "estimated_children": {"type": "integer", "minimum": 0}
        },
        "required": ["key", "title"]
      }
    },
    "moves": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "object_id": {"type": "string", "minLength": 1},
          "target": {"type": "string"}
        },
        "required": ["object_id"]
      }
    },
    "delete_ids": {"type": "array", "items": {"type": "string"}},
    "new_objects": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["note", "rectangle", "circle", "diamond", "line", "text"]},
          "text": {"type": "string"},
          "color": {"type": "string"},
          "target": {"type": "string"}
        },
        "required": ["type"]
      }
    },
    "tidy_frames": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["summary"]
}`

var (
	planSchemaOnce sync.Once
	planSchema     *jsonschema.Schema
)

func compiledPlanSchema() *jsonschema.Schema {
	planSchemaOnce.Do(func() {
		schema, err := jsonschema.NewCompiler().Compile([]byte(planSchemaJSON))
		if err != nil {
			panic(fmt.Sprintf("planner: plan schema does not compile: %v", err))
		}
		planSchema = schema
	})
	return planSchema
}

// plannerDetailObjects widens the digest for plan generation: a plan can move
// up to 200 objects, so the planner must be able to see their ids.
const plannerDetailObjects = 200

// Planner turns a reorganization command into a structured plan with one
// strong-tier model call, validates it against fixed ceilings, and executes
// it in deterministic phases.
type Planner struct {
	models      ModelRouter
	timeout     time.Duration
	temperature float64
	logger      *slog.Logger
}

// NewPlanner creates a planner. timeout bounds the generation call.
func NewPlanner(models ModelRouter, timeout time.Duration, temperature float64, logger *slog.Logger) *Planner {
	if timeout <= 0 {
		timeout = 40 * time.Second
	}
	if temperature <= 0 {
		temperature = 0.2
	}
	return &Planner{models: models, timeout: timeout, temperature: temperature, logger: logger}
}

// Generate asks the strong tier for a plan. The raw reply is schema-validated
// before decoding; a reply that fails the schema is a generation failure, not
// a half-trusted plan.
func (p *Planner) Generate(ctx context.Context, command, digest string) (*domain.Plan, domain.Usage, error) {
	ctx, span := tracer.StartSpan(ctx, "planner.generate")
	defer span.End()

	var usage domain.Usage
	provider, model, err := p.models.Route(domain.TierStrong)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, usage, domain.WrapOp("Planner.Generate", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := provider.Chat(callCtx, domain.ChatRequest{
		Model: model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: plannerSystemPrompt},
			{Role: domain.RoleUser, Content: plannerUserPrompt(digest, command)},
		},
		ResponseFormat: domain.ResponseFormatJSON,
		MaxTokens:      2000,
		Temperature:    p.temperature,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = domain.NewSubSystemError("planner", "Planner.Generate", domain.ErrTimeout, err.Error())
		} else {
			err = domain.NewDomainError("Planner.Generate", domain.ErrProviderError, err.Error())
		}
		tracer.RecordError(span, err)
		return nil, usage, err
	}
	usage.Add(resp.Usage)

	raw := stripCodeFences(resp.Message.Content)
	if err := validatePlanJSON(raw); err != nil {
		err = domain.NewSubSystemError("plan", "Planner.Generate", domain.ErrInvalidInput, err.Error())
		tracer.RecordError(span, err)
		p.logger.Warn("plan rejected by schema", "error", err, "raw", truncate(raw, 300))
		return nil, usage, err
	}

	var plan domain.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		err = domain.NewSubSystemError("plan", "Planner.Generate", domain.ErrInvalidInput, err.Error())
		tracer.RecordError(span, err)
		return nil, usage, err
	}

	tracer.SetOK(span)
	return &plan, usage, nil
}

func validatePlanJSON(raw string) error {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("reply is not valid JSON: %w", err)
	}
	result := compiledPlanSchema().Validate(parsed)
	if !result.IsValid() {
		return errors.New(result.Error())
	}
	return nil
}

// ValidatePlan checks a plan against the fixed ceilings. Destructive plans
// within the ceilings are flagged with warnings, never rejected: the ceilings
// bound damage, the warnings inform the progress trail.
func ValidatePlan(plan *domain.Plan, objectCount int) domain.PlanValidation {
	if plan == nil {
		return domain.PlanValidation{OK: false, Reason: "no plan"}
	}
	if creates := plan.Creates(); creates > domain.PlanMaxCreates {
		return domain.PlanValidation{OK: false,
			Reason: fmt.Sprintf("plan creates %d objects, limit is %d", creates, domain.PlanMaxCreates)}
	}
	if len(plan.DeleteIDs) > domain.PlanMaxDeletes {
		return domain.PlanValidation{OK: false,
			Reason: fmt.Sprintf("plan deletes %d objects, limit is %d", len(plan.DeleteIDs), domain.PlanMaxDeletes)}
	}
	if len(plan.Moves) > domain.PlanMaxMoves {
		return domain.PlanValidation{OK: false,
			Reason: fmt.Sprintf("plan moves %d objects, limit is %d", len(plan.Moves), domain.PlanMaxMoves)}
	}
	seen := make(map[string]bool, len(plan.NewFrames))
	for _, f := range plan.NewFrames {
		if seen[f.Key] {
			return domain.PlanValidation{OK: false, Reason: fmt.Sprintf("duplicate frame key %q", f.Key)}
		}
		seen[f.Key] = true
	}

	var warnings []string
	if objectCount > 0 && len(plan.DeleteIDs)*2 > objectCount {
		warnings = append(warnings,
			fmt.Sprintf("plan deletes %d of %d objects", len(plan.DeleteIDs), objectCount))
	}
	return domain.PlanValidation{OK: true, Warnings: warnings}
}

// PlanExecution reports what plan execution touched. On a phase failure it
// carries everything completed before the abort.
type PlanExecution struct {
	CreatedIDs []string
	UpdatedIDs []string
	DeletedIDs []string
	// Skipped counts per-item misses inside the move and tidy phases,
	// typically stale ids the model copied from the digest.
	Skipped int
}

// Execute runs the plan in five phases: delete, create frames, move, create
// leaves, tidy. A phase that fails at the store aborts the remaining phases
// and returns the completed work alongside the error; there is no rollback.
// Per-item misses in the move and tidy phases are skipped, not fatal.
func (p *Planner) Execute(ctx context.Context, plan *domain.Plan, req domain.CommandRequest, runner domain.ToolRunner, objects []domain.Object, progress func(string)) (*PlanExecution, error) {
	ctx, span := tracer.StartSpan(ctx, "planner.execute")
	defer span.End()

	if progress == nil {
		progress = func(string) {}
	}
	exec := &PlanExecution{}

	// Phase 1: deletes.
	if len(plan.DeleteIDs) > 0 {
		res := p.call(ctx, runner, "plan-delete", "bulk_delete", map[string]any{
			"mode": "by_ids", "object_ids": plan.DeleteIDs,
		})
		exec.DeletedIDs = append(exec.DeletedIDs, res.ObjectIDs...)
		if !res.Success {
			tracer.RecordError(span, errors.New(res.Error))
			return exec, domain.NewSubSystemError("plan", "Planner.Execute", domain.ErrStoreFailure, res.Error)
		}
		progress(fmt.Sprintf("deleted %d objects", len(res.ObjectIDs)))
	}

	// Phase 2: new frames in a centered row, sized for their expected load.
	keyToID := make(map[string]string, len(plan.NewFrames))
	if len(plan.NewFrames) > 0 {
		if err := p.createFrames(ctx, plan, req, runner, objects, keyToID, exec); err != nil {
			tracer.RecordError(span, err)
			return exec, err
		}
		progress(fmt.Sprintf("created %d frames", len(plan.NewFrames)))
	}

	// Phase 3: moves. Stale object ids are skipped; the model plans against
	// a digest that may already be seconds old.
	if len(plan.Moves) > 0 {
		moved := 0
		for _, mv := range plan.Moves {
			var res *domain.ToolResult
			if mv.Target == "" {
				res = p.call(ctx, runner, "plan-move", "remove_from_frame", map[string]any{
					"object_id": mv.ObjectID,
				})
			} else {
				res = p.call(ctx, runner, "plan-move", "add_to_frame", map[string]any{
					"object_id": mv.ObjectID, "frame_id": resolveTarget(keyToID, mv.Target),
				})
			}
			if !res.Success {
				exec.Skipped++
				p.logger.Debug("plan move skipped", "object_id", mv.ObjectID, "error", res.Error)
				continue
			}
			exec.UpdatedIDs = append(exec.UpdatedIDs, mv.ObjectID)
			moved++
		}
		progress(fmt.Sprintf("moved %d objects", moved))
	}

	// Phase 4: new leaves in one batch.
	if len(plan.NewLeaves) > 0 {
		items := make([]map[string]any, 0, len(plan.NewLeaves))
		for _, leaf := range plan.NewLeaves {
			item := map[string]any{"type": string(leaf.Type)}
			if leaf.Text != "" {
				item["text"] = leaf.Text
			}
			if leaf.Color != "" {
				item["color"] = leaf.Color
			}
			if leaf.Target != "" {
				item["frame_id"] = resolveTarget(keyToID, leaf.Target)
			}
			items = append(items, item)
		}
		res := p.call(ctx, runner, "plan-create", "bulk_create", map[string]any{"items": items})
		exec.CreatedIDs = append(exec.CreatedIDs, res.ObjectIDs...)
		if !res.Success {
			tracer.RecordError(span, errors.New(res.Error))
			return exec, domain.NewSubSystemError("plan", "Planner.Execute", domain.ErrStoreFailure, res.Error)
		}
		progress(fmt.Sprintf("created %d objects", len(res.ObjectIDs)))
	}

	// Phase 5: re-grid the frames the plan touched.
	if len(plan.TidyFrames) > 0 {
		tidied := 0
		for _, target := range plan.TidyFrames {
			res := p.call(ctx, runner, "plan-tidy", "rearrange_frame", map[string]any{
				"frame_id": resolveTarget(keyToID, target),
			})
			if !res.Success {
				exec.Skipped++
				continue
			}
			tidied++
		}
		progress(fmt.Sprintf("tidied %d frames", tidied))
	}

	tracer.SetOK(span)
	return exec, nil
}

// createFrames lays the plan's new frames out in a single row centered on the
// viewport, each sized by its estimated child count.
func (p *Planner) createFrames(ctx context.Context, plan *domain.Plan, req domain.CommandRequest, runner domain.ToolRunner, objects []domain.Object, keyToID map[string]string, exec *PlanExecution) error {
	widths := make([]float64, len(plan.NewFrames))
	heights := make([]float64, len(plan.NewFrames))
	blockW, blockH := 0.0, 0.0
	for i, f := range plan.NewFrames {
		widths[i], heights[i] = frameSizeFor(f.EstimatedChildren)
		blockW += widths[i]
		if heights[i] > blockH {
			blockH = heights[i]
		}
	}
	blockW += float64(len(plan.NewFrames)-1) * templateGap

	x, y := templateBlockOrigin(req.Viewport, blockW, blockH, objects)
	for i, f := range plan.NewFrames {
		res := p.call(ctx, runner, "plan-frame", "create_frame", map[string]any{
			"title": f.Title, "x": x, "y": y, "width": widths[i], "height": heights[i],
		})
		if !res.Success {
			return domain.NewSubSystemError("plan", "Planner.Execute", domain.ErrStoreFailure, res.Error)
		}
		keyToID[f.Key] = res.ObjectID
		exec.CreatedIDs = append(exec.CreatedIDs, res.ObjectID)
		x += widths[i] + templateGap
	}
	return nil
}

func (p *Planner) call(ctx context.Context, runner domain.ToolRunner, idPrefix, name string, args map[string]any) *domain.ToolResult {
	raw, _ := json.Marshal(args)
	return runner.Run(ctx, domain.ToolCall{ID: idPrefix, Name: name, Arguments: raw})
}

// resolveTarget maps a symbolic frame key to the id it was created under;
// anything not in the map is assumed to be a real frame id already.
func resolveTarget(keyToID map[string]string, target string) string {
	if id, ok := keyToID[target]; ok {
		return id
	}
	return target
}

// codeFenceRe matches a JSON reply wrapped in a markdown code fence.
var codeFenceRe = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.*?)\\s*```\\s*$")

// stripCodeFences unwraps fenced model replies; models add fences even when
// told not to.
func stripCodeFences(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
