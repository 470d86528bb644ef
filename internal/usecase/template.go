package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/tracer"
)

// Template geometry. Frames are sized from their item count on a fixed cell
// grid and laid out centered on the viewport; the model only ever supplies
// text.
const (
	templateCellW    = 220.0
	templateCellH    = 150.0
	templateFramePad = 20.0
	templateTitlePad = 40.0
	templateGap      = 40.0

	templateMaxItemsPerFrame = 8
)

// templateFrame is one fixed slot of a template layout.
type templateFrame struct {
	Title     string
	ItemColor string // palette word for generated items, "" = type default
	Hint      string // steers content generation for this slot
}

// templateSpec is one entry in the fixed template registry.
type templateSpec struct {
	ID       string
	Name     string
	Keywords []string
	Frames   []templateFrame
	// Quadrant lays frames out 2x2 instead of a single row.
	Quadrant bool
	// Registered templates are executable; unregistered ones are still
	// recognized by the router but fall back to the general loop.
	Registered bool
}

func (s templateSpec) matches(cmd string) bool {
	for _, kw := range s.Keywords {
		if strings.Contains(cmd, kw) {
			return true
		}
	}
	return false
}

// templateRegistry is ordered: the router takes the first keyword match.
var templateRegistry = []templateSpec{
	{
		ID: "swot", Name: "SWOT Analysis", Keywords: []string{"swot"},
		Quadrant: true, Registered: true,
		Frames: []templateFrame{
			{Title: "Strengths", ItemColor: "green", Hint: "internal strengths and advantages"},
			{Title: "Weaknesses", ItemColor: "red", Hint: "internal weaknesses and gaps"},
			{Title: "Opportunities", ItemColor: "blue", Hint: "external opportunities"},
			{Title: "Threats", ItemColor: "orange", Hint: "external threats and risks"},
		},
	},
	{
		ID: "retrospective", Name: "Retrospective", Keywords: []string{"retrospective", "retro board", "retro "},
		Registered: true,
		Frames: []templateFrame{
			{Title: "What Went Well", ItemColor: "green", Hint: "positives to keep doing"},
			{Title: "What Didn't Go Well", ItemColor: "red", Hint: "problems and friction"},
			{Title: "Action Items", ItemColor: "yellow", Hint: "concrete follow-ups with owners"},
		},
	},
	{
		ID: "kanban", Name: "Kanban Board", Keywords: []string{"kanban"},
		Registered: true,
		Frames: []templateFrame{
			{Title: "To Do", ItemColor: "yellow", Hint: "upcoming work items"},
			{Title: "In Progress", ItemColor: "blue", Hint: "work currently underway"},
			{Title: "Done", ItemColor: "green", Hint: "recently finished work"},
		},
	},
	{
		ID: "eisenhower", Name: "Eisenhower Matrix", Keywords: []string{"eisenhower", "priority matrix"},
		Quadrant: true, Registered: true,
		Frames: []templateFrame{
			{Title: "Urgent & Important", ItemColor: "red", Hint: "do first"},
			{Title: "Urgent & Not Important", ItemColor: "orange", Hint: "delegate"},
			{Title: "Not Urgent & Important", ItemColor: "blue", Hint: "schedule"},
			{Title: "Not Urgent & Not Important", ItemColor: "gray", Hint: "eliminate"},
		},
	},
	{
		ID: "weekly", Name: "Weekly Planner", Keywords: []string{"weekly planner", "weekly plan", "week planner"},
		Registered: true,
		Frames: []templateFrame{
			{Title: "Monday"}, {Title: "Tuesday"}, {Title: "Wednesday"},
			{Title: "Thursday"}, {Title: "Friday"}, {Title: "Saturday"},
			{Title: "Sunday"},
		},
	},
	{
		// Recognized so edit commands route correctly, but there is no v1
		// layout: creation falls back to the general loop.
		ID: "lean_canvas", Name: "Lean Canvas", Keywords: []string{"lean canvas"},
		Frames: []templateFrame{
			{Title: "Problem"}, {Title: "Solution"}, {Title: "Key Metrics"},
			{Title: "Unique Value Proposition"}, {Title: "Unfair Advantage"},
			{Title: "Channels"}, {Title: "Customer Segments"},
			{Title: "Cost Structure"}, {Title: "Revenue Streams"},
		},
	},
}

func templateByID(id string) (templateSpec, bool) {
	for _, s := range templateRegistry {
		if s.ID == id {
			return s, true
		}
	}
	return templateSpec{}, false
}

// frameSizeFor computes the frame footprint for n grid-packed items:
// ceil-sqrt columns over fixed cells, plus padding and a title band.
func frameSizeFor(itemCount int) (w, h float64) {
	if itemCount <= 0 {
		return domain.DefaultSize(domain.TypeFrame)
	}
	cols := int(math.Ceil(math.Sqrt(float64(itemCount))))
	rows := (itemCount + cols - 1) / cols
	w = float64(cols)*templateCellW + 2*templateFramePad
	h = float64(rows)*templateCellH + templateTitlePad + templateFramePad
	return w, h
}

// TemplateResult reports what a template execution created.
type TemplateResult struct {
	CreatedIDs []string
	FrameIDs   []string
	Usage      domain.Usage
}

// TemplateExecutor instantiates registry templates deterministically: one
// content-only model call fills slot items, all geometry is computed here.
type TemplateExecutor struct {
	models  ModelRouter
	timeout time.Duration
	logger  *slog.Logger
}

// NewTemplateExecutor creates a template executor. timeout bounds the content
// model call.
func NewTemplateExecutor(models ModelRouter, timeout time.Duration, logger *slog.Logger) *TemplateExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TemplateExecutor{models: models, timeout: timeout, logger: logger}
}

// Execute creates the template's frames and generated items through the tool
// runner. A persistence failure aborts remaining writes and returns the work
// done so far with the error; there is no rollback, idempotent job retry is
// the recovery path.
func (t *TemplateExecutor) Execute(ctx context.Context, req domain.CommandRequest, templateID string, runner domain.ToolRunner, objects []domain.Object) (*TemplateResult, error) {
	ctx, span := tracer.StartSpan(ctx, "template.execute",
		trace.WithAttributes(tracer.StringAttr("template.id", templateID)))
	defer span.End()

	spec, ok := templateByID(templateID)
	if !ok || !spec.Registered {
		err := domain.NewSubSystemError("template", "Template.Execute", domain.ErrNotFound, templateID)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := &TemplateResult{}
	items := t.generateContent(ctx, spec, req.Command, &result.Usage)

	// Uniform frame size keeps rows and quadrants aligned regardless of how
	// many items each slot received.
	maxItems := 0
	for _, f := range spec.Frames {
		if n := len(items[f.Title]); n > maxItems {
			maxItems = n
		}
	}
	frameW, frameH := frameSizeFor(maxItems)

	cols := len(spec.Frames)
	if spec.Quadrant {
		cols = 2
	}
	rows := (len(spec.Frames) + cols - 1) / cols
	blockW := float64(cols)*frameW + float64(cols-1)*templateGap
	blockH := float64(rows)*frameH + float64(rows-1)*templateGap
	originX, originY := templateBlockOrigin(req.Viewport, blockW, blockH, objects)

	for i, frame := range spec.Frames {
		col := i % cols
		row := i / cols
		x := originX + float64(col)*(frameW+templateGap)
		y := originY + float64(row)*(frameH+templateGap)

		frameID, err := t.createFrame(ctx, runner, frame.Title, x, y, frameW, frameH)
		if err != nil {
			tracer.RecordError(span, err)
			return result, err
		}
		result.FrameIDs = append(result.FrameIDs, frameID)
		result.CreatedIDs = append(result.CreatedIDs, frameID)

		for j, text := range items[frame.Title] {
			itemID, err := t.createItem(ctx, runner, i, j, text, frame.ItemColor, frameID)
			if err != nil {
				tracer.RecordError(span, err)
				return result, err
			}
			result.CreatedIDs = append(result.CreatedIDs, itemID)
		}
	}

	tracer.SetOK(span)
	return result, nil
}

// templateBlockOrigin centers the template block on the viewport, shifting
// right of existing content when that spot already holds a frame.
func templateBlockOrigin(vp domain.Viewport, blockW, blockH float64, objects []domain.Object) (x, y float64) {
	if vp.Width <= 0 || vp.Height <= 0 {
		x, y = 120, 120
	} else {
		center := vp.Center()
		x = center.X - blockW/2
		y = center.Y - blockH/2
	}

	block := domain.Rect{X: x, Y: y, Width: blockW, Height: blockH}
	for i := range objects {
		if !objects[i].IsFrame() || !block.Intersects(objects[i].Bounds()) {
			continue
		}
		bounds := domain.BoundingRect(objects)
		return bounds.X + bounds.Width + 2*templateGap, y
	}
	return x, y
}

func (t *TemplateExecutor) createFrame(ctx context.Context, runner domain.ToolRunner, title string, x, y, w, h float64) (string, error) {
	args, _ := json.Marshal(map[string]any{
		"title": title, "x": x, "y": y, "width": w, "height": h,
	})
	res := runner.Run(ctx, domain.ToolCall{
		ID: fmt.Sprintf("tmpl-frame-%s", title), Name: "create_frame", Arguments: args,
	})
	if !res.Success {
		return "", domain.NewSubSystemError("template", "Template.Execute", domain.ErrStoreFailure, res.Error)
	}
	return res.ObjectID, nil
}

func (t *TemplateExecutor) createItem(ctx context.Context, runner domain.ToolRunner, frameIdx, itemIdx int, text, color, frameID string) (string, error) {
	payload := map[string]any{"type": "note", "text": text, "frame_id": frameID}
	if color != "" {
		payload["color"] = color
	}
	args, _ := json.Marshal(payload)
	res := runner.Run(ctx, domain.ToolCall{
		ID: fmt.Sprintf("tmpl-item-%d-%d", frameIdx, itemIdx), Name: "create_leaf", Arguments: args,
	})
	if !res.Success {
		return "", domain.NewSubSystemError("template", "Template.Execute", domain.ErrStoreFailure, res.Error)
	}
	return res.ObjectID, nil
}

// templateContent is the shape the content model call must return.
type templateContent struct {
	Items map[string][]string `json:"items"`
}

// generateContent asks the fast tier to fill slot items. Failures are
// logged and produce an empty template: the frames still get created, the
// user just starts from blank slots.
func (t *TemplateExecutor) generateContent(ctx context.Context, spec templateSpec, command string, usage *domain.Usage) map[string][]string {
	provider, model, err := t.models.Route(domain.TierFast)
	if err != nil {
		t.logger.Warn("template content skipped: no provider", "template", spec.ID, "error", err)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := provider.Chat(callCtx, domain.ChatRequest{
		Model: model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: templateContentSystemPrompt},
			{Role: domain.RoleUser, Content: templateContentUserPrompt(spec, command)},
		},
		ResponseFormat: domain.ResponseFormatJSON,
		MaxTokens:      800,
		Temperature:    0.7,
	})
	if err != nil {
		t.logger.Warn("template content call failed", "template", spec.ID, "error", err)
		return nil
	}
	usage.Add(resp.Usage)

	var content templateContent
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Message.Content)), &content); err != nil {
		t.logger.Warn("template content unparseable", "template", spec.ID, "error", err)
		return nil
	}

	// Slot titles match case-insensitively; each slot is capped.
	byTitle := make(map[string][]string, len(content.Items))
	for title, list := range content.Items {
		byTitle[strings.ToLower(strings.TrimSpace(title))] = list
	}
	items := make(map[string][]string, len(spec.Frames))
	for _, f := range spec.Frames {
		list := byTitle[strings.ToLower(f.Title)]
		if len(list) > templateMaxItemsPerFrame {
			list = list[:templateMaxItemsPerFrame]
		}
		var clean []string
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				clean = append(clean, item)
			}
		}
		items[f.Title] = clean
	}
	return items
}
