package tool

import (
	"context"
	"encoding/json"
	"math"

	"boardpilot/internal/domain"
)

// contextCap bounds how many objects one get_context call returns.
const contextCap = 100

// contextTextMax bounds per-object text in context reads.
const contextTextMax = 120

type getContextParams struct {
	Scope      string `json:"scope"`
	ObjectType string `json:"object_type"`
}

// contextRecord is the compact per-object shape returned to the model.
// Coordinates are rounded; sub-pixel positions are noise at this scope.
type contextRecord struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	W        int    `json:"w"`
	H        int    `json:"h"`
	Color    string `json:"color,omitempty"`
	Frame    string `json:"frame,omitempty"`
	Children int    `json:"children,omitempty"`
}

func (d *Dispatcher) getContext(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[getContextParams](call)
	if bad != nil {
		return bad
	}

	var objs []domain.Object
	switch p.Scope {
	case "", "all":
		objs = d.arena.Objects()
	case "frames":
		objs = d.arena.Frames()
	case "selected":
		objs = d.arena.Selected()
	case "viewport":
		view := d.arena.Viewport
		for _, o := range d.arena.Objects() {
			if view.Intersects(o.Bounds()) {
				objs = append(objs, o)
			}
		}
	case "by_type":
		targets, err := resolveTypes(p.ObjectType)
		if err != nil {
			return fail(call.ID, "get_context: %v", err)
		}
		for _, t := range targets {
			objs = append(objs, d.arena.ObjectsByType(t)...)
		}
	default:
		return fail(call.ID, "get_context: unknown scope %q", p.Scope)
	}

	total := len(objs)
	truncated := false
	if len(objs) > contextCap {
		objs = objs[:contextCap]
		truncated = true
	}

	childCounts := make(map[string]int)
	for _, o := range d.arena.Objects() {
		if o.ParentID != "" {
			childCounts[o.ParentID]++
		}
	}

	records := make([]contextRecord, 0, len(objs))
	for _, o := range objs {
		records = append(records, contextRecord{
			ID:       o.ID,
			Type:     string(o.Type),
			Text:     preview(o.Text, contextTextMax),
			X:        int(math.Round(o.X)),
			Y:        int(math.Round(o.Y)),
			W:        int(math.Round(o.Width)),
			H:        int(math.Round(o.Height)),
			Color:    o.Color,
			Frame:    o.ParentID,
			Children: childCounts[o.ID],
		})
	}

	payload := map[string]any{
		"scope":      scopeName(p.Scope),
		"total":      total,
		"objects":    records,
		"connectors": len(d.arena.Connectors()),
	}
	if truncated {
		payload["truncated"] = true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fail(call.ID, "get_context: encode: %v", err)
	}
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, Data: data}
}

func scopeName(scope string) string {
	if scope == "" {
		return "all"
	}
	return scope
}

// preview shortens text to max runes, marking the cut with an ellipsis.
func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
