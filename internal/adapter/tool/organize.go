package tool

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"boardpilot/internal/domain"
)

type arrangeObjectsParams struct {
	ObjectIDs []string `json:"object_ids"`
	Layout    string   `json:"layout"`
	Columns   int      `json:"columns"`
}

func (d *Dispatcher) arrangeObjects(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[arrangeObjectsParams](call)
	if bad != nil {
		return bad
	}
	var objs []domain.Object
	for _, id := range p.ObjectIDs {
		if o := d.arena.Object(id); o != nil && !o.IsFrame() {
			objs = append(objs, *o)
		}
	}
	if len(objs) == 0 {
		return fail(call.ID, "arrange_objects: no matching objects")
	}

	positions := arrangeLayout(objs, p.Layout, p.Columns)
	moved := make([]string, 0, len(objs))
	now := time.Now().UTC()
	for i := range objs {
		o := objs[i]
		o.X = positions[i].X
		o.Y = positions[i].Y
		o.UpdatedAt = now
		if err := d.store.UpdateObject(ctx, &o); err != nil {
			res := fail(call.ID, "arrange_objects: store: %v", err)
			res.ObjectIDs = moved
			return res
		}
		d.mirror(&o)
		moved = append(moved, o.ID)
	}

	data, _ := json.Marshal(map[string]any{"layout": layoutName(p.Layout), "moved": len(moved)})
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectIDs: moved, Data: data}
}

func layoutName(layout string) string {
	switch layout {
	case "row", "column":
		return layout
	}
	return "grid"
}

type rearrangeFrameParams struct {
	FrameID string `json:"frame_id"`
}

// rearrangeFrame re-packs a frame's children into a uniform grid in reading
// order, growing the frame when the grid outruns its height.
func (d *Dispatcher) rearrangeFrame(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[rearrangeFrameParams](call)
	if bad != nil {
		return bad
	}
	frame, ok := d.lookup(p.FrameID)
	if !ok || !frame.IsFrame() {
		return fail(call.ID, "rearrange_frame: frame %q not found", p.FrameID)
	}
	children := d.arena.Children(frame.ID)
	if len(children) == 0 {
		return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: frame.ID}
	}

	cellW, cellH := 0.0, 0.0
	for _, c := range children {
		cellW = math.Max(cellW, c.Width)
		cellH = math.Max(cellH, c.Height)
	}

	moved := make([]string, 0, len(children))
	now := time.Now().UTC()
	maxRequired := 0.0
	for i := range children {
		c := children[i]
		x, y, required := frameSlot(&frame, i, cellW, cellH)
		if required > maxRequired {
			maxRequired = required
		}
		c.X = x + (cellW-c.Width)/2
		c.Y = y + (cellH-c.Height)/2
		c.UpdatedAt = now
		if err := d.store.UpdateObject(ctx, &c); err != nil {
			res := fail(call.ID, "rearrange_frame: store: %v", err)
			res.ObjectIDs = moved
			return res
		}
		d.mirror(&c)
		moved = append(moved, c.ID)
	}

	if maxRequired > frame.Height {
		if err := d.growFrame(ctx, frame.ID, maxRequired); err != nil {
			res := fail(call.ID, "rearrange_frame: %v", err)
			res.ObjectIDs = moved
			return res
		}
	}

	data, _ := json.Marshal(map[string]any{"frame": frame.ID, "children": len(moved)})
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: frame.ID, ObjectIDs: moved, Data: data}
}
