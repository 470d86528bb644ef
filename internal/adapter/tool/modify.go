package tool

import (
	"context"
	"time"

	"boardpilot/internal/domain"
)

// The four single-object mutations below are the parallel-safe set: they
// read a copy under lock, write the store outside it, and mirror under lock
// again, so a concurrent batch touching distinct objects never races.

type moveObjectParams struct {
	ObjectID string  `json:"object_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

func (d *Dispatcher) moveObject(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[moveObjectParams](call)
	if bad != nil {
		return bad
	}
	o, ok := d.lookup(p.ObjectID)
	if !ok {
		return fail(call.ID, "move_object: object %q not found", p.ObjectID)
	}
	o.X = clampCoord(p.X)
	o.Y = clampCoord(p.Y)
	o.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateObject(ctx, &o); err != nil {
		return fail(call.ID, "move_object: store: %v", err)
	}
	d.mirror(&o)
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: o.ID}
}

type resizeObjectParams struct {
	ObjectID string  `json:"object_id"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

func (d *Dispatcher) resizeObject(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[resizeObjectParams](call)
	if bad != nil {
		return bad
	}
	o, ok := d.lookup(p.ObjectID)
	if !ok {
		return fail(call.ID, "resize_object: object %q not found", p.ObjectID)
	}
	o.Width = clampSize(p.Width, o.Width)
	o.Height = clampSize(p.Height, o.Height)
	o.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateObject(ctx, &o); err != nil {
		return fail(call.ID, "resize_object: store: %v", err)
	}
	d.mirror(&o)
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: o.ID}
}

type updateTextParams struct {
	ObjectID string `json:"object_id"`
	Text     string `json:"text"`
}

func (d *Dispatcher) updateText(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[updateTextParams](call)
	if bad != nil {
		return bad
	}
	o, ok := d.lookup(p.ObjectID)
	if !ok {
		return fail(call.ID, "update_text: object %q not found", p.ObjectID)
	}
	o.Text = sanitizeText(p.Text)
	o.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateObject(ctx, &o); err != nil {
		return fail(call.ID, "update_text: store: %v", err)
	}
	d.mirror(&o)
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: o.ID}
}

type changeColorParams struct {
	ObjectID string `json:"object_id"`
	Color    string `json:"color"`
}

func (d *Dispatcher) changeColor(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[changeColorParams](call)
	if bad != nil {
		return bad
	}
	o, ok := d.lookup(p.ObjectID)
	if !ok {
		return fail(call.ID, "change_color: object %q not found", p.ObjectID)
	}
	o.Color = domain.NormalizeColor(p.Color, o.Type)
	o.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateObject(ctx, &o); err != nil {
		return fail(call.ID, "change_color: store: %v", err)
	}
	d.mirror(&o)
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: o.ID}
}

type addToFrameParams struct {
	ObjectID string `json:"object_id"`
	FrameID  string `json:"frame_id"`
}

func (d *Dispatcher) addToFrame(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[addToFrameParams](call)
	if bad != nil {
		return bad
	}
	if p.ObjectID == p.FrameID {
		return fail(call.ID, "add_to_frame: object cannot contain itself")
	}
	o, ok := d.lookup(p.ObjectID)
	if !ok {
		return fail(call.ID, "add_to_frame: object %q not found", p.ObjectID)
	}
	if o.IsFrame() {
		return fail(call.ID, "add_to_frame: frames cannot be nested")
	}
	frame, ok := d.lookup(p.FrameID)
	if !ok || !frame.IsFrame() {
		return fail(call.ID, "add_to_frame: frame %q not found", p.FrameID)
	}

	idx := len(d.arena.Children(frame.ID))
	x, y, required := frameSlot(&frame, idx, o.Width, o.Height)
	if required > frame.Height {
		if err := d.growFrame(ctx, frame.ID, required); err != nil {
			return fail(call.ID, "add_to_frame: %v", err)
		}
	}

	o.ParentID = frame.ID
	o.X = x
	o.Y = y
	o.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateObject(ctx, &o); err != nil {
		return fail(call.ID, "add_to_frame: store: %v", err)
	}
	d.mirror(&o)
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: o.ID}
}

type removeFromFrameParams struct {
	ObjectID string `json:"object_id"`
}

func (d *Dispatcher) removeFromFrame(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[removeFromFrameParams](call)
	if bad != nil {
		return bad
	}
	o, ok := d.lookup(p.ObjectID)
	if !ok {
		return fail(call.ID, "remove_from_frame: object %q not found", p.ObjectID)
	}
	// Detaching an already-free object is a no-op, not an error.
	if o.ParentID == "" {
		return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: o.ID}
	}
	o.ParentID = ""
	o.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateObject(ctx, &o); err != nil {
		return fail(call.ID, "remove_from_frame: store: %v", err)
	}
	d.mirror(&o)
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: o.ID}
}
