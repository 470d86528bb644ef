package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boardpilot/internal/domain"
)

type createLeafParams struct {
	Type    string   `json:"type"`
	Text    string   `json:"text"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Color   string   `json:"color"`
	FrameID string   `json:"frame_id"`
}

// createOne resolves placement, persists, and mirrors a single leaf.
// Placement precedence: explicit coordinates, then target frame slot, then
// the shared batch cursor.
func (d *Dispatcher) createOne(ctx context.Context, p createLeafParams) (*domain.Object, error) {
	t := domain.ObjectType(p.Type)
	if !domain.ValidObjectType(t) || t == domain.TypeFrame {
		return nil, fmt.Errorf("unknown object type %q", p.Type)
	}
	defW, defH := domain.DefaultSize(t)
	w := clampSize(p.Width, defW)
	h := clampSize(p.Height, defH)

	var frame *domain.Object
	if p.FrameID != "" {
		f, ok := d.lookup(p.FrameID)
		if !ok || !f.IsFrame() {
			return nil, fmt.Errorf("frame %q not found", p.FrameID)
		}
		frame = &f
	}

	var x, y float64
	switch {
	case p.X != nil && p.Y != nil:
		x, y = nearestFree(d.arena, clampCoord(*p.X), clampCoord(*p.Y), w, h, false)
	case frame != nil:
		idx := len(d.arena.Children(frame.ID))
		var required float64
		x, y, required = frameSlot(frame, idx, w, h)
		if required > frame.Height {
			if err := d.growFrame(ctx, frame.ID, required); err != nil {
				return nil, err
			}
		}
	default:
		origin := defaultOrigin(d.arena.Viewport, w, h)
		pos := d.cursor.Next(origin, w, h)
		x, y = pos.X, pos.Y
	}

	now := time.Now().UTC()
	obj := &domain.Object{
		ID:        uuid.NewString(),
		CanvasID:  d.arena.CanvasID,
		Type:      t,
		Text:      sanitizeText(p.Text),
		X:         x,
		Y:         y,
		Width:     w,
		Height:    h,
		Color:     domain.NormalizeColor(p.Color, t),
		ParentID:  p.FrameID,
		Z:         d.arena.NextZ(),
		CreatedBy: d.arena.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.InsertObject(ctx, obj); err != nil {
		return nil, fmt.Errorf("store: %v", err)
	}
	d.mirror(obj)
	return obj, nil
}

// growFrame extends a frame's height to fit its content grid.
func (d *Dispatcher) growFrame(ctx context.Context, frameID string, height float64) error {
	f, ok := d.lookup(frameID)
	if !ok {
		return fmt.Errorf("frame %q not found", frameID)
	}
	f.Height = clampSize(height, f.Height)
	f.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateObject(ctx, &f); err != nil {
		return fmt.Errorf("store: %v", err)
	}
	d.mirror(&f)
	return nil
}

// created echoes the resolved placement so the model can reference it in
// later calls.
func created(callID string, o *domain.Object) *domain.ToolResult {
	data, _ := json.Marshal(map[string]any{
		"id": o.ID, "x": o.X, "y": o.Y, "width": o.Width, "height": o.Height,
	})
	return &domain.ToolResult{ToolCallID: callID, Success: true, ObjectID: o.ID, Data: data}
}

func (d *Dispatcher) createLeaf(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[createLeafParams](call)
	if bad != nil {
		return bad
	}
	obj, err := d.createOne(ctx, p)
	if err != nil {
		return fail(call.ID, "create_leaf: %v", err)
	}
	return created(call.ID, obj)
}

type createFrameParams struct {
	Title  string   `json:"title"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Color  string   `json:"color"`
}

func (d *Dispatcher) createFrame(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[createFrameParams](call)
	if bad != nil {
		return bad
	}
	defW, defH := domain.DefaultSize(domain.TypeFrame)
	w := clampSize(p.Width, defW)
	h := clampSize(p.Height, defH)

	var x, y float64
	if p.X != nil && p.Y != nil {
		x, y = nearestFree(d.arena, clampCoord(*p.X), clampCoord(*p.Y), w, h, true)
	} else {
		origin := defaultOrigin(d.arena.Viewport, w, h)
		pos := d.cursor.Next(origin, w, h)
		x, y = pos.X, pos.Y
	}

	now := time.Now().UTC()
	obj := &domain.Object{
		ID:        uuid.NewString(),
		CanvasID:  d.arena.CanvasID,
		Type:      domain.TypeFrame,
		Text:      sanitizeText(p.Title),
		X:         x,
		Y:         y,
		Width:     w,
		Height:    h,
		Color:     domain.NormalizeColor(p.Color, domain.TypeFrame),
		Z:         d.arena.NextZ(),
		CreatedBy: d.arena.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.InsertObject(ctx, obj); err != nil {
		return fail(call.ID, "create_frame: store: %v", err)
	}
	d.mirror(obj)
	return created(call.ID, obj)
}

type createConnectorParams struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	Style  string `json:"style"`
	Label  string `json:"label"`
	Color  string `json:"color"`
}

func (d *Dispatcher) createConnector(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[createConnectorParams](call)
	if bad != nil {
		return bad
	}
	if _, ok := d.lookup(p.FromID); !ok {
		return fail(call.ID, "create_connector: object %q not found", p.FromID)
	}
	if _, ok := d.lookup(p.ToID); !ok {
		return fail(call.ID, "create_connector: object %q not found", p.ToID)
	}
	style := domain.ConnectorStyle(p.Style)
	if style != domain.StyleLine {
		style = domain.StyleArrow
	}

	conn := &domain.Connector{
		ID:          uuid.NewString(),
		CanvasID:    d.arena.CanvasID,
		FromID:      p.FromID,
		ToID:        p.ToID,
		Style:       style,
		Color:       domain.NormalizeColor(p.Color, domain.TypeLine),
		StrokeWidth: 2,
		Label:       sanitizeText(p.Label),
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.store.InsertConnector(ctx, conn); err != nil {
		return fail(call.ID, "create_connector: store: %v", err)
	}
	d.mu.Lock()
	d.arena.AddConnector(conn)
	d.mu.Unlock()
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectID: conn.ID}
}

type bulkCreateParams struct {
	Items []createLeafParams `json:"items"`
}

// maxBulkItems bounds one bulk_create; overlong item lists are cut, not
// rejected, and the result reports the truncation.
const maxBulkItems = 120

func (d *Dispatcher) bulkCreate(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[bulkCreateParams](call)
	if bad != nil {
		return bad
	}
	if len(p.Items) == 0 {
		return fail(call.ID, "bulk_create: no items")
	}
	items := p.Items
	truncated := false
	if len(items) > maxBulkItems {
		items = items[:maxBulkItems]
		truncated = true
	}

	ids := make([]string, 0, len(items))
	for i, item := range items {
		obj, err := d.createOne(ctx, item)
		if err != nil {
			res := fail(call.ID, "bulk_create: item %d: %v", i, err)
			res.ObjectIDs = ids
			return res
		}
		ids = append(ids, obj.ID)
	}

	data, _ := json.Marshal(map[string]any{"created": len(ids), "truncated": truncated})
	return &domain.ToolResult{ToolCallID: call.ID, Success: true, ObjectIDs: ids, Data: data}
}
