package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"boardpilot/internal/domain"
)

type bulkDeleteParams struct {
	Mode       string   `json:"mode"`
	ObjectIDs  []string `json:"object_ids"`
	ObjectType string   `json:"object_type"`
}

func (d *Dispatcher) bulkDelete(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	p, bad := parseArgs[bulkDeleteParams](call)
	if bad != nil {
		return bad
	}
	switch p.Mode {
	case "all":
		return d.deleteAll(ctx, call.ID)
	case "by_ids":
		return d.deleteByIDs(ctx, call.ID, p.ObjectIDs)
	case "by_type":
		return d.deleteByType(ctx, call.ID, p.ObjectType)
	default:
		return fail(call.ID, "bulk_delete: unknown mode %q", p.Mode)
	}
}

// deleteAll clears the canvas: every connector first, then every object.
// The result reports the object count as a single "all (N)" entry rather
// than listing ids.
func (d *Dispatcher) deleteAll(ctx context.Context, callID string) *domain.ToolResult {
	for _, c := range d.arena.Connectors() {
		if err := d.store.DeleteConnector(ctx, d.arena.CanvasID, c.ID); err != nil {
			return fail(callID, "bulk_delete: store: %v", err)
		}
		d.arena.RemoveConnector(c.ID)
	}
	objects := d.arena.Objects()
	for _, o := range objects {
		if err := d.store.DeleteObject(ctx, d.arena.CanvasID, o.ID); err != nil {
			return fail(callID, "bulk_delete: store: %v", err)
		}
		d.arena.Remove(o.ID)
	}
	return &domain.ToolResult{
		ToolCallID: callID,
		Success:    true,
		ObjectIDs:  []string{fmt.Sprintf("all (%d)", len(objects))},
	}
}

// deleteByIDs removes the named objects, skipping ids that no longer exist.
// Deleting what is already gone is not an error.
func (d *Dispatcher) deleteByIDs(ctx context.Context, callID string, ids []string) *domain.ToolResult {
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		o := d.arena.Object(id)
		if o == nil {
			continue
		}
		if err := d.deleteObject(ctx, o); err != nil {
			res := fail(callID, "bulk_delete: %v", err)
			res.ObjectIDs = deleted
			return res
		}
		deleted = append(deleted, id)
	}
	data, _ := json.Marshal(map[string]any{"deleted": len(deleted), "skipped": len(ids) - len(deleted)})
	return &domain.ToolResult{ToolCallID: callID, Success: true, ObjectIDs: deleted, Data: data}
}

// deleteByType removes every object of one type. The pseudo-type "shape"
// expands to all shape subtypes, never notes, text, or frames.
func (d *Dispatcher) deleteByType(ctx context.Context, callID, typeName string) *domain.ToolResult {
	targets, err := resolveTypes(typeName)
	if err != nil {
		return fail(callID, "bulk_delete: %v", err)
	}
	var deleted []string
	for _, t := range targets {
		for _, o := range d.arena.ObjectsByType(t) {
			obj := o
			if err := d.deleteObject(ctx, &obj); err != nil {
				res := fail(callID, "bulk_delete: %v", err)
				res.ObjectIDs = deleted
				return res
			}
			deleted = append(deleted, o.ID)
		}
	}
	data, _ := json.Marshal(map[string]any{"deleted": len(deleted), "type": typeName})
	return &domain.ToolResult{ToolCallID: callID, Success: true, ObjectIDs: deleted, Data: data}
}

// deleteObject removes one object with its connector cascade. Deleting a
// frame orphans its children back to the canvas root instead of deleting
// them.
func (d *Dispatcher) deleteObject(ctx context.Context, o *domain.Object) error {
	if err := d.store.DeleteConnectorsForObject(ctx, d.arena.CanvasID, o.ID); err != nil {
		return fmt.Errorf("store: %v", err)
	}
	if err := d.store.DeleteObject(ctx, d.arena.CanvasID, o.ID); err != nil {
		return fmt.Errorf("store: %v", err)
	}
	d.unmirror(o.ID)

	if o.IsFrame() {
		for _, child := range d.arena.Children(o.ID) {
			freed := child
			freed.ParentID = ""
			freed.UpdatedAt = time.Now().UTC()
			if err := d.store.UpdateObject(ctx, &freed); err != nil {
				return fmt.Errorf("store: %v", err)
			}
			d.mirror(&freed)
		}
	}
	return nil
}

// resolveTypes expands a type name into concrete object types, handling the
// "shape" pseudo-type.
func resolveTypes(name string) ([]domain.ObjectType, error) {
	if name == "shape" {
		return domain.ShapeTypes, nil
	}
	t := domain.ObjectType(name)
	if !domain.ValidObjectType(t) {
		return nil, fmt.Errorf("unknown object type %q", name)
	}
	return []domain.ObjectType{t}, nil
}
