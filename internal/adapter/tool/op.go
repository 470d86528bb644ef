package tool

import (
	"encoding/json"

	"boardpilot/internal/domain"
)

// Op is the closed set of canvas operations the dispatcher understands.
// The catalog announced to the model is open JSON, but dispatch is a single
// exhaustive switch over this enum.
type Op string

const (
	OpCreateLeaf      Op = "create_leaf"
	OpCreateFrame     Op = "create_frame"
	OpMoveObject      Op = "move_object"
	OpResizeObject    Op = "resize_object"
	OpUpdateText      Op = "update_text"
	OpChangeColor     Op = "change_color"
	OpAddToFrame      Op = "add_to_frame"
	OpRemoveFromFrame Op = "remove_from_frame"
	OpCreateConnector Op = "create_connector"
	OpBulkDelete      Op = "bulk_delete"
	OpBulkCreate      Op = "bulk_create"
	OpArrangeObjects  Op = "arrange_objects"
	OpRearrangeFrame  Op = "rearrange_frame"
	OpGetContext      Op = "get_context"
)

// AllOps returns every operation in catalog order.
func AllOps() []Op {
	return []Op{
		OpCreateLeaf, OpCreateFrame, OpMoveObject, OpResizeObject,
		OpUpdateText, OpChangeColor, OpAddToFrame, OpRemoveFromFrame,
		OpCreateConnector, OpBulkDelete, OpBulkCreate, OpArrangeObjects,
		OpRearrangeFrame, OpGetContext,
	}
}

// ParseOp maps a tool name from the model to an Op.
func ParseOp(name string) (Op, bool) {
	op := Op(name)
	switch op {
	case OpCreateLeaf, OpCreateFrame, OpMoveObject, OpResizeObject,
		OpUpdateText, OpChangeColor, OpAddToFrame, OpRemoveFromFrame,
		OpCreateConnector, OpBulkDelete, OpBulkCreate, OpArrangeObjects,
		OpRearrangeFrame, OpGetContext:
		return op, true
	}
	return "", false
}

// parallelSafeOps never touch the shared placement cursor or create identity,
// so a batch consisting only of these may run concurrently.
var parallelSafeOps = map[Op]bool{
	OpMoveObject:   true,
	OpResizeObject: true,
	OpUpdateText:   true,
	OpChangeColor:  true,
}

// IsParallelSafe reports whether an op may run inside a concurrent batch.
func IsParallelSafe(op Op) bool { return parallelSafeOps[op] }

// typeFilterEnum is the type filter for bulk and read ops; "shape" is a
// pseudo-type expanding to all shape subtypes.
const typeFilterEnum = `["note", "rectangle", "circle", "diamond", "line", "text", "frame", "shape"]`

// opSchemas is the model-facing catalog. Descriptions are written for the
// model, not for humans reading this file.
var opSchemas = map[Op]domain.ToolSchema{
	OpCreateLeaf: {
		Name:        string(OpCreateLeaf),
		Description: "Create one canvas object (note, shape, or text). Omit x/y to auto-place; pass frame_id to place inside a frame.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"type": {"type": "string", "enum": ["note", "rectangle", "circle", "diamond", "line", "text"], "description": "Object type to create."},
				"text": {"type": "string", "description": "Text content of the object."},
				"x": {"type": "number", "description": "Optional x coordinate of the top-left corner."},
				"y": {"type": "number", "description": "Optional y coordinate of the top-left corner."},
				"width": {"type": "number", "description": "Optional width; defaults per type."},
				"height": {"type": "number", "description": "Optional height; defaults per type."},
				"color": {"type": "string", "description": "Color name (yellow, blue, green, ...) or hex value."},
				"frame_id": {"type": "string", "description": "Optional id of a frame to place the object into."}
			},
			"required": ["type"]
		}`),
	},
	OpCreateFrame: {
		Name:        string(OpCreateFrame),
		Description: "Create a titled frame (container) that groups other objects.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Frame title shown in its header."},
				"x": {"type": "number", "description": "Optional x coordinate."},
				"y": {"type": "number", "description": "Optional y coordinate."},
				"width": {"type": "number", "description": "Optional width; default 420."},
				"height": {"type": "number", "description": "Optional height; default 320."},
				"color": {"type": "string", "description": "Optional fill color name or hex."}
			},
			"required": ["title"]
		}`),
	},
	OpMoveObject: {
		Name:        string(OpMoveObject),
		Description: "Move an existing object to a new position.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object_id": {"type": "string", "description": "Id of the object to move."},
				"x": {"type": "number", "description": "New x coordinate."},
				"y": {"type": "number", "description": "New y coordinate."}
			},
			"required": ["object_id", "x", "y"]
		}`),
	},
	OpResizeObject: {
		Name:        string(OpResizeObject),
		Description: "Resize an existing object.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object_id": {"type": "string", "description": "Id of the object to resize."},
				"width": {"type": "number", "description": "New width."},
				"height": {"type": "number", "description": "New height."}
			},
			"required": ["object_id", "width", "height"]
		}`),
	},
	OpUpdateText: {
		Name:        string(OpUpdateText),
		Description: "Replace the text content of an object (or a frame's title).",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object_id": {"type": "string", "description": "Id of the object to edit."},
				"text": {"type": "string", "description": "New text content."}
			},
			"required": ["object_id", "text"]
		}`),
	},
	OpChangeColor: {
		Name:        string(OpChangeColor),
		Description: "Change the color of an object.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object_id": {"type": "string", "description": "Id of the object to recolor."},
				"color": {"type": "string", "description": "Color name (yellow, blue, green, ...) or hex value."}
			},
			"required": ["object_id", "color"]
		}`),
	},
	OpAddToFrame: {
		Name:        string(OpAddToFrame),
		Description: "Move an existing object into a frame at the next open slot.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object_id": {"type": "string", "description": "Id of the object to add."},
				"frame_id": {"type": "string", "description": "Id of the destination frame."}
			},
			"required": ["object_id", "frame_id"]
		}`),
	},
	OpRemoveFromFrame: {
		Name:        string(OpRemoveFromFrame),
		Description: "Detach an object from its frame, keeping its position.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object_id": {"type": "string", "description": "Id of the object to detach."}
			},
			"required": ["object_id"]
		}`),
	},
	OpCreateConnector: {
		Name:        string(OpCreateConnector),
		Description: "Create a connector (arrow or line) between two objects.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"from_id": {"type": "string", "description": "Id of the source object."},
				"to_id": {"type": "string", "description": "Id of the target object."},
				"style": {"type": "string", "enum": ["arrow", "line"], "description": "Connector style; default arrow."},
				"label": {"type": "string", "description": "Optional label on the connector."},
				"color": {"type": "string", "description": "Optional color name or hex."}
			},
			"required": ["from_id", "to_id"]
		}`),
	},
	OpBulkDelete: {
		Name:        string(OpBulkDelete),
		Description: "Delete many objects at once: everything, a list of ids, or all of one type. Attached connectors are removed automatically.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"mode": {"type": "string", "enum": ["all", "by_ids", "by_type"], "description": "Deletion mode."},
				"object_ids": {"type": "array", "items": {"type": "string"}, "description": "Ids to delete when mode is by_ids."},
				"object_type": {"type": "string", "enum": ` + typeFilterEnum + `, "description": "Type to delete when mode is by_type; 'shape' expands to all shape types."}
			},
			"required": ["mode"]
		}`),
	},
	OpBulkCreate: {
		Name:        string(OpBulkCreate),
		Description: "Create many objects in one call. Items without coordinates are laid out in a clean grid.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"items": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"type": {"type": "string", "enum": ["note", "rectangle", "circle", "diamond", "line", "text"]},
							"text": {"type": "string"},
							"x": {"type": "number"},
							"y": {"type": "number"},
							"color": {"type": "string"},
							"frame_id": {"type": "string"}
						},
						"required": ["type"]
					},
					"description": "Objects to create."
				}
			},
			"required": ["items"]
		}`),
	},
	OpArrangeObjects: {
		Name:        string(OpArrangeObjects),
		Description: "Arrange a set of objects into a grid, row, or column centered on their current positions.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"object_ids": {"type": "array", "items": {"type": "string"}, "description": "Ids of the objects to arrange."},
				"layout": {"type": "string", "enum": ["grid", "row", "column"], "description": "Layout shape; default grid."},
				"columns": {"type": "integer", "description": "Optional column count for grid layout."}
			},
			"required": ["object_ids"]
		}`),
	},
	OpRearrangeFrame: {
		Name:        string(OpRearrangeFrame),
		Description: "Re-pack a frame's children into a tidy grid, growing the frame if needed.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"frame_id": {"type": "string", "description": "Id of the frame to tidy."}
			},
			"required": ["frame_id"]
		}`),
	},
	OpGetContext: {
		Name:        string(OpGetContext),
		Description: "Read canvas objects. Scopes: all, frames, selected, viewport, by_type. Results are capped at 100.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"scope": {"type": "string", "enum": ["all", "frames", "selected", "viewport", "by_type"], "description": "What to read; default all."},
				"object_type": {"type": "string", "enum": ` + typeFilterEnum + `, "description": "Type filter when scope is by_type."}
			}
		}`),
	},
}

// Catalog returns the schemas for the given tool names, or the full catalog
// when allowed is nil. Unknown names are skipped.
func Catalog(allowed []string) []domain.ToolSchema {
	if allowed == nil {
		out := make([]domain.ToolSchema, 0, len(opSchemas))
		for _, op := range AllOps() {
			out = append(out, opSchemas[op])
		}
		return out
	}
	out := make([]domain.ToolSchema, 0, len(allowed))
	for _, name := range allowed {
		if op, ok := ParseOp(name); ok {
			out = append(out, opSchemas[op])
		}
	}
	return out
}
