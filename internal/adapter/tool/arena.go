package tool

import (
	"sort"

	"boardpilot/internal/domain"
)

// Arena is the in-memory mirror of one canvas, loaded once per command and
// owned by that command's goroutine. Every store write is mirrored here so
// later tool calls in the same command see earlier results without re-reading
// the store. It is not safe for concurrent mutation; the orchestrator only
// parallelizes ops that touch disjoint objects.
type Arena struct {
	CanvasID    string
	UserID      string
	Viewport    domain.Viewport
	SelectedIDs []string

	objects    map[string]*domain.Object
	order      []string
	connectors map[string]*domain.Connector
	connOrder  []string
	maxZ       int
}

// NewArena builds the mirror from a store snapshot.
func NewArena(req domain.CommandRequest, objects []domain.Object, connectors []domain.Connector) *Arena {
	a := &Arena{
		CanvasID:    req.CanvasID,
		UserID:      req.UserID,
		Viewport:    req.Viewport,
		SelectedIDs: req.SelectedIDs,
		objects:     make(map[string]*domain.Object, len(objects)),
		order:       make([]string, 0, len(objects)),
		connectors:  make(map[string]*domain.Connector, len(connectors)),
		connOrder:   make([]string, 0, len(connectors)),
	}
	for i := range objects {
		o := objects[i]
		a.objects[o.ID] = &o
		a.order = append(a.order, o.ID)
		if o.Z > a.maxZ {
			a.maxZ = o.Z
		}
	}
	for i := range connectors {
		c := connectors[i]
		a.connectors[c.ID] = &c
		a.connOrder = append(a.connOrder, c.ID)
	}
	return a
}

// Object returns the mirrored object, or nil when absent.
func (a *Arena) Object(id string) *domain.Object { return a.objects[id] }

// Objects returns all objects in load-then-creation order.
func (a *Arena) Objects() []domain.Object {
	out := make([]domain.Object, 0, len(a.order))
	for _, id := range a.order {
		if o, ok := a.objects[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// ObjectsByType returns objects of the given type.
func (a *Arena) ObjectsByType(t domain.ObjectType) []domain.Object {
	var out []domain.Object
	for _, id := range a.order {
		if o, ok := a.objects[id]; ok && o.Type == t {
			out = append(out, *o)
		}
	}
	return out
}

// Frames returns all frame objects.
func (a *Arena) Frames() []domain.Object { return a.ObjectsByType(domain.TypeFrame) }

// FrameByTitle finds a frame whose title matches exactly, or nil.
func (a *Arena) FrameByTitle(title string) *domain.Object {
	for _, id := range a.order {
		if o, ok := a.objects[id]; ok && o.IsFrame() && o.Text == title {
			return o
		}
	}
	return nil
}

// Children returns the objects parented to the given frame, ordered top-left
// to bottom-right so re-layouts keep the visual reading order.
func (a *Arena) Children(frameID string) []domain.Object {
	var out []domain.Object
	for _, id := range a.order {
		if o, ok := a.objects[id]; ok && o.ParentID == frameID {
			out = append(out, *o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Add mirrors a newly created object.
func (a *Arena) Add(o *domain.Object) {
	if _, exists := a.objects[o.ID]; !exists {
		a.order = append(a.order, o.ID)
	}
	a.objects[o.ID] = o
	if o.Z > a.maxZ {
		a.maxZ = o.Z
	}
}

// Remove drops an object from the mirror.
func (a *Arena) Remove(id string) { delete(a.objects, id) }

// Len returns the number of live objects.
func (a *Arena) Len() int { return len(a.objects) }

// NextZ returns the next z-index above everything on the canvas.
func (a *Arena) NextZ() int {
	a.maxZ++
	return a.maxZ
}

// Connectors returns all connectors in load-then-creation order.
func (a *Arena) Connectors() []domain.Connector {
	out := make([]domain.Connector, 0, len(a.connOrder))
	for _, id := range a.connOrder {
		if c, ok := a.connectors[id]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// AddConnector mirrors a newly created connector.
func (a *Arena) AddConnector(c *domain.Connector) {
	if _, exists := a.connectors[c.ID]; !exists {
		a.connOrder = append(a.connOrder, c.ID)
	}
	a.connectors[c.ID] = c
}

// RemoveConnector drops a connector from the mirror.
func (a *Arena) RemoveConnector(id string) { delete(a.connectors, id) }

// RemoveConnectorsFor drops every connector touching the given object and
// returns their ids, mirroring the store-side endpoint cascade.
func (a *Arena) RemoveConnectorsFor(objectID string) []string {
	var removed []string
	for _, id := range a.connOrder {
		c, ok := a.connectors[id]
		if !ok {
			continue
		}
		if c.FromID == objectID || c.ToID == objectID {
			delete(a.connectors, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Selected returns the objects named by the command's selection that still
// exist on the canvas.
func (a *Arena) Selected() []domain.Object {
	var out []domain.Object
	for _, id := range a.SelectedIDs {
		if o, ok := a.objects[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// BatchCursor lays out same-command creations that arrive without
// coordinates. It is deliberately separate from the Arena: the mirror tracks
// what exists, the cursor tracks where the next auto-placed object goes.
// Placement forms a grid of batchColumns columns with batchGap spacing,
// anchored at the first auto-placement's origin.
type BatchCursor struct {
	origin   domain.Point
	anchored bool
	index    int
	rowTop   float64
	rowH     float64
}

// Next returns the position for the next auto-placed object of the given
// size, anchoring the grid at origin on first use. Row height follows the
// tallest object in the row.
func (c *BatchCursor) Next(origin domain.Point, w, h float64) domain.Point {
	if !c.anchored {
		c.origin = origin
		c.rowTop = origin.Y
		c.anchored = true
	}
	col := c.index % batchColumns
	if col == 0 && c.index > 0 {
		c.rowTop += c.rowH + batchGap
		c.rowH = 0
	}
	if h > c.rowH {
		c.rowH = h
	}
	p := domain.Point{X: c.origin.X + float64(col)*(w+batchGap), Y: c.rowTop}
	c.index++
	return p
}

// Placed reports how many auto-placements the cursor has issued.
func (c *BatchCursor) Placed() int { return c.index }
