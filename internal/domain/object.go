package domain

import (
	"math"
	"strings"
	"time"
)

// ObjectType is the closed set of canvas object types.
type ObjectType string

const (
	TypeNote      ObjectType = "note"
	TypeRectangle ObjectType = "rectangle"
	TypeCircle    ObjectType = "circle"
	TypeDiamond   ObjectType = "diamond"
	TypeLine      ObjectType = "line"
	TypeText      ObjectType = "text"
	TypeFrame     ObjectType = "frame"
)

// ShapeTypes are the subtypes the generic "shape" type expands to in bulk
// operations ("delete all shapes" removes all of these, never notes or frames).
var ShapeTypes = []ObjectType{TypeRectangle, TypeCircle, TypeDiamond, TypeLine}

// IsShape reports whether t is one of the shape subtypes.
func IsShape(t ObjectType) bool {
	for _, s := range ShapeTypes {
		if t == s {
			return true
		}
	}
	return false
}

// ValidObjectType reports whether t names a known object type.
func ValidObjectType(t ObjectType) bool {
	switch t {
	case TypeNote, TypeRectangle, TypeCircle, TypeDiamond, TypeLine, TypeText, TypeFrame:
		return true
	}
	return false
}

// Geometry bounds. All coordinates and sizes are clamped into these ranges
// before persisting; model-supplied values outside them are corrected, not
// rejected.
const (
	MaxCoordinate = 50000.0
	MinObjectSize = 16.0
	MaxObjectSize = 8000.0
	MaxTextLength = 4000
)

// Object is one visual entity on a canvas.
type Object struct {
	ID        string     `json:"id"`
	CanvasID  string     `json:"canvas_id"`
	Type      ObjectType `json:"type"`
	Text      string     `json:"text,omitempty"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	Color     string     `json:"color,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"` // must reference a frame or be empty
	Z         int        `json:"z"`
	Rotation  float64    `json:"rotation,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Bounds returns the object's axis-aligned bounding rectangle.
func (o *Object) Bounds() Rect {
	return Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}
}

// IsFrame reports whether the object can contain children.
func (o *Object) IsFrame() bool { return o.Type == TypeFrame }

// ConnectorStyle is the visual style of a connector.
type ConnectorStyle string

const (
	StyleArrow ConnectorStyle = "arrow"
	StyleLine  ConnectorStyle = "line"
)

// Point is a free-floating coordinate used for unanchored connector ends.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Connector links two canvas objects, or free points when an endpoint id is
// empty. Deleting either endpoint object cascade-deletes the connector.
type Connector struct {
	ID          string         `json:"id"`
	CanvasID    string         `json:"canvas_id"`
	FromID      string         `json:"from_id,omitempty"`
	ToID        string         `json:"to_id,omitempty"`
	FromPoint   *Point         `json:"from_point,omitempty"`
	ToPoint     *Point         `json:"to_point,omitempty"`
	Style       ConnectorStyle `json:"style"`
	Color       string         `json:"color,omitempty"`
	StrokeWidth float64        `json:"stroke_width,omitempty"`
	Label       string         `json:"label,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Rect is an axis-aligned rectangle in canvas coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Intersects reports whether r and other overlap.
func (r Rect) Intersects(other Rect) bool {
	return r.X < other.X+other.Width && r.X+r.Width > other.X &&
		r.Y < other.Y+other.Height && r.Y+r.Height > other.Y
}

// Expand grows the rectangle by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
}

// Center returns the rectangle's midpoint.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Union returns the smallest rectangle covering both r and other.
func (r Rect) Union(other Rect) Rect {
	minX := math.Min(r.X, other.X)
	minY := math.Min(r.Y, other.Y)
	maxX := math.Max(r.X+r.Width, other.X+other.Width)
	maxY := math.Max(r.Y+r.Height, other.Y+other.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// BoundingRect returns the union bounds of a set of objects, or the zero Rect
// for an empty set.
func BoundingRect(objects []Object) Rect {
	if len(objects) == 0 {
		return Rect{}
	}
	bounds := objects[0].Bounds()
	for _, o := range objects[1:] {
		bounds = bounds.Union(o.Bounds())
	}
	return bounds
}

// Viewport is the caller's visible canvas region.
type Viewport = Rect

// Palette maps the color words the model is told about to hex values.
var Palette = map[string]string{
	"yellow": "#FFF9B1",
	"orange": "#FFD166",
	"red":    "#F8A5A5",
	"pink":   "#F5C2E7",
	"purple": "#CBAACB",
	"blue":   "#A8D8FF",
	"cyan":   "#A5E8E0",
	"green":  "#C3F0C8",
	"gray":   "#D9DCE1",
	"grey":   "#D9DCE1",
	"white":  "#FFFFFF",
	"black":  "#1F2937",
}

// defaultColors per object type, used when no color is given or the given
// color cannot be resolved.
var defaultColors = map[ObjectType]string{
	TypeNote:      "#FFF9B1",
	TypeRectangle: "#A8D8FF",
	TypeCircle:    "#C3F0C8",
	TypeDiamond:   "#CBAACB",
	TypeLine:      "#D9DCE1",
	TypeText:      "#1F2937",
	TypeFrame:     "#F3F4F6",
}

// NormalizeColor resolves a color word or hex literal to a hex value for the
// given object type. Unknown inputs fall back to the type default.
func NormalizeColor(color string, t ObjectType) string {
	c := strings.ToLower(strings.TrimSpace(color))
	if hex, ok := Palette[c]; ok {
		return hex
	}
	if isHexColor(c) {
		return c
	}
	if def, ok := defaultColors[t]; ok {
		return def
	}
	return "#D9DCE1"
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// defaultSizes per object type, applied when a creation gives no size.
var defaultSizes = map[ObjectType]struct{ W, H float64 }{
	TypeNote:      {200, 140},
	TypeRectangle: {200, 120},
	TypeCircle:    {140, 140},
	TypeDiamond:   {140, 140},
	TypeLine:      {200, 16},
	TypeText:      {220, 40},
	TypeFrame:     {420, 320},
}

// DefaultSize returns the default width and height for an object type.
func DefaultSize(t ObjectType) (w, h float64) {
	if s, ok := defaultSizes[t]; ok {
		return s.W, s.H
	}
	return 160, 120
}
