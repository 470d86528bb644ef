package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsShape(t *testing.T) {
	assert.True(t, IsShape(TypeRectangle))
	assert.True(t, IsShape(TypeCircle))
	assert.True(t, IsShape(TypeLine))
	assert.False(t, IsShape(TypeNote))
	assert.False(t, IsShape(TypeFrame))
}

func TestNormalizeColor(t *testing.T) {
	if got := NormalizeColor("yellow", TypeNote); got != "#FFF9B1" {
		t.Errorf("yellow = %q, want #FFF9B1", got)
	}
	if got := NormalizeColor("GREY", TypeNote); got != "#D9DCE1" {
		t.Errorf("grey = %q, want #D9DCE1", got)
	}
	// Hex literals pass through.
	if got := NormalizeColor("#abc123", TypeNote); got != "#abc123" {
		t.Errorf("hex = %q, want #abc123", got)
	}
	// Unknown words fall back to the type default.
	if got := NormalizeColor("chartreuse-ish", TypeCircle); got != defaultColors[TypeCircle] {
		t.Errorf("unknown = %q, want type default", got)
	}
	if got := NormalizeColor("", TypeRectangle); got != defaultColors[TypeRectangle] {
		t.Errorf("empty = %q, want type default", got)
	}
}

func TestRectIntersects(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	b := Rect{X: 50, Y: 50, Width: 100, Height: 100}
	c := Rect{X: 200, Y: 200, Width: 10, Height: 10}

	assert.True(t, a.Intersects(b))
	assert.True(t, b.Intersects(a))
	assert.False(t, a.Intersects(c))

	// Touching edges do not count as overlap.
	d := Rect{X: 100, Y: 0, Width: 50, Height: 50}
	assert.False(t, a.Intersects(d))
}

func TestRectExpandAndUnion(t *testing.T) {
	r := Rect{X: 10, Y: 10, Width: 20, Height: 20}
	e := r.Expand(5)
	assert.Equal(t, Rect{X: 5, Y: 5, Width: 30, Height: 30}, e)

	u := r.Union(Rect{X: 40, Y: 0, Width: 10, Height: 10})
	assert.Equal(t, Rect{X: 10, Y: 0, Width: 40, Height: 30}, u)
}

func TestBoundingRect(t *testing.T) {
	objs := []Object{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 90, Y: 40, Width: 10, Height: 10},
	}
	got := BoundingRect(objs)
	assert.Equal(t, Rect{X: 0, Y: 0, Width: 100, Height: 50}, got)

	assert.Equal(t, Rect{}, BoundingRect(nil))
}

func TestDefaultSize(t *testing.T) {
	w, h := DefaultSize(TypeNote)
	assert.Equal(t, 200.0, w)
	assert.Equal(t, 140.0, h)

	// Unknown types still get a usable size.
	w, h = DefaultSize(ObjectType("mystery"))
	assert.Greater(t, w, 0.0)
	assert.Greater(t, h, 0.0)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobExecuting.Terminal())
}
