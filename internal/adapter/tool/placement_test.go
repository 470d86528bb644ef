package tool

import (
	"fmt"
	"testing"

	"boardpilot/internal/domain"
)

func TestBatchCursorGrid(t *testing.T) {
	var c BatchCursor
	origin := domain.Point{X: 100, Y: 200}

	var points []domain.Point
	for i := 0; i < 12; i++ {
		points = append(points, c.Next(origin, 200, 140))
	}

	if points[0] != origin {
		t.Errorf("first placement %+v, want origin", points[0])
	}
	// Second origin argument is ignored; the grid stays anchored.
	other := c.Next(domain.Point{X: 9999, Y: 9999}, 200, 140)
	if other.X >= 9999 {
		t.Error("cursor re-anchored mid-batch")
	}

	for i, p := range points {
		col := i % batchColumns
		row := i / batchColumns
		wantX := 100 + float64(col)*(200+batchGap)
		wantY := 200 + float64(row)*(140+batchGap)
		if p.X != wantX || p.Y != wantY {
			t.Errorf("placement %d = (%v, %v), want (%v, %v)", i, p.X, p.Y, wantX, wantY)
		}
	}
}

func TestBatchCursorRowHeightFollowsTallest(t *testing.T) {
	var c BatchCursor
	origin := domain.Point{X: 0, Y: 0}

	// Fill the first row; the third item is tall.
	for i := 0; i < batchColumns; i++ {
		h := 100.0
		if i == 2 {
			h = 300
		}
		c.Next(origin, 200, h)
	}
	next := c.Next(origin, 200, 100)
	if next.Y != 300+batchGap {
		t.Errorf("second row at %v, want below the tallest first-row item", next.Y)
	}
}

func TestDefaultOrigin(t *testing.T) {
	got := defaultOrigin(domain.Viewport{}, 200, 140)
	if got.X != 120 || got.Y != 120 {
		t.Errorf("zero viewport origin = %+v", got)
	}

	got = defaultOrigin(domain.Viewport{X: 0, Y: 0, Width: 1200, Height: 800}, 200, 140)
	if got.X != 500 || got.Y != 330 {
		t.Errorf("origin = %+v, want viewport center less half size", got)
	}
}

func TestNearestFree(t *testing.T) {
	empty := NewArena(testRequest(), nil, nil)
	x, y := nearestFree(empty, 50, 60, 200, 140, false)
	if x != 50 || y != 60 {
		t.Errorf("empty canvas moved the point to (%v, %v)", x, y)
	}

	blocker := note("n1", 50, 60)
	occupied := NewArena(testRequest(), []domain.Object{blocker}, nil)
	x, y = nearestFree(occupied, 50, 60, 200, 140, false)
	if x == 50 && y == 60 {
		t.Fatal("occupied point not displaced")
	}
	cand := domain.Rect{X: x, Y: y, Width: 200, Height: 140}
	if cand.Intersects(blocker.Bounds()) {
		t.Errorf("displaced to (%v, %v), still overlapping", x, y)
	}
}

func TestNearestFreeEscapesLargeBlocker(t *testing.T) {
	// A frame-sized candidate must be able to clear an equally large frame;
	// a fixed-size step would run out of probes inside the blocker.
	blocker := frame("f1", "Existing", 0, 0, 200, 150)
	a := NewArena(testRequest(), []domain.Object{blocker}, nil)

	x, y := nearestFree(a, 0, 0, 200, 150, true)
	if x == 0 && y == 0 {
		t.Fatal("frame candidate not displaced off an occupied frame")
	}
	cand := domain.Rect{X: x, Y: y, Width: 200, Height: 150}
	if cand.Intersects(blocker.Bounds()) {
		t.Errorf("displaced to (%v, %v), still overlapping the frame", x, y)
	}
}

func TestNearestFreeGivesUpOnCrowd(t *testing.T) {
	// Blanket far more area than maxSpiralProbes * spiralStep can escape.
	var objects []domain.Object
	id := 0
	for gx := -30; gx <= 30; gx++ {
		for gy := -12; gy <= 12; gy++ {
			id++
			objects = append(objects, domain.Object{
				ID: fmt.Sprintf("o%d", id), CanvasID: testCanvas, Type: domain.TypeNote,
				X: float64(gx) * 200, Y: float64(gy) * 200, Width: 200, Height: 200,
			})
		}
	}
	a := NewArena(testRequest(), objects, nil)
	x, y := nearestFree(a, 0, 0, 100, 100, false)
	if x != 0 || y != 0 {
		t.Errorf("crowded probe returned (%v, %v), want the original point back", x, y)
	}
}

func TestFrameSlot(t *testing.T) {
	f := frame("f1", "F", 100, 50, 488, 320)

	x, y, required := frameSlot(&f, 0, 220, 150)
	if x != 100+framePad || y != 50+frameTitleBand {
		t.Errorf("slot 0 = (%v, %v)", x, y)
	}
	if required != frameTitleBand+150+framePad {
		t.Errorf("slot 0 required height %v", required)
	}

	// 488 wide fits two 220 cells.
	x, y, _ = frameSlot(&f, 1, 220, 150)
	if x != 100+framePad+220+frameGap || y != 50+frameTitleBand {
		t.Errorf("slot 1 = (%v, %v)", x, y)
	}
	x, y, required = frameSlot(&f, 2, 220, 150)
	if x != 100+framePad || y != 50+frameTitleBand+150+frameGap {
		t.Errorf("slot 2 = (%v, %v)", x, y)
	}
	if required != frameTitleBand+2*150+frameGap+framePad {
		t.Errorf("slot 2 required height %v", required)
	}
}

func TestFrameSlotNarrowFrameSingleColumn(t *testing.T) {
	f := frame("f1", "F", 0, 0, 100, 320)
	x, _, _ := frameSlot(&f, 3, 220, 150)
	if x != framePad {
		t.Errorf("narrow frame slot x = %v, want single column at pad", x)
	}
}

func TestArrangeLayoutShapes(t *testing.T) {
	objs := []domain.Object{
		note("n1", 0, 0), note("n2", 300, 0), note("n3", 0, 300),
		note("n4", 300, 300), note("n5", 600, 600),
	}

	grid := arrangeLayout(objs, "grid", 0)
	if len(grid) != 5 {
		t.Fatalf("grid has %d positions", len(grid))
	}
	// ceil(sqrt(5)) = 3 columns.
	if grid[0].Y != grid[1].Y || grid[1].Y != grid[2].Y {
		t.Error("first grid row not aligned")
	}
	if grid[3].Y == grid[0].Y {
		t.Error("fourth item should start the second row")
	}

	row := arrangeLayout(objs, "row", 0)
	for i := 1; i < len(row); i++ {
		if row[i].Y != row[0].Y {
			t.Error("row layout not on one baseline")
		}
		if row[i].X <= row[i-1].X {
			t.Error("row layout not left to right")
		}
	}

	col := arrangeLayout(objs, "column", 0)
	for i := 1; i < len(col); i++ {
		if col[i].X != col[0].X {
			t.Error("column layout not aligned")
		}
		if col[i].Y <= col[i-1].Y {
			t.Error("column layout not top to bottom")
		}
	}

	if arrangeLayout(nil, "grid", 0) != nil {
		t.Error("empty input should produce nil")
	}
}
