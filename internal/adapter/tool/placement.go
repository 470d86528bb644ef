package tool

import (
	"math"

	"boardpilot/internal/domain"
)

// Placement geometry. Auto-placement grids use batchColumns/batchGap; the
// collision probe walks outward in increments of at least spiralStep; frame
// interiors reserve a title band and pad their content grid.
const (
	batchColumns = 5
	batchGap     = 24.0

	spiralStep      = 28.0
	maxSpiralProbes = 120

	framePad       = 16.0
	frameTitleBand = 36.0
	frameGap       = 16.0
)

// defaultOrigin anchors auto-placement at the viewport center, or at a fixed
// spot near the canvas origin when the caller sent no viewport.
func defaultOrigin(viewport domain.Viewport, w, h float64) domain.Point {
	if viewport.Width <= 0 || viewport.Height <= 0 {
		return domain.Point{X: 120, Y: 120}
	}
	c := viewport.Center()
	return domain.Point{X: c.X - w/2, Y: c.Y - h/2}
}

// isFree reports whether a rectangle at (x, y) overlaps nothing of the same
// kind. Leaves check against leaves only (sitting inside a frame's region is
// normal); frames check against frames only.
func isFree(a *Arena, x, y, w, h float64, vsFrames bool) bool {
	cand := domain.Rect{X: x, Y: y, Width: w, Height: h}
	for _, id := range a.order {
		o, ok := a.objects[id]
		if !ok || o.IsFrame() != vsFrames {
			continue
		}
		if cand.Intersects(o.Bounds()) {
			return false
		}
	}
	return true
}

// nearestFree returns the requested position when it is free, otherwise the
// first free spot on an expanding square spiral around it. The step scales
// with the candidate size so a large frame can clear an equally large
// neighbor within the probe budget. After maxSpiralProbes occupied spots it
// gives up and returns the request unchanged; overlap beats losing the
// object.
func nearestFree(a *Arena, x, y, w, h float64, vsFrames bool) (float64, float64) {
	if isFree(a, x, y, w, h, vsFrames) {
		return x, y
	}
	step := spiralStep
	if s := math.Max(w, h) / 4; s > step {
		step = s
	}
	dirs := [4][2]float64{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	dx, dy := 0.0, 0.0
	run := 1
	probes := 0
	for probes < maxSpiralProbes {
		for d := 0; d < 4; d++ {
			for s := 0; s < run; s++ {
				dx += dirs[d][0] * step
				dy += dirs[d][1] * step
				probes++
				if isFree(a, x+dx, y+dy, w, h, vsFrames) {
					return x + dx, y + dy
				}
				if probes >= maxSpiralProbes {
					return x, y
				}
			}
			if d == 1 || d == 3 {
				run++
			}
		}
	}
	return x, y
}

// frameSlot returns the top-left position for child index idx in a frame's
// content grid, and the frame height required to contain it. Column count
// derives from the frame width and the child size, minimum one.
func frameSlot(frame *domain.Object, idx int, w, h float64) (x, y, requiredHeight float64) {
	innerW := frame.Width - 2*framePad
	cols := int((innerW + frameGap) / (w + frameGap))
	if cols < 1 {
		cols = 1
	}
	col := idx % cols
	row := idx / cols
	x = frame.X + framePad + float64(col)*(w+frameGap)
	y = frame.Y + frameTitleBand + float64(row)*(h+frameGap)
	requiredHeight = y + h + framePad - frame.Y
	return x, y, requiredHeight
}

// arrangeLayout computes target positions for objects arranged as a grid,
// row, or column centered on their current bounding box. Cell size is the
// largest object plus batchGap; smaller objects are centered in their cell.
func arrangeLayout(objs []domain.Object, layout string, columns int) []domain.Point {
	n := len(objs)
	if n == 0 {
		return nil
	}
	maxW, maxH := 0.0, 0.0
	for _, o := range objs {
		maxW = math.Max(maxW, o.Width)
		maxH = math.Max(maxH, o.Height)
	}

	var cols int
	switch layout {
	case "row":
		cols = n
	case "column":
		cols = 1
	default:
		cols = columns
		if cols < 1 {
			cols = int(math.Ceil(math.Sqrt(float64(n))))
		}
	}
	if cols > n {
		cols = n
	}
	rows := (n + cols - 1) / cols

	totalW := float64(cols)*maxW + float64(cols-1)*batchGap
	totalH := float64(rows)*maxH + float64(rows-1)*batchGap
	center := domain.BoundingRect(objs).Center()
	originX := center.X - totalW/2
	originY := center.Y - totalH/2

	out := make([]domain.Point, n)
	for i, o := range objs {
		col := i % cols
		row := i / cols
		out[i] = domain.Point{
			X: clampCoord(originX + float64(col)*(maxW+batchGap) + (maxW-o.Width)/2),
			Y: clampCoord(originY + float64(row)*(maxH+batchGap) + (maxH-o.Height)/2),
		}
	}
	return out
}
