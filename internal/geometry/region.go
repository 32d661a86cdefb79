package geometry

import "strings"

// Point is a coordinate in the rendered page's pixel space.
type Point struct {
	X float64
	Y float64
}

// Quad is a quadrilateral given by its four corners. OCR engines emit the
// corners starting at the top-left, but no ordering is assumed here.
type Quad [4]Point

// Bounds returns the axis-aligned bounding box of the quad, independent of
// corner ordering.
func (q Quad) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = q[0].X, q[0].Y
	maxX, maxY = q[0].X, q[0].Y
	for _, p := range q[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return minX, minY, maxX, maxY
}

// LineItem is one recognized text line from the OCR engine.
type LineItem struct {
	Box        Quad
	Text       string
	Confidence float64
}

// Region is a named rectangular page area used as a geometric filter.
// Regions are near-rectangular, so containment is tested against the
// axis-aligned bounding box rather than the true polygon.
type Region struct {
	Name string
	Quad Quad
}

// Rect builds a Region from two opposite corners.
func Rect(name string, x0, y0, x1, y1 float64) Region {
	return Region{
		Name: name,
		Quad: Quad{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}},
	}
}

// Contains reports whether p lies within the region's bounding box.
func (r Region) Contains(p Point) bool {
	minX, minY, maxX, maxY := r.Quad.Bounds()
	return minX <= p.X && p.X <= maxX && minY <= p.Y && p.Y <= maxY
}

// TextInRegion concatenates the text of every line whose reference point
// (first corner, the top-left) falls inside the region, joined with single
// spaces in the order the OCR engine emitted them. OCR emits lines
// top-to-bottom, so this is effectively reading order.
func TextInRegion(lines []LineItem, region Region) string {
	var texts []string
	for _, line := range lines {
		if region.Contains(line.Box[0]) {
			texts = append(texts, line.Text)
		}
	}
	return strings.Join(texts, " ")
}
