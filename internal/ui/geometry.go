// File: internal/ui/geometry.go
package ui

import "math"

// Rect is an axis-aligned rectangle in absolute screen pixels. Right and
// Bottom are exclusive of nothing in particular; widths are Right-Left.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Area returns the rectangle's area, zero for degenerate rectangles.
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Empty reports whether the rectangle encloses no pixels.
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// Center returns the rectangle's midpoint.
func (r Rect) Center() (x, y float64) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Intersect returns the overlapping region of two rectangles. The result may
// be Empty.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		Left:   math.Max(r.Left, o.Left),
		Top:    math.Max(r.Top, o.Top),
		Right:  math.Min(r.Right, o.Right),
		Bottom: math.Min(r.Bottom, o.Bottom),
	}
}

// Union returns the smallest rectangle enclosing both inputs. An Empty input
// contributes nothing.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		Left:   math.Min(r.Left, o.Left),
		Top:    math.Min(r.Top, o.Top),
		Right:  math.Max(r.Right, o.Right),
		Bottom: math.Max(r.Bottom, o.Bottom),
	}
}

// Clamp restricts the rectangle to the given bounds.
func (r Rect) Clamp(bounds Rect) Rect {
	return r.Intersect(bounds)
}

// Translate shifts the rectangle by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{Left: r.Left + dx, Top: r.Top + dy, Right: r.Right + dx, Bottom: r.Bottom + dy}
}

// RelativeTo converts an absolute-screen rectangle into coordinates relative
// to the given origin rectangle (typically a window's bounds).
func (r Rect) RelativeTo(origin Rect) Rect {
	return r.Translate(-origin.Left, -origin.Top)
}

// IoU computes the intersection-over-union overlap ratio of two rectangles.
// The result is within [0, 1]; degenerate inputs yield 0.
func IoU(a, b Rect) float64 {
	inter := a.Intersect(b).Area()
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
