package domain

import "image"

// MinSize is the smallest width or height, in pixels, an annotation may have.
const MinSize = 10

// Point is a position in page-local raster pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Size is the pixel extent of a rendered page view.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an axis aligned rectangle whose origin is its top-left corner.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ToLocal maps a pointer position to page-local coordinates by removing the
// origin of the page view it was reported against.
func ToLocal(pointer, viewOrigin Point) Point {
	return pointer.Sub(viewOrigin)
}

// Normalize returns the rectangle spanned by an anchor and the current
// pointer, independent of the corner the user started from.
func Normalize(a, b Point) Rect {
	return Rect{
		X:      min(a.X, b.X),
		Y:      min(a.Y, b.Y),
		Width:  abs(b.X - a.X),
		Height: abs(b.Y - a.Y),
	}
}

// Valid reports whether both sides reach the given minimum.
func (r Rect) Valid(minSize int) bool {
	return r.Width >= minSize && r.Height >= minSize
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// MoveTo returns r with its origin at p, clamped so the whole rectangle stays
// inside a view of the given size. A rectangle larger than the view is pinned
// to the top-left edge.
func (r Rect) MoveTo(p Point, view Size) Rect {
	r.X = max(0, min(p.X, view.Width-r.Width))
	r.Y = max(0, min(p.Y, view.Height-r.Height))
	return r
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.Right(), r.Bottom())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
