package layout

import (
	"fmt"
	"math"
	"strings"

	"gioui.org/f32"
)

// Rect is an axis-aligned rectangle. Min is inclusive, Max exclusive.
type Rect struct {
	Min, Max f32.Point
}

// R builds a rectangle from its origin and size.
func R(x, y, w, h float32) Rect {
	return Rect{Min: f32.Pt(x, y), Max: f32.Pt(x+w, y+h)}
}

// Size returns the width and height.
func (r Rect) Size() f32.Point {
	return r.Max.Sub(r.Min)
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p f32.Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// Union returns the smallest rectangle containing r and o. Empty rectangles
// are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		Min: f32.Pt(min(r.Min.X, o.Min.X), min(r.Min.Y, o.Min.Y)),
		Max: f32.Pt(max(r.Max.X, o.Max.X), max(r.Max.Y, o.Max.Y)),
	}
}

// Add translates r by p.
func (r Rect) Add(p f32.Point) Rect {
	return Rect{Min: r.Min.Add(p), Max: r.Max.Add(p)}
}

// Transformed returns the axis-aligned bounds of r after applying t.
func (r Rect) Transformed(t f32.Affine2D) Rect {
	corners := [4]f32.Point{
		t.Transform(r.Min),
		t.Transform(f32.Pt(r.Max.X, r.Min.Y)),
		t.Transform(r.Max),
		t.Transform(f32.Pt(r.Min.X, r.Max.Y)),
	}
	out := Rect{Min: corners[0], Max: corners[0]}
	for _, c := range corners[1:] {
		out.Min = f32.Pt(min(out.Min.X, c.X), min(out.Min.Y, c.Y))
		out.Max = f32.Pt(max(out.Max.X, c.X), max(out.Max.Y, c.Y))
	}
	return out
}

// Anchor selects which point of a key group's content box is placed at the
// group's offset. Rotation happens around that point.
type Anchor uint8

const (
	TopLeft Anchor = iota
	Top
	TopRight
	Left
	Center
	Right
	BottomLeft
	Bottom
	BottomRight
)

var anchorNames = [...]string{
	"top_left", "top", "top_right",
	"left", "center", "right",
	"bottom_left", "bottom", "bottom_right",
}

// String returns the anchor name used in layout documents.
func (a Anchor) String() string {
	if int(a) < len(anchorNames) {
		return anchorNames[a]
	}
	return fmt.Sprintf("Anchor(%d)", uint8(a))
}

// ParseAnchor parses an anchor name; the empty string is TopLeft.
func ParseAnchor(s string) (Anchor, error) {
	if s == "" {
		return TopLeft, nil
	}
	s = strings.ToLower(strings.ReplaceAll(s, "-", "_"))
	for i, n := range anchorNames {
		if n == s {
			return Anchor(i), nil
		}
	}
	return TopLeft, fmt.Errorf("layout: unknown anchor %q", s)
}

// point returns the anchor's position within box.
func (a Anchor) point(box Rect) f32.Point {
	if int(a) >= len(anchorNames) {
		a = TopLeft
	}
	fx := float32(a%3) * 0.5
	fy := float32(a/3) * 0.5
	size := box.Size()
	return box.Min.Add(f32.Pt(size.X*fx, size.Y*fy))
}

// Placement positions a node inside its parent's frame.
type Placement struct {
	// Offset is where the node's origin (or, for key groups, its anchor
	// point) lands in the parent frame.
	Offset f32.Point
	// Angle is a rotation in degrees applied around the anchor point.
	Angle float32
	// Anchor only applies to key groups; plain groups have no extent.
	Anchor Anchor
}

// At is shorthand for an unrotated placement at (x, y).
func At(x, y float32) Placement {
	return Placement{Offset: f32.Pt(x, y)}
}

func radians(deg float32) float32 {
	return float32(float64(deg) * math.Pi / 180)
}

// groupTransform maps a group's frame into its parent's frame.
func (p Placement) groupTransform() f32.Affine2D {
	var t f32.Affine2D
	if p.Angle != 0 {
		t = t.Rotate(f32.Point{}, radians(p.Angle))
	}
	return t.Offset(p.Offset)
}

// boxTransform maps a key group's frame into its parent's frame, given the
// group's content box.
func (p Placement) boxTransform(box Rect) f32.Affine2D {
	anchor := p.Anchor.point(box)
	t := f32.Affine2D{}.Offset(anchor.Mul(-1))
	if p.Angle != 0 {
		t = t.Rotate(f32.Point{}, radians(p.Angle))
	}
	return t.Offset(p.Offset)
}

// near is an inclusive containment test with a small tolerance, used to
// reject far-away groups before the exact test in the group's own frame.
func (r Rect) near(p f32.Point) bool {
	const eps = 1e-3
	return p.X >= r.Min.X-eps && p.X <= r.Max.X+eps && p.Y >= r.Min.Y-eps && p.Y <= r.Max.Y+eps
}
