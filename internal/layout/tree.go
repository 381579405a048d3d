// Package layout resolves touch positions to steno keys.
//
// A layout is a tree of Groups, which only offset and rotate their children,
// and KeyGroups, whose keys are arranged in a column, a row or a grid. Every
// placement and size in the tree may be a reactive value, so a change to a
// setting such as key width or bank angle moves the affected regions without
// rebuilding the tree. The Index walks the tree once, wires each key group to
// the transforms of its ancestors, and answers hit tests against the current
// geometry.
package layout

import (
	"gioui.org/f32"

	"stenotouch/internal/reactive"
	"stenotouch/internal/steno"
)

// Node is a Group or a KeyGroup.
type Node interface {
	isNode()
	NodeName() string
}

// Group is a positioning container.
type Group struct {
	Name string
	// Placement offsets and rotates every child. Nil means identity.
	Placement reactive.Value[Placement]
	Children  []Node
}

func (*Group) isNode() {}

// NodeName returns the group name.
func (g *Group) NodeName() string { return g.Name }

// Arrangement controls how a key group lays out its keys.
type Arrangement uint8

const (
	// Vertical stacks keys top to bottom.
	Vertical Arrangement = iota
	// Horizontal places keys left to right.
	Horizontal
	// Grid places keys at their Col/Row cell.
	Grid
)

// KeyGroup is a leaf holding keys.
type KeyGroup struct {
	Name        string
	Placement   reactive.Value[Placement]
	Arrangement Arrangement
	// KeySize is the default key size; Key.Size overrides it per key.
	KeySize reactive.Value[f32.Point]
	// Gap separates adjacent keys. Nil means no gap.
	Gap  reactive.Value[float32]
	Keys []*Key
}

func (*KeyGroup) isNode() {}

// NodeName returns the key group name.
func (g *KeyGroup) NodeName() string { return g.Name }

// Key is one touchable key.
type Key struct {
	// ID is unique within a layout, e.g. "S-" or "left.pinky.top".
	ID    string
	Label string
	// Codes is the set of primitive keys the key contributes. A key with no
	// codes is a spacer: it takes up room and swallows touches.
	Codes steno.Stroke

	Size   reactive.Value[f32.Point]
	Offset reactive.Value[f32.Point]

	// Col, Row, ColSpan and RowSpan place the key in a Grid group. Spans
	// below one count as one.
	Col, Row         int
	ColSpan, RowSpan int
}

// IsSpacer reports whether the key contributes nothing to a stroke.
func (k *Key) IsSpacer() bool {
	return k.Codes.IsEmpty()
}

// arrange computes the key rectangles in the group's frame, in key order.
func (g *KeyGroup) arrange() []Rect {
	size := valueOr(g.KeySize, f32.Point{})
	gap := valueOr(g.Gap, 0)
	rects := make([]Rect, len(g.Keys))

	var cursor float32
	for i, k := range g.Keys {
		ks := valueOr(k.Size, size)
		var origin f32.Point
		switch g.Arrangement {
		case Horizontal:
			origin = f32.Pt(cursor, 0)
			cursor += ks.X + gap
		case Grid:
			colSpan, rowSpan := max(k.ColSpan, 1), max(k.RowSpan, 1)
			origin = f32.Pt(float32(k.Col)*(size.X+gap), float32(k.Row)*(size.Y+gap))
			if k.Size == nil {
				ks = f32.Pt(
					float32(colSpan)*size.X+float32(colSpan-1)*gap,
					float32(rowSpan)*size.Y+float32(rowSpan-1)*gap,
				)
			}
		default:
			origin = f32.Pt(0, cursor)
			cursor += ks.Y + gap
		}
		origin = origin.Add(valueOr(k.Offset, f32.Point{}))
		rects[i] = Rect{Min: origin, Max: origin.Add(ks)}
	}
	return rects
}

func valueOr[T any](v reactive.Value[T], def T) T {
	if v == nil {
		return def
	}
	return v.Get()
}
