package layout

import (
	"fmt"

	"gioui.org/f32"

	"stenotouch/internal/reactive"
)

// Region is one key's hit area: a rectangle in its key group's frame plus the
// transform from that frame to device space.
type Region struct {
	Key       *Key
	Group     *KeyGroup
	Rect      Rect
	Transform f32.Affine2D
}

// Contains reports whether the device-space point p hits the region.
func (r Region) Contains(p f32.Point) bool {
	return r.Rect.Contains(r.Transform.Invert().Transform(p))
}

// leaf caches the device geometry of one key group. Any dependency firing
// marks it dirty; the geometry is recomputed on the next query.
type leaf struct {
	group  *KeyGroup
	parent reactive.Value[f32.Affine2D]

	dirty   bool
	device  f32.Affine2D
	inverse f32.Affine2D
	rects   []Rect
	bounds  Rect
}

func (l *leaf) refresh() {
	if !l.dirty {
		return
	}
	l.rects = l.group.arrange()
	var box Rect
	for _, r := range l.rects {
		box = box.Union(r)
	}
	placement := valueOr(l.group.Placement, Placement{})
	l.device = l.parent.Get().Mul(placement.boxTransform(box))
	l.inverse = l.device.Invert()
	l.bounds = box.Transformed(l.device)
	l.dirty = false
}

// Index answers hit tests against a layout tree.
type Index struct {
	owner   *reactive.Scope
	scope   *reactive.Scope
	root    *Group
	leaves  []*leaf
	byID    map[string]*Key
	changed reactive.Signal[struct{}]
}

// NewIndex builds an index over root. Its subscriptions live in a child of
// owner, so closing owner also tears the index down.
func NewIndex(owner *reactive.Scope, root *Group) (*Index, error) {
	ix := &Index{owner: owner}
	if err := ix.Rebuild(root); err != nil {
		return nil, err
	}
	return ix, nil
}

// Rebuild discards the current tree and all of its subscriptions, then
// indexes root. On error the index is left empty.
func (ix *Index) Rebuild(root *Group) error {
	ix.scope.Close()
	ix.scope = ix.owner.Child()
	ix.root = nil
	ix.leaves = nil
	ix.byID = make(map[string]*Key)

	if root == nil {
		ix.changed.Emit(struct{}{})
		return nil
	}
	if err := ix.build(root, reactive.Const(f32.Affine2D{})); err != nil {
		ix.scope.Close()
		ix.scope = ix.owner.Child()
		ix.leaves = nil
		ix.byID = make(map[string]*Key)
		return err
	}
	ix.root = root
	ix.changed.Emit(struct{}{})
	return nil
}

func (ix *Index) build(n Node, parent reactive.Value[f32.Affine2D]) error {
	switch n := n.(type) {
	case *Group:
		placement := n.Placement
		if placement == nil {
			placement = reactive.Const(Placement{})
		}
		transform := reactive.Derive(ix.scope, func() f32.Affine2D {
			return parent.Get().Mul(placement.Get().groupTransform())
		}, parent, placement)
		for _, child := range n.Children {
			if child == nil {
				continue
			}
			if err := ix.build(child, transform); err != nil {
				return err
			}
		}
		return nil

	case *KeyGroup:
		l := &leaf{group: n, parent: parent, dirty: true}
		mark := func() {
			if !l.dirty {
				l.dirty = true
				ix.changed.Emit(struct{}{})
			}
		}
		parent.Watch(ix.scope, mark)
		for _, src := range []reactive.Source{n.Placement, n.KeySize, n.Gap} {
			if src != nil {
				src.Watch(ix.scope, mark)
			}
		}
		for _, k := range n.Keys {
			if k == nil {
				return fmt.Errorf("layout: nil key in group %q", n.Name)
			}
			if k.ID != "" {
				if _, dup := ix.byID[k.ID]; dup {
					return fmt.Errorf("layout: duplicate key id %q", k.ID)
				}
				ix.byID[k.ID] = k
			}
			if k.Size != nil {
				k.Size.Watch(ix.scope, mark)
			}
			if k.Offset != nil {
				k.Offset.Watch(ix.scope, mark)
			}
		}
		ix.leaves = append(ix.leaves, l)
		return nil
	}
	return fmt.Errorf("layout: unsupported node %T", n)
}

// Close removes every subscription the index holds.
func (ix *Index) Close() {
	ix.scope.Close()
	ix.leaves = nil
	ix.root = nil
}

// Root returns the indexed tree.
func (ix *Index) Root() *Group {
	return ix.root
}

// Changed fires when the indexed geometry changes or the tree is rebuilt.
func (ix *Index) Changed() *reactive.Signal[struct{}] {
	return &ix.changed
}

// Resolve returns the frontmost key whose region contains p. Later siblings
// are in front of earlier ones, as when drawing in declaration order.
func (ix *Index) Resolve(p f32.Point) (*Key, bool) {
	for i := len(ix.leaves) - 1; i >= 0; i-- {
		l := ix.leaves[i]
		l.refresh()
		if !l.bounds.near(p) {
			continue
		}
		local := l.inverse.Transform(p)
		for j := len(l.rects) - 1; j >= 0; j-- {
			if l.rects[j].Contains(local) {
				return l.group.Keys[j], true
			}
		}
	}
	return nil, false
}

// Lookup finds a key by ID.
func (ix *Index) Lookup(id string) (*Key, bool) {
	k, ok := ix.byID[id]
	return k, ok
}

// Regions returns every key region in drawing order (back to front).
func (ix *Index) Regions() []Region {
	var out []Region
	for _, l := range ix.leaves {
		l.refresh()
		for i, k := range l.group.Keys {
			out = append(out, Region{Key: k, Group: l.group, Rect: l.rects[i], Transform: l.device})
		}
	}
	return out
}

// Bounds returns the device-space bounding box of all regions.
func (ix *Index) Bounds() Rect {
	var b Rect
	for _, l := range ix.leaves {
		l.refresh()
		b = b.Union(l.bounds)
	}
	return b
}
