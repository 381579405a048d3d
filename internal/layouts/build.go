package layouts

import (
	"errors"
	"fmt"
	"sort"

	"gioui.org/f32"

	"stenotouch/internal/joystick"
	"stenotouch/internal/layout"
	"stenotouch/internal/reactive"
	"stenotouch/internal/steno"
)

var (
	// ErrInvalidLayout wraps schema and build failures.
	ErrInvalidLayout = errors.New("invalid layout")
	// ErrUnknownSetting is returned for expressions naming no setting.
	ErrUnknownSetting = errors.New("unknown setting")
	// ErrUnknownLayout is returned by Catalog.Get.
	ErrUnknownLayout = errors.New("unknown layout")
)

// Built is a layout turned into live core structures.
type Built struct {
	// Root is set for the keys modality.
	Root *layout.Group
	// Joysticks is set for the joystick modality.
	Joysticks []joystick.Spec
}

type builder struct {
	owner *reactive.Scope
	env   Env
}

// Build compiles the document against env. Every derived value subscribes
// under owner; closing owner detaches the layout from the settings.
func (l *Layout) Build(owner *reactive.Scope, env Env) (*Built, error) {
	b := &builder{owner: owner, env: env}
	switch l.doc.Modality {
	case Joysticks:
		specs, err := b.joysticks(l.doc.Joysticks)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLayout, l.Name, err)
		}
		return &Built{Joysticks: specs}, nil
	default:
		if l.doc.Root == nil {
			return nil, fmt.Errorf("%w: %s: no root group", ErrInvalidLayout, l.Name)
		}
		node, err := b.node(l.doc.Root)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLayout, l.Name, err)
		}
		root, ok := node.(*layout.Group)
		if !ok {
			return nil, fmt.Errorf("%w: %s: root must be a group", ErrInvalidLayout, l.Name)
		}
		return &Built{Root: root}, nil
	}
}

func (b *builder) expr(e Expr, def float32) (scalar, error) {
	if blank(string(e)) {
		return constant(def), nil
	}
	return parseScalar(string(e), b.env)
}

func (b *builder) vec(v Vec) (x, y scalar, err error) {
	if len(v) == 0 {
		return constant(0), constant(0), nil
	}
	if len(v) != 2 {
		return x, y, fmt.Errorf("expected [x, y], got %d values", len(v))
	}
	if x, err = b.expr(v[0], 0); err != nil {
		return x, y, err
	}
	y, err = b.expr(v[1], 0)
	return x, y, err
}

// optionalPoint returns nil for an absent vector so the key falls back to
// its group's default.
func (b *builder) optionalPoint(v Vec) (reactive.Value[f32.Point], error) {
	if len(v) == 0 {
		return nil, nil
	}
	x, y, err := b.vec(v)
	if err != nil {
		return nil, err
	}
	return point(b.owner, x, y), nil
}

func (b *builder) placement(n *NodeDoc) (reactive.Value[layout.Placement], error) {
	x, y, err := b.vec(n.Offset)
	if err != nil {
		return nil, fmt.Errorf("%s offset: %w", n.Name, err)
	}
	angle, err := b.expr(n.Angle, 0)
	if err != nil {
		return nil, fmt.Errorf("%s angle: %w", n.Name, err)
	}
	anchor, err := layout.ParseAnchor(n.Anchor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.Name, err)
	}
	return placement(b.owner, x, y, angle, anchor), nil
}

func (b *builder) node(n *NodeDoc) (layout.Node, error) {
	place, err := b.placement(n)
	if err != nil {
		return nil, err
	}
	if len(n.Keys) == 0 {
		g := &layout.Group{Name: n.Name, Placement: place}
		for i := range n.Children {
			child, err := b.node(&n.Children[i])
			if err != nil {
				return nil, err
			}
			g.Children = append(g.Children, child)
		}
		return g, nil
	}

	kg := &layout.KeyGroup{Name: n.Name, Placement: place}
	switch n.Arrange {
	case "", "vertical":
		kg.Arrangement = layout.Vertical
	case "horizontal":
		kg.Arrangement = layout.Horizontal
	case "grid":
		kg.Arrangement = layout.Grid
	default:
		return nil, fmt.Errorf("%s: unknown arrangement %q", n.Name, n.Arrange)
	}
	if kg.KeySize, err = b.optionalPoint(n.KeySize); err != nil {
		return nil, fmt.Errorf("%s key_size: %w", n.Name, err)
	}
	if !blank(string(n.Gap)) {
		gap, err := b.expr(n.Gap, 0)
		if err != nil {
			return nil, fmt.Errorf("%s gap: %w", n.Name, err)
		}
		kg.Gap = gap.value(b.owner)
	}
	for i := range n.Keys {
		k, err := b.key(&n.Keys[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		kg.Keys = append(kg.Keys, k)
	}
	return kg, nil
}

func (b *builder) key(d *KeyDoc) (*layout.Key, error) {
	codes, err := steno.ParseStroke(d.Codes)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", d.ID, err)
	}
	k := &layout.Key{
		ID:      d.ID,
		Label:   d.Label,
		Codes:   codes,
		Col:     d.Col,
		Row:     d.Row,
		ColSpan: d.ColSpan,
		RowSpan: d.RowSpan,
	}
	if k.Label == "" {
		k.Label = codes.String()
	}
	if k.Size, err = b.optionalPoint(d.Size); err != nil {
		return nil, fmt.Errorf("key %s size: %w", d.ID, err)
	}
	if k.Offset, err = b.optionalPoint(d.Offset); err != nil {
		return nil, fmt.Errorf("key %s offset: %w", d.ID, err)
	}
	return k, nil
}

func (b *builder) joysticks(docs []JoystickDoc) ([]joystick.Spec, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no joysticks")
	}
	names := make(map[string]bool)
	ids := make(map[string]bool)
	specs := make([]joystick.Spec, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		if names[d.Name] {
			return nil, fmt.Errorf("duplicate joystick %q", d.Name)
		}
		names[d.Name] = true

		spec, err := b.joystick(d)
		if err != nil {
			return nil, err
		}
		for _, k := range spec.Keys() {
			if ids[k.ID] {
				return nil, fmt.Errorf("duplicate key id %q", k.ID)
			}
			ids[k.ID] = true
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (b *builder) joystick(d *JoystickDoc) (joystick.Spec, error) {
	shape, err := joystick.ParseShape(d.Shape)
	if err != nil {
		return joystick.Spec{}, err
	}
	x, y, err := b.vec(d.Base)
	if err != nil {
		return joystick.Spec{}, fmt.Errorf("joystick %s base: %w", d.Name, err)
	}
	spec := joystick.Spec{Name: d.Name, Shape: shape, Base: point(b.owner, x, y)}

	// Map iteration order is random; bind sectors in sorted order so
	// errors are deterministic.
	dirs := make([]string, 0, len(d.Sectors))
	for dir := range d.Sectors {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		sector, err := joystick.ParseSector(dir)
		if err != nil {
			return joystick.Spec{}, fmt.Errorf("joystick %s: %w", d.Name, err)
		}
		kd := d.Sectors[dir]
		if spec.Sectors[sector], err = b.boundKey(&kd); err != nil {
			return joystick.Spec{}, fmt.Errorf("joystick %s: %w", d.Name, err)
		}
	}
	for _, slot := range []struct {
		doc *KeyDoc
		dst **layout.Key
	}{{d.Up, &spec.Up}, {d.Down, &spec.Down}, {d.Compound, &spec.Compound}} {
		if slot.doc == nil {
			continue
		}
		if *slot.dst, err = b.boundKey(slot.doc); err != nil {
			return joystick.Spec{}, fmt.Errorf("joystick %s: %w", d.Name, err)
		}
	}
	return spec, nil
}

// boundKey builds a joystick key, which must contribute codes.
func (b *builder) boundKey(d *KeyDoc) (*layout.Key, error) {
	k, err := b.key(d)
	if err != nil {
		return nil, err
	}
	if k.IsSpacer() {
		return nil, fmt.Errorf("key %s binds no codes", d.ID)
	}
	return k, nil
}
