package layout

import (
	"math"
	"testing"

	"gioui.org/f32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stenotouch/internal/reactive"
	"stenotouch/internal/steno"
)

func key(id string, codes ...steno.Key) *Key {
	return &Key{ID: id, Label: id, Codes: steno.Of(codes...)}
}

func column(name string, x, y float32, keys ...*Key) *KeyGroup {
	return &KeyGroup{
		Name:      name,
		Placement: reactive.Const(At(x, y)),
		KeySize:   reactive.Const(f32.Pt(40, 40)),
		Keys:      keys,
	}
}

func newIndex(t *testing.T, root *Group) (*Index, *reactive.Scope) {
	t.Helper()
	scope := reactive.NewScope()
	t.Cleanup(scope.Close)
	ix, err := NewIndex(scope, root)
	require.NoError(t, err)
	return ix, scope
}

func resolveID(ix *Index, x, y float32) string {
	k, ok := ix.Resolve(f32.Pt(x, y))
	if !ok {
		return ""
	}
	return k.ID
}

func TestResolveVerticalColumn(t *testing.T) {
	root := &Group{Children: []Node{
		column("left", 100, 50, key("S-", steno.LeftS), key("T-", steno.LeftT), key("K-", steno.LeftK)),
	}}
	ix, _ := newIndex(t, root)

	tests := []struct {
		x, y float32
		want string
	}{
		{110, 60, "S-"},
		{110, 95, "T-"},
		{139.9, 129.9, "T-"},
		{110, 130, "K-"},
		{99, 60, ""},
		{110, 170, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveID(ix, tt.x, tt.y), "(%v,%v)", tt.x, tt.y)
	}
}

func TestResolveHorizontalWithGap(t *testing.T) {
	g := column("row", 0, 0, key("A-", steno.A), key("O-", steno.O))
	g.Arrangement = Horizontal
	g.Gap = reactive.Const[float32](10)
	ix, _ := newIndex(t, &Group{Children: []Node{g}})

	assert.Equal(t, "A-", resolveID(ix, 39, 5))
	assert.Equal(t, "", resolveID(ix, 45, 5), "gap between keys")
	assert.Equal(t, "O-", resolveID(ix, 50, 5))
	assert.Equal(t, R(0, 0, 90, 40), ix.Bounds())
}

func TestResolveGridWithSpans(t *testing.T) {
	star := key("*", steno.Star)
	star.Col, star.Row, star.RowSpan = 2, 0, 2
	g := &KeyGroup{
		Name:        "grid",
		Arrangement: Grid,
		KeySize:     reactive.Const(f32.Pt(10, 10)),
		Gap:         reactive.Const[float32](2),
		Keys: []*Key{
			{ID: "T-", Codes: steno.Of(steno.LeftT), Col: 0, Row: 0},
			{ID: "K-", Codes: steno.Of(steno.LeftK), Col: 0, Row: 1},
			{ID: "P-", Codes: steno.Of(steno.LeftP), Col: 1, Row: 0},
			star,
		},
	}
	ix, _ := newIndex(t, &Group{Children: []Node{g}})

	assert.Equal(t, "T-", resolveID(ix, 5, 5))
	assert.Equal(t, "K-", resolveID(ix, 5, 17))
	assert.Equal(t, "P-", resolveID(ix, 17, 5))
	assert.Equal(t, "*", resolveID(ix, 29, 5))
	assert.Equal(t, "*", resolveID(ix, 29, 20), "row span covers both rows")
	assert.Equal(t, "", resolveID(ix, 17, 17))
}

func TestResolveAnchorCenter(t *testing.T) {
	g := column("c", 0, 0, key("X", steno.Star))
	g.KeySize = reactive.Const(f32.Pt(20, 20))
	g.Placement = reactive.Const(Placement{Offset: f32.Pt(50, 50), Anchor: Center})
	ix, _ := newIndex(t, &Group{Children: []Node{g}})

	assert.Equal(t, "X", resolveID(ix, 41, 41))
	assert.Equal(t, "X", resolveID(ix, 59, 59))
	assert.Equal(t, "", resolveID(ix, 39, 50))
}

func TestResolveThroughRotatedAncestors(t *testing.T) {
	inner := column("inner", 0, 0, key("X", steno.Star))
	inner.KeySize = reactive.Const(f32.Pt(10, 10))
	root := &Group{
		Placement: reactive.Const(At(100, 100)),
		Children: []Node{&Group{
			Placement: reactive.Const(Placement{Offset: f32.Pt(200, 0), Angle: 90}),
			Children:  []Node{inner},
		}},
	}
	ix, _ := newIndex(t, root)

	toDevice := f32.Affine2D{}.
		Rotate(f32.Point{}, math.Pi/2).
		Offset(f32.Pt(200, 0)).
		Offset(f32.Pt(100, 100))
	hit := toDevice.Transform(f32.Pt(5, 2))
	assert.Equal(t, "X", resolveID(ix, hit.X, hit.Y))

	// The unrotated position of the same local point lies outside the key.
	assert.Equal(t, "", resolveID(ix, 305, 102))

	regions := ix.Regions()
	require.Len(t, regions, 1)
	assert.True(t, regions[0].Contains(hit))
}

func TestRotationAroundAnchor(t *testing.T) {
	g := column("bank", 0, 0, key("X", steno.Star))
	g.KeySize = reactive.Const(f32.Pt(20, 20))
	g.Placement = reactive.Const(Placement{Offset: f32.Pt(50, 50), Anchor: Center, Angle: 45})
	ix, _ := newIndex(t, &Group{Children: []Node{g}})

	// A square rotated about its center keeps the center and reaches further
	// along the diagonal axes than along the original edges.
	assert.Equal(t, "X", resolveID(ix, 50, 50))
	assert.Equal(t, "X", resolveID(ix, 50, 63), "diagonal corner reaches 50+14.1")
	assert.Equal(t, "", resolveID(ix, 59, 59), "original corner is cut off")
}

func TestFrontmostRegionWins(t *testing.T) {
	back := column("back", 0, 0, key("S-", steno.LeftS))
	front := column("front", 20, 0, key("T-", steno.LeftT))
	ix, _ := newIndex(t, &Group{Children: []Node{back, front}})

	assert.Equal(t, "S-", resolveID(ix, 10, 10))
	assert.Equal(t, "T-", resolveID(ix, 30, 10), "overlap goes to the later sibling")
	assert.Equal(t, "T-", resolveID(ix, 50, 10))
}

func TestSpacerKeysResolve(t *testing.T) {
	ix, _ := newIndex(t, &Group{Children: []Node{
		column("c", 0, 0, &Key{ID: "gap"}),
	}})
	k, ok := ix.Resolve(f32.Pt(5, 5))
	require.True(t, ok)
	assert.True(t, k.IsSpacer())
}

func TestGeometryFollowsSettings(t *testing.T) {
	width := reactive.NewCell[float32](40)
	stagger := reactive.NewCell[float32](0)
	angle := reactive.NewCell[float32](0)

	scope := reactive.NewScope()
	defer scope.Close()
	size := reactive.Map(scope, width, func(w float32) f32.Point { return f32.Pt(w, 40) })
	placement := reactive.Derive(scope, func() Placement {
		return Placement{Offset: f32.Pt(0, stagger.Get()), Angle: angle.Get()}
	}, stagger, angle)

	g := &KeyGroup{Name: "ring", Placement: placement, KeySize: size, Keys: []*Key{key("T-", steno.LeftT)}}
	ix, err := NewIndex(scope, &Group{Children: []Node{g}})
	require.NoError(t, err)

	changes := 0
	ix.Changed().Subscribe(scope, func(struct{}) { changes++ })

	assert.Equal(t, "", resolveID(ix, 50, 10))
	width.Set(60)
	assert.Equal(t, "T-", resolveID(ix, 50, 10))

	stagger.Set(20)
	assert.Equal(t, "", resolveID(ix, 50, 10))
	assert.Equal(t, "T-", resolveID(ix, 50, 30))

	angle.Set(90)
	assert.Equal(t, "", resolveID(ix, 50, 30))

	assert.Equal(t, 3, changes)
}

func TestRebuildTearsDownSubscriptions(t *testing.T) {
	size := reactive.NewCell(f32.Pt(40, 40))
	g := &KeyGroup{Name: "a", KeySize: size, Keys: []*Key{key("S-", steno.LeftS)}}
	ix, _ := newIndex(t, &Group{Children: []Node{g}})
	require.Equal(t, 1, size.Subscribers())

	replacement := column("b", 100, 0, key("T-", steno.LeftT))
	require.NoError(t, ix.Rebuild(&Group{Children: []Node{replacement}}))
	assert.Equal(t, 0, size.Subscribers())

	for range 3 {
		assert.Equal(t, "", resolveID(ix, 10, 10))
		assert.Equal(t, "T-", resolveID(ix, 110, 10))
	}
	_, ok := ix.Lookup("S-")
	assert.False(t, ok)
	_, ok = ix.Lookup("T-")
	assert.True(t, ok)
}

func TestRebuildRejectsDuplicateIDs(t *testing.T) {
	scope := reactive.NewScope()
	defer scope.Close()
	_, err := NewIndex(scope, &Group{Children: []Node{
		column("a", 0, 0, key("S-", steno.LeftS)),
		column("b", 50, 0, key("S-", steno.LeftS)),
	}})
	assert.Error(t, err)
}

func TestParseAnchor(t *testing.T) {
	a, err := ParseAnchor("bottom-right")
	require.NoError(t, err)
	assert.Equal(t, BottomRight, a)
	assert.Equal(t, "bottom_right", a.String())

	a, err = ParseAnchor("")
	require.NoError(t, err)
	assert.Equal(t, TopLeft, a)

	_, err = ParseAnchor("middle")
	assert.Error(t, err)
}
