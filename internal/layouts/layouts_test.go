package layouts

import (
	"os"
	"path/filepath"
	"testing"

	"gioui.org/f32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stenotouch/internal/config"
	"stenotouch/internal/joystick"
	"stenotouch/internal/layout"
	"stenotouch/internal/logging"
	"stenotouch/internal/reactive"
	"stenotouch/internal/settings"
	"stenotouch/internal/steno"
)

type mapEnv map[string]*reactive.Cell[float32]

func (m mapEnv) Lookup(name string) (reactive.Value[float32], bool) {
	c, ok := m[name]
	if !ok {
		return nil, false
	}
	return c, true
}

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(logging.Discard())
	require.NoError(t, err)
	return c
}

func TestBuiltinLayouts(t *testing.T) {
	c := newCatalog(t)
	assert.Equal(t, []string{"angled", "classic", "joystick", "staggered"}, c.Names())

	s := settings.New(config.DefaultConfig())
	defer s.Close()

	for _, l := range c.Layouts() {
		t.Run(l.Name, func(t *testing.T) {
			assert.Equal(t, BuiltinSource, l.Source)
			assert.Len(t, l.Fingerprint, 64)

			owner := reactive.NewScope()
			defer owner.Close()
			built, err := l.Build(owner, s)
			require.NoError(t, err)

			switch l.Modality {
			case Joysticks:
				assert.Nil(t, built.Root)
				assert.Len(t, built.Joysticks, 10)
			default:
				require.NotNil(t, built.Root)
				ix, err := layout.NewIndex(owner, built.Root)
				require.NoError(t, err)

				// every primitive key is reachable somewhere
				var all steno.Stroke
				for _, r := range ix.Regions() {
					all = all.Union(r.Key.Codes)
				}
				assert.Equal(t, steno.NumKeys, all.Len())
			}
		})
	}
}

func TestClassicGeometry(t *testing.T) {
	c := newCatalog(t)
	s := settings.New(config.DefaultConfig())
	defer s.Close()

	l, err := c.Get("classic")
	require.NoError(t, err)
	owner := reactive.NewScope()
	defer owner.Close()
	built, err := l.Build(owner, s)
	require.NoError(t, err)
	ix, err := layout.NewIndex(owner, built.Root)
	require.NoError(t, err)

	resolve := func(x, y float32) string {
		k, ok := ix.Resolve(f32.Pt(x, y))
		if !ok {
			return ""
		}
		return k.ID
	}

	// 64x72 keys, gap 4; the banks start below a half-height number bar
	assert.Equal(t, "#", resolve(300, 10))
	assert.Equal(t, "S-", resolve(32, 100))
	assert.Equal(t, "S-", resolve(32, 180), "S spans both rows")
	assert.Equal(t, "T-", resolve(100, 60))
	assert.Equal(t, "K-", resolve(100, 150))
	assert.Equal(t, "*", resolve(300, 150))
	assert.Equal(t, "-Z", resolve(660, 150))
	assert.Equal(t, "A-", resolve(160, 220))
	assert.Equal(t, "", resolve(100, 500))

	gap, ok := ix.Resolve(f32.Pt(300, 220))
	require.True(t, ok)
	assert.True(t, gap.IsSpacer())

	assert.Equal(t, "P-", resolve(150, 60))
	s.KeyWidth.Set(80)
	assert.Equal(t, "T-", resolve(150, 60), "regions follow the key width setting")
}

func TestAngledBanksRotate(t *testing.T) {
	c := newCatalog(t)
	s := settings.New(config.DefaultConfig())
	defer s.Close()

	l, err := c.Get("angled")
	require.NoError(t, err)
	owner := reactive.NewScope()
	defer owner.Close()
	built, err := l.Build(owner, s)
	require.NoError(t, err)
	ix, err := layout.NewIndex(owner, built.Root)
	require.NoError(t, err)

	s.BankAngle.Set(0)
	flat := ix.Bounds()
	s.BankAngle.Set(30)
	tilted := ix.Bounds()
	assert.Greater(t, tilted.Size().Y, flat.Size().Y)
}

func TestJoystickLayout(t *testing.T) {
	c := newCatalog(t)
	s := settings.New(config.DefaultConfig())
	defer s.Close()

	l, err := c.Get("joystick")
	require.NoError(t, err)
	owner := reactive.NewScope()
	defer owner.Close()
	built, err := l.Build(owner, s)
	require.NoError(t, err)

	var ring *joystick.Spec
	for i := range built.Joysticks {
		if built.Joysticks[i].Name == "left.ring" {
			ring = &built.Joysticks[i]
		}
	}
	require.NotNil(t, ring)
	assert.Equal(t, joystick.Vertical, ring.Shape)
	assert.Equal(t, steno.Of(steno.LeftT, steno.LeftK), ring.Compound.Codes)
	assert.Equal(t, f32.Pt(192, 144), ring.Base.Get())

	s.MaxRadius.Set(40)
	assert.Equal(t, f32.Pt(160, 120), ring.Base.Get())

	index := built.Joysticks[3]
	assert.Equal(t, joystick.Circle, index.Shape)
	assert.Equal(t, steno.Of(steno.LeftH, steno.Star), index.Sectors[joystick.NorthEast].Codes)
}

func TestParseScalar(t *testing.T) {
	env := mapEnv{
		"key_width": reactive.NewCell[float32](64),
		"key_gap":   reactive.NewCell[float32](4),
		"ring":      reactive.NewCell[float32](0.25),
	}
	tests := []struct {
		src  string
		want float32
		deps int
	}{
		{"12", 12, 0},
		{"-3.5", -3.5, 0},
		{"key_width", 64, 1},
		{"-ring", -0.25, 1},
		{"0.5*key_width", 32, 1},
		{"2*(key_width+key_gap)", 136, 2},
		{"key_width - key_gap * 2", 56, 2},
		{"key_width/key_gap", 16, 2},
		{"-(key_width-key_gap)", -60, 2},
		{"key_gap*key_gap+key_gap", 20, 1},
		{"max(key_gap, 10)", 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			s, err := parseScalar(tt.src, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.get())
			assert.Len(t, sources(s), tt.deps)
		})
	}

	for _, bad := range []string{"", "1+", "(1", "key_width key_gap", "width", "1.2.3", "3 $"} {
		_, err := parseScalar(bad, env)
		assert.Error(t, err, bad)
	}
	_, err := parseScalar("width", env)
	assert.ErrorIs(t, err, ErrUnknownSetting)
}

func TestScalarValueIsLive(t *testing.T) {
	width := reactive.NewCell[float32](10)
	env := mapEnv{"key_width": width}
	owner := reactive.NewScope()

	s, err := parseScalar("key_width*key_width+1", env)
	require.NoError(t, err)
	v := s.value(owner)
	assert.Equal(t, float32(101), v.Get())

	width.Set(3)
	assert.Equal(t, float32(10), v.Get())

	owner.Close()
	assert.Zero(t, width.Subscribers())

	c, err := parseScalar("4", env)
	require.NoError(t, err)
	assert.Equal(t, float32(4), c.value(reactive.NewScope()).Get())
}

func TestSchemaRejects(t *testing.T) {
	c := newCatalog(t)
	docs := map[string]string{
		"missing name": "modality: keys\nroot: {name: r, children: []}\n",
		"both modalities": `name: x
modality: keys
root: {name: r, children: []}
joysticks: [{name: j, shape: circle, base: [0, 0], sectors: {n: {id: a, codes: S}}}]
`,
		"bad codes": `name: x
modality: keys
root: {name: r, children: [{name: g, keys: [{id: a, codes: Q}]}]}
`,
		"unknown field": `name: x
modality: keys
root: {name: r, colour: red, children: []}
`,
		"bad expression": `name: x
modality: keys
root: {name: r, offset: [key_width!, 0], children: []}
`,
		"short vector": `name: x
modality: keys
root: {name: r, offset: [1], children: []}
`,
		"unbound joystick key": `name: x
modality: joystick
joysticks: [{name: j, shape: vertical, base: [0, 0], up: {id: a}}]
`,
		"bad direction": `name: x
modality: joystick
joysticks: [{name: j, shape: circle, base: [0, 0], sectors: {north: {id: a, codes: S}}}]
`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := c.Parse([]byte(doc), "test")
			assert.ErrorIs(t, err, ErrInvalidLayout)
		})
	}
}

func TestBuildRejects(t *testing.T) {
	c := newCatalog(t)
	s := settings.New(nil)
	defer s.Close()

	docs := map[string]struct {
		doc  string
		want error
	}{
		"unknown setting": {`name: x
modality: keys
root: {name: r, offset: [key_depth, 0], children: []}
`, ErrUnknownSetting},
		"keys out of order": {`name: x
modality: keys
root: {name: r, children: [{name: g, keys: [{id: a, codes: EA}]}]}
`, steno.ErrBadOrder},
		"semicircle below": {`name: x
modality: joystick
joysticks: [{name: j, shape: semicircle, base: [0, 0], sectors: {s: {id: a, codes: S}}}]
`, ErrInvalidLayout},
		"duplicate joystick": {`name: x
modality: joystick
joysticks:
  - {name: j, shape: vertical, base: [0, 0], up: {id: a, codes: S}}
  - {name: j, shape: vertical, base: [0, 0], up: {id: b, codes: T}}
`, ErrInvalidLayout},
	}
	for name, tc := range docs {
		t.Run(name, func(t *testing.T) {
			l, err := c.Parse([]byte(tc.doc), "test")
			require.NoError(t, err)
			owner := reactive.NewScope()
			defer owner.Close()
			_, err = l.Build(owner, s)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadDir(t *testing.T) {
	c := newCatalog(t)
	builtin, err := c.Get("classic")
	require.NoError(t, err)

	n, err := c.LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.NoError(t, err)
	assert.Zero(t, n)

	dir := t.TempDir()
	custom := `name: classic
description: my own
modality: keys
root:
  name: keyboard
  children:
    - name: one
      key_size: [key_width, key_height]
      keys: [{id: "S-", codes: "S"}]
`
	writeFile(t, filepath.Join(dir, "classic.yaml"), custom)
	writeFile(t, filepath.Join(dir, "tiny.json"),
		`{"name": "tiny", "modality": "keys", "root": {"name": "r", "children": []}}`)
	writeFile(t, filepath.Join(dir, "broken.yml"), "name: [\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	n, err = c.LoadDir(dir)
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	shadow, err := c.Get("classic")
	require.NoError(t, err)
	assert.Equal(t, "my own", shadow.Description)
	assert.Equal(t, filepath.Join(dir, "classic.yaml"), shadow.Source)
	assert.NotEqual(t, builtin.Fingerprint, shadow.Fingerprint)

	_, err = c.Get("tiny")
	assert.NoError(t, err)
	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

func TestFingerprintIsContentHash(t *testing.T) {
	c := newCatalog(t)
	doc := []byte("name: a\nmodality: keys\nroot: {name: r, children: []}\n")
	a, err := c.Parse(doc, "one")
	require.NoError(t, err)
	b, err := c.Parse(doc, "two")
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	other, err := c.Parse(append(doc, '\n'), "three")
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, other.Fingerprint)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
