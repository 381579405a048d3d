package joystick

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"gioui.org/f32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stenotouch/internal/chord"
	"stenotouch/internal/layout"
	"stenotouch/internal/metrics"
	"stenotouch/internal/reactive"
	"stenotouch/internal/steno"
	"stenotouch/internal/touch"
)

type recorder struct {
	strokes []steno.Stroke
}

func (r *recorder) SubmitStroke(s steno.Stroke) {
	r.strokes = append(r.strokes, s)
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

// fakeClock runs callbacks only when fire is called.
type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) func() bool {
	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return func() bool {
		was := !t.stopped
		t.stopped = true
		return was
	}
}

func (c *fakeClock) pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (c *fakeClock) fire() {
	timers := c.timers
	c.timers = nil
	for _, t := range timers {
		if !t.stopped {
			t.stopped = true
			t.fn()
		}
	}
}

func key(id string, codes ...steno.Key) *layout.Key {
	return &layout.Key{ID: id, Label: id, Codes: steno.Of(codes...)}
}

var (
	upKey       = key("T-", steno.LeftT)
	downKey     = key("K-", steno.LeftK)
	compoundKey = key("TK-", steno.LeftT, steno.LeftK)
)

func vertical(name string, x, y float32) Spec {
	return Spec{
		Name:     name,
		Shape:    Vertical,
		Base:     reactive.Const(f32.Pt(x, y)),
		Up:       upKey,
		Down:     downKey,
		Compound: compoundKey,
	}
}

func circle(name string, x, y float32) Spec {
	s := Spec{Name: name, Shape: Circle, Base: reactive.Const(f32.Pt(x, y))}
	for i := range s.Sectors {
		s.Sectors[i] = key(name + "." + Sector(i).String())
	}
	s.Sectors[East].Codes = steno.Of(steno.RightF)
	s.Sectors[West].Codes = steno.Of(steno.RightR)
	return s
}

type rig struct {
	comp  *Compensator
	acc   *chord.Accumulator
	rec   *recorder
	clock *fakeClock
}

func newRig(t *testing.T, params Params, specs ...Spec) *rig {
	t.Helper()
	r := &rig{rec: &recorder{}, clock: &fakeClock{}}
	scope := reactive.NewScope()
	t.Cleanup(scope.Close)
	r.acc = chord.New(nil, r.rec, chord.Options{})
	comp, err := New(scope, specs, r.acc, params, Options{Clock: r.clock})
	require.NoError(t, err)
	r.comp = comp
	return r
}

func (r *rig) begin(id touch.ID, x, y float32) { r.comp.OnTouchBegin(touch.Begin(id, x, y)) }
func (r *rig) move(id touch.ID, x, y float32)  { r.comp.OnTouchMove(touch.Move(id, x, y)) }
func (r *rig) end(id touch.ID)                 { r.comp.OnTouchEnd(touch.End(id, 0, 0)) }

func TestVerticalThresholds(t *testing.T) {
	r := newRig(t, DefaultParams(40), vertical("index", 100, 100))
	j := r.comp.Joysticks()[0]

	r.begin(1, 100, 100)
	tests := []struct {
		y    float32
		want *layout.Key
	}{
		{110, nil},         // 10 < 20
		{119.9, nil},       // just below neutral
		{125, compoundKey}, // between 20 and 30
		{135, downKey},     // past 30
		{125, compoundKey}, // back into the band
		{95, nil},          // -5
		{70, upKey},        // -30
	}
	for _, tt := range tests {
		r.move(1, 100, tt.y)
		assert.Same(t, tt.want, j.Selected(), "y=%v", tt.y)
	}
	r.end(1)

	require.Len(t, r.rec.strokes, 1)
	assert.Equal(t, steno.Of(steno.LeftT, steno.LeftK), r.rec.strokes[0])
	assert.Nil(t, j.Selected())
}

func TestVerticalWithoutCompoundKey(t *testing.T) {
	spec := vertical("pinky", 0, 0)
	spec.Compound = nil
	r := newRig(t, DefaultParams(40), spec)

	r.begin(1, 0, 0)
	r.move(1, 0, 25)
	assert.Same(t, downKey, r.comp.Joysticks()[0].Selected())
}

func TestDisplacementClamp(t *testing.T) {
	r := newRig(t, DefaultParams(40), circle("thumb", 0, 0))
	j := r.comp.Joysticks()[0]

	r.begin(1, 0, 0)
	r.move(1, 100, 0)
	assert.InDelta(t, 40, j.Displacement().X, 1e-4)
	assert.InDelta(t, 0, j.Displacement().Y, 1e-4)
	assert.InDelta(t, 60, j.Center().X, 1e-4)
	assert.Equal(t, East, j.Sector())

	// Reversing direction moves the finger back through the center.
	r.move(1, 60, 0)
	assert.InDelta(t, 0, j.Displacement().X, 1e-4)
	assert.Equal(t, Neutral, j.Sector())
}

func TestDisplacementNeverExceedsRadius(t *testing.T) {
	const radius = 30
	r := newRig(t, DefaultParams(radius), circle("a", 0, 0))
	j := r.comp.Joysticks()[0]
	rng := rand.New(rand.NewSource(3))

	r.begin(1, 0, 0)
	var x, y float32
	for i := 0; i < 500; i++ {
		x += float32(rng.NormFloat64() * 25)
		y += float32(rng.NormFloat64() * 25)
		r.move(1, x, y)
		assert.LessOrEqual(t, length(j.Displacement()), float32(radius)+1e-3)
		// The finger is always at center plus displacement.
		finger := j.Center().Add(j.Displacement())
		assert.InDelta(t, x, finger.X, 1e-2)
		assert.InDelta(t, y, finger.Y, 1e-2)
	}
}

func TestSectorOf(t *testing.T) {
	tests := []struct {
		dx, dy float32
		want   Sector
	}{
		{1, 0, East},
		{1, -1, NorthEast},
		{0, -1, North},
		{-1, -1, NorthWest},
		{-1, 0, West},
		{-1, 1, SouthWest},
		{0, 1, South},
		{1, 1, SouthEast},
		{1, -0.3, East},      // 16.7 degrees
		{1, 0.3, East},       // -16.7 degrees
		{1, -0.5, NorthEast}, // 26.6 degrees
		{-1, 0.01, West},     // just below the negative x axis
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SectorOf(f32.Pt(tt.dx, tt.dy), 22.5), "(%v,%v)", tt.dx, tt.dy)
	}

	// Without the offset sector boundaries sit on the compass directions.
	assert.Equal(t, East, SectorOf(f32.Pt(1, -0.5), 0))
	assert.Equal(t, SouthEast, SectorOf(f32.Pt(1, 0.1), 0))
}

func TestCircleSelectsEverySector(t *testing.T) {
	r := newRig(t, DefaultParams(40), circle("c", 0, 0))
	j := r.comp.Joysticks()[0]
	r.begin(1, 0, 0)
	for s := East; s <= SouthEast; s++ {
		angle := float64(s) * math.Pi / 4
		r.move(1, 0, 0)
		r.move(1, float32(35*math.Cos(angle)), float32(-35*math.Sin(angle)))
		assert.Equal(t, s, j.Sector())
		assert.Same(t, j.Spec().Sectors[s], j.Selected())
	}
}

func TestSemicircleIgnoresLowerHalf(t *testing.T) {
	spec := Spec{Name: "vowels", Shape: Semicircle, Base: reactive.Const(f32.Pt(0, 0))}
	spec.Sectors[NorthWest] = key("A-", steno.A)
	spec.Sectors[North] = key("O-", steno.O)
	r := newRig(t, DefaultParams(40), spec)
	j := r.comp.Joysticks()[0]

	r.begin(1, 0, 0)
	r.move(1, 0, 35)
	assert.Equal(t, South, j.Sector())
	assert.Nil(t, j.Selected())
	r.move(1, 0, -35)
	assert.Equal(t, "O-", j.Selected().ID)
}

func TestSpecValidate(t *testing.T) {
	base := reactive.Const(f32.Point{})
	tests := []struct {
		name string
		spec Spec
		ok   bool
	}{
		{"vertical", vertical("v", 0, 0), true},
		{"no base", Spec{Name: "x", Shape: Vertical, Up: upKey}, false},
		{"vertical with sectors", func() Spec {
			s := vertical("v", 0, 0)
			s.Sectors[North] = upKey
			return s
		}(), false},
		{"empty circle", Spec{Name: "c", Shape: Circle, Base: base}, false},
		{"semicircle below", func() Spec {
			s := Spec{Name: "s", Shape: Semicircle, Base: base}
			s.Sectors[South] = upKey
			return s
		}(), false},
		{"semicircle with five", func() Spec {
			s := Spec{Name: "s", Shape: Semicircle, Base: base}
			for i := East; i <= West; i++ {
				s.Sectors[i] = upKey
			}
			return s
		}(), false},
		{"circle", circle("c", 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFirstUseCalibratesThenResumes(t *testing.T) {
	r := newRig(t, DefaultParams(40), circle("c", 100, 100))
	j := r.comp.Joysticks()[0]
	assert.Equal(t, f32.Pt(100, 100), j.Center())

	r.begin(1, 120, 90)
	assert.Equal(t, f32.Pt(120, 90), j.Center())
	r.end(1)

	r.begin(2, 130, 95)
	assert.Equal(t, f32.Pt(120, 90), j.Center(), "later touches resume from the remembered center")
	assert.Equal(t, f32.Point{}, j.Displacement())
}

func TestCrossStrokeRecentering(t *testing.T) {
	m := metrics.NewStenoMetrics(metrics.NewRegistry("test", ""))
	rec := &recorder{}
	scope := reactive.NewScope()
	defer scope.Close()
	acc := chord.New(nil, rec, chord.Options{})
	comp, err := New(scope, []Spec{circle("a", 0, 0), circle("b", 200, 0), circle("c", 400, 0)}, acc,
		DefaultParams(40), Options{Metrics: m})
	require.NoError(t, err)
	a, b, c := comp.Joysticks()[0], comp.Joysticks()[1], comp.Joysticks()[2]

	comp.OnTouchBegin(touch.Begin(1, 0, 0))
	comp.OnTouchBegin(touch.Begin(2, 200, 0))
	comp.OnTouchMove(touch.Move(1, 100, 0))
	comp.OnTouchMove(touch.Move(2, 205, -5))
	comp.OnTouchEnd(touch.End(1, 100, 0))
	comp.OnTouchEnd(touch.End(2, 205, -5))

	require.Len(t, rec.strokes, 1)
	assert.Equal(t, steno.Of(steno.RightF), rec.strokes[0])

	assert.Equal(t, f32.Pt(60, 0), a.Center(), "contributing joystick keeps its dragged center")
	assert.Equal(t, f32.Pt(205, -5), b.Center(), "idle drift is baked in")
	assert.Equal(t, f32.Pt(400, 0), c.Center(), "untouched joystick stays put")
	for _, j := range comp.Joysticks() {
		assert.Equal(t, f32.Point{}, j.Displacement())
	}
	assert.Equal(t, uint64(1), m.RecentersTotal.Value())
}

func TestEmptyGestureDoesNotRecenter(t *testing.T) {
	r := newRig(t, DefaultParams(40), circle("a", 0, 0))
	j := r.comp.Joysticks()[0]

	r.begin(1, 0, 0)
	r.move(1, 5, 0)
	r.end(1)
	assert.Empty(t, r.rec.strokes)
	assert.Equal(t, f32.Pt(0, 0), j.Center())
	assert.Equal(t, f32.Point{}, j.Displacement())
}

func TestIdleReset(t *testing.T) {
	params := DefaultParams(40)
	params.IdleReset = reactive.Const(2 * time.Second)
	r := newRig(t, params, circle("a", 0, 0))
	j := r.comp.Joysticks()[0]

	r.begin(1, 10, 10)
	r.end(1)
	require.Equal(t, 1, r.clock.pending())
	assert.Equal(t, 2*time.Second, r.clock.timers[0].d)

	// A new touch cancels the pending reset.
	r.begin(2, 10, 10)
	assert.Zero(t, r.clock.pending())
	r.move(2, 50, 10)
	r.end(2)
	assert.Equal(t, f32.Pt(10, 10), j.Center())

	r.clock.fire()
	assert.Equal(t, f32.Pt(0, 0), j.Center())

	// After re-homing, touches resume from the base rather than recalibrating.
	r.begin(3, 15, 5)
	assert.Equal(t, f32.Pt(0, 0), j.Center())
}

func TestEndForUnknownTouchIsIgnored(t *testing.T) {
	params := DefaultParams(40)
	params.IdleReset = reactive.Const(time.Second)
	r := newRig(t, params, circle("a", 0, 0))
	scope := reactive.NewScope()
	defer scope.Close()

	r.begin(1, 10, 10)
	r.end(1)
	require.Len(t, r.clock.timers, 1)

	changed := 0
	r.comp.Changed().Watch(scope, func() { changed++ })
	r.end(99)

	require.Len(t, r.clock.timers, 1, "no new idle timer")
	assert.False(t, r.clock.timers[0].stopped)
	assert.Equal(t, 1, r.clock.pending())
	assert.Zero(t, changed)
}

func TestStaleIdleCallbackIsIgnored(t *testing.T) {
	params := DefaultParams(40)
	params.IdleReset = reactive.Const(time.Second)
	r := newRig(t, params, circle("a", 0, 0))
	j := r.comp.Joysticks()[0]

	r.begin(1, 10, 10)
	r.end(1)
	stale := r.clock.timers[0].fn
	r.begin(2, 10, 10)
	stale()
	assert.Equal(t, f32.Pt(10, 10), j.Center())
}

func TestCatchRadiusAssignsNearestFreeJoystick(t *testing.T) {
	r := newRig(t, DefaultParams(40), circle("a", 0, 0), circle("b", 100, 0))
	a, b := r.comp.Joysticks()[0], r.comp.Joysticks()[1]

	r.begin(1, 60, 0)
	assert.True(t, b.Held())
	assert.False(t, a.Held())

	r.begin(2, 60, 0)
	assert.True(t, a.Held(), "the nearest joystick is taken, so the next one in reach catches")

	r.begin(3, 500, 500)
	assert.Equal(t, 3, r.acc.Active())
	r.end(1)
	r.end(2)
	r.end(3)
	assert.Equal(t, chord.Idle, r.acc.State())
	assert.Empty(t, r.rec.strokes)
}

func TestParamsAreLive(t *testing.T) {
	radius := reactive.NewCell[float32](40)
	params := DefaultParams(0)
	params.MaxRadius = radius
	r := newRig(t, params, vertical("v", 0, 0))
	j := r.comp.Joysticks()[0]

	r.begin(1, 0, 0)
	r.move(1, 0, 25)
	assert.Same(t, compoundKey, j.Selected())

	radius.Set(100)
	r.move(1, 0, 26)
	assert.Nil(t, j.Selected(), "26 is below half of the new radius")
}

func TestCancelDropsGesture(t *testing.T) {
	r := newRig(t, DefaultParams(40), circle("a", 0, 0))
	j := r.comp.Joysticks()[0]

	r.begin(1, 0, 0)
	r.move(1, 30, 0)
	r.comp.Cancel()
	assert.False(t, j.Held())
	assert.Nil(t, j.Selected())
	assert.Equal(t, chord.Idle, r.acc.State())

	r.end(1)
	assert.Empty(t, r.rec.strokes)
}

func TestParseNames(t *testing.T) {
	s, err := ParseShape("semicircle")
	require.NoError(t, err)
	assert.Equal(t, Semicircle, s)
	_, err = ParseShape("square")
	assert.Error(t, err)

	d, err := ParseSector("nw")
	require.NoError(t, err)
	assert.Equal(t, NorthWest, d)
	assert.Equal(t, "neutral", Neutral.String())
}
