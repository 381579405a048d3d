package joystick

import (
	"io"
	"log/slog"
	"time"

	"gioui.org/f32"

	"stenotouch/internal/chord"
	"stenotouch/internal/layout"
	"stenotouch/internal/metrics"
	"stenotouch/internal/reactive"
	"stenotouch/internal/steno"
	"stenotouch/internal/touch"
)

// Params are the tuning values. Each is read live, so a settings change takes
// effect on the next touch event.
type Params struct {
	// MaxRadius bounds the displacement, in device units.
	MaxRadius reactive.Value[float32]
	// Neutral is the fraction of MaxRadius below which nothing is selected.
	Neutral reactive.Value[float32]
	// Compound is the fraction of MaxRadius below which a vertical joystick
	// selects its compound key.
	Compound reactive.Value[float32]
	// SectorOffset shifts the sector boundaries, in degrees.
	SectorOffset reactive.Value[float32]
	// CatchRadius is how far from a center a touch may begin and still
	// grab that joystick. Zero means twice MaxRadius.
	CatchRadius reactive.Value[float32]
	// IdleReset re-homes every joystick after this long without touches.
	// Zero disables it.
	IdleReset reactive.Value[time.Duration]
}

// DefaultParams returns constant defaults for a given maximum radius.
func DefaultParams(maxRadius float32) Params {
	return Params{
		MaxRadius:    reactive.Const(maxRadius),
		Neutral:      reactive.Const[float32](0.5),
		Compound:     reactive.Const[float32](0.75),
		SectorOffset: reactive.Const[float32](22.5),
		CatchRadius:  reactive.Const[float32](0),
		IdleReset:    reactive.Const(time.Duration(0)),
	}
}

// Clock schedules the idle reset. AfterFunc must run fn on the event thread;
// the returned stop function cancels a pending call.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// PostClock is a Clock backed by time.AfterFunc that hands expired callbacks
// to Post, which must forward them to the event thread.
type PostClock struct {
	Post func(func())
}

// AfterFunc implements Clock.
func (c PostClock) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, func() { c.Post(fn) })
	return t.Stop
}

// Options configures a Compensator.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.StenoMetrics
	// Clock delivers the idle reset. Nil disables it.
	Clock Clock
}

// Compensator routes touches to joysticks and feeds the selected keys into a
// chord accumulator. Like the accumulator it is single-threaded.
type Compensator struct {
	sticks  []*Joystick
	acc     *chord.Accumulator
	params  Params
	log     *slog.Logger
	metrics *metrics.StenoMetrics
	clock   Clock
	scope   *reactive.Scope

	byTouch map[touch.ID]*Joystick
	stop    func() bool
	// generation invalidates idle callbacks already queued on the event
	// thread when a new touch arrives.
	generation uint64

	neutral  *reactive.Computed[float32]
	compound *reactive.Computed[float32]
	catch    *reactive.Computed[float32]

	changed reactive.Signal[struct{}]
}

// New builds a compensator over specs. It subscribes to acc's emitted
// strokes under a child of owner; Close or closing owner detaches it.
func New(owner *reactive.Scope, specs []Spec, acc *chord.Accumulator, params Params, opts Options) (*Compensator, error) {
	def := DefaultParams(40)
	params.MaxRadius = orDefault(params.MaxRadius, def.MaxRadius)
	params.Neutral = orDefault(params.Neutral, def.Neutral)
	params.Compound = orDefault(params.Compound, def.Compound)
	params.SectorOffset = orDefault(params.SectorOffset, def.SectorOffset)
	params.CatchRadius = orDefault(params.CatchRadius, def.CatchRadius)
	params.IdleReset = orDefault(params.IdleReset, def.IdleReset)

	c := &Compensator{
		acc:     acc,
		params:  params,
		log:     opts.Logger,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		scope:   owner.Child(),
		byTouch: make(map[touch.ID]*Joystick),
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			c.scope.Close()
			return nil, err
		}
		c.sticks = append(c.sticks, newJoystick(specs[i]))
	}

	radius := params.MaxRadius
	c.neutral = reactive.Derive(c.scope, func() float32 {
		return params.Neutral.Get() * radius.Get()
	}, params.Neutral, radius)
	c.compound = reactive.Derive(c.scope, func() float32 {
		return params.Compound.Get() * radius.Get()
	}, params.Compound, radius)
	c.catch = reactive.Derive(c.scope, func() float32 {
		if r := params.CatchRadius.Get(); r > 0 {
			return r
		}
		return 2 * radius.Get()
	}, params.CatchRadius, radius)

	acc.Emitted().Subscribe(c.scope, c.onEmitted)
	return c, nil
}

func orDefault[T any](v, def reactive.Value[T]) reactive.Value[T] {
	if v == nil {
		return def
	}
	return v
}

// Joysticks returns the controls in declaration order.
func (c *Compensator) Joysticks() []*Joystick {
	return c.sticks
}

// Changed fires after any joystick's center, displacement or selection
// changed.
func (c *Compensator) Changed() *reactive.Signal[struct{}] {
	return &c.changed
}

// Close cancels the idle timer and detaches from the accumulator.
func (c *Compensator) Close() {
	c.stopTimer()
	c.scope.Close()
}

// HandleBatch processes host samples in order.
func (c *Compensator) HandleBatch(b touch.Batch) {
	for _, s := range b {
		switch s.Phase {
		case touch.Began:
			c.OnTouchBegin(s)
		case touch.Moved:
			c.OnTouchMove(s)
		case touch.Ended, touch.Cancelled:
			c.OnTouchEnd(s)
		}
	}
}

// OnTouchBegin assigns the touch to the nearest free joystick within catch
// range. A touch that catches nothing still counts as a finger down.
func (c *Compensator) OnTouchBegin(s touch.Sample) {
	c.stopTimer()
	if _, ok := c.byTouch[s.ID]; ok {
		c.OnTouchMove(s)
		return
	}

	j := c.nearest(s.Position)
	if c.metrics != nil {
		c.metrics.RecordTouch(j != nil)
	}
	if j == nil {
		c.acc.Press(s.ID, nil)
		return
	}

	if j.home {
		if !j.calibrated {
			// First contact calibrates the control under the finger.
			j.center = s.Position
			j.calibrated = true
		} else {
			j.center = j.Base()
		}
		j.home = false
	}
	j.held = true
	j.last = s.Position
	j.displacement = f32.Point{}
	j.selected = nil
	j.sector = Neutral
	c.byTouch[s.ID] = j
	c.acc.Press(s.ID, nil)
	c.changed.Emit(struct{}{})
}

func (c *Compensator) nearest(p f32.Point) *Joystick {
	reach := c.catch.Get()
	var best *Joystick
	var bestDist float32
	for _, j := range c.sticks {
		if j.held {
			continue
		}
		d := length(p.Sub(j.Center()))
		if d > reach {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// OnTouchMove accumulates displacement and updates the selection.
func (c *Compensator) OnTouchMove(s touch.Sample) {
	j, ok := c.byTouch[s.ID]
	if !ok {
		return
	}
	delta := s.Position.Sub(j.last)
	j.last = s.Position
	if delta == (f32.Point{}) {
		return
	}
	c.drag(j, delta)

	k, sector := c.choose(j)
	j.sector = sector
	if k != j.selected {
		j.selected = k
		if k != nil {
			j.contributed = true
		}
		c.acc.Slide(s.ID, k)
	}
	c.changed.Emit(struct{}{})
}

// drag adds delta to the displacement. Whatever would carry it past the
// maximum radius moves the center instead.
func (c *Compensator) drag(j *Joystick, delta f32.Point) {
	r := c.params.MaxRadius.Get()
	d := j.displacement.Add(delta)
	if n := length(d); n > r && n > 0 {
		clamped := d.Mul(r / n)
		j.center = j.center.Add(d.Sub(clamped))
		d = clamped
	}
	j.displacement = d
}

// choose maps the current displacement to a key.
func (c *Compensator) choose(j *Joystick) (*layout.Key, Sector) {
	d := j.displacement
	n := length(d)
	if n < c.neutral.Get() {
		return nil, Neutral
	}
	if j.spec.Shape == Vertical {
		if n < c.compound.Get() && j.spec.Compound != nil {
			return j.spec.Compound, Neutral
		}
		switch {
		case d.Y < 0:
			return j.spec.Up, Neutral
		case d.Y > 0:
			return j.spec.Down, Neutral
		}
		return nil, Neutral
	}
	sector := SectorOf(d, c.params.SectorOffset.Get())
	return j.spec.Sectors[sector], sector
}

// OnTouchEnd returns the joystick to neutral and releases the finger. The
// displacement stays until the gesture completes. An end for a touch that is
// not down is ignored.
func (c *Compensator) OnTouchEnd(s touch.Sample) {
	j, held := c.byTouch[s.ID]
	if held {
		delete(c.byTouch, s.ID)
		j.held = false
		j.selected = nil
		j.sector = Neutral
	}
	gathering := c.acc.State() == chord.Gathering
	c.acc.Release(s.ID)
	released := gathering && c.acc.State() == chord.Idle
	if released {
		c.settle()
		c.armTimer()
	}
	if held || released {
		c.changed.Emit(struct{}{})
	}
}

// onEmitted bakes the displacement of every joystick that added nothing to
// the stroke into its center.
func (c *Compensator) onEmitted(s steno.Stroke) {
	moved := 0
	for _, j := range c.sticks {
		if !j.contributed && j.displacement != (f32.Point{}) {
			j.center = j.Center().Add(j.displacement)
			j.home = false
			moved++
		}
	}
	c.settle()
	if moved > 0 {
		c.log.Debug("recentered joysticks", "count", moved, "steno", s.String())
		if c.metrics != nil {
			c.metrics.RecordRecenter(moved)
		}
	}
}

// settle clears per-gesture state once no finger is down.
func (c *Compensator) settle() {
	for _, j := range c.sticks {
		j.displacement = f32.Point{}
		j.contributed = false
	}
}

func (c *Compensator) armTimer() {
	if c.clock == nil {
		return
	}
	d := c.params.IdleReset.Get()
	if d <= 0 {
		return
	}
	c.stopTimer()
	gen := c.generation
	c.stop = c.clock.AfterFunc(d, func() {
		if gen != c.generation || c.acc.State() != chord.Idle {
			return
		}
		c.stop = nil
		c.ResetCenters()
		if c.metrics != nil {
			c.metrics.RecordIdleReset()
		}
	})
}

func (c *Compensator) stopTimer() {
	c.generation++
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// ResetCenters re-homes every joystick that is not held to its base.
func (c *Compensator) ResetCenters() {
	for _, j := range c.sticks {
		if j.held {
			continue
		}
		j.home = true
		j.displacement = f32.Point{}
	}
	c.log.Debug("joysticks re-homed")
	c.changed.Emit(struct{}{})
}

// Cancel abandons the current gesture: every joystick goes neutral without
// recentering and the accumulator drops its stroke.
func (c *Compensator) Cancel() {
	c.stopTimer()
	for id, j := range c.byTouch {
		j.held = false
		j.selected = nil
		j.sector = Neutral
		delete(c.byTouch, id)
	}
	c.settle()
	c.acc.Cancel()
	c.changed.Emit(struct{}{})
}
