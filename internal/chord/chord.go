// Package chord turns concurrent touches into steno strokes.
//
// An Accumulator tracks every touch of the current gesture and the keys they
// have landed on. The stroke only grows while any finger is down; when the
// last finger lifts a nonempty stroke is submitted to the Sink and the
// accumulator returns to Idle.
package chord

import (
	"io"
	"log/slog"
	"time"

	"gioui.org/f32"

	"stenotouch/internal/layout"
	"stenotouch/internal/metrics"
	"stenotouch/internal/reactive"
	"stenotouch/internal/steno"
	"stenotouch/internal/touch"
)

// Sink receives completed strokes.
type Sink interface {
	SubmitStroke(steno.Stroke)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(steno.Stroke)

// SubmitStroke calls f(s).
func (f SinkFunc) SubmitStroke(s steno.Stroke) { f(s) }

// Resolver maps a device-space point to a key. *layout.Index implements it.
type Resolver interface {
	Resolve(p f32.Point) (*layout.Key, bool)
}

// State is the accumulator state.
type State uint8

const (
	// Idle means no touch is tracked.
	Idle State = iota
	// Gathering means at least one touch is down.
	Gathering
)

func (s State) String() string {
	if s == Gathering {
		return "gathering"
	}
	return "idle"
}

// Options configures an Accumulator. The zero value is usable.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.StenoMetrics
	// Now timestamps gestures for metrics. Defaults to time.Now.
	Now func() time.Time
}

// Accumulator is the chord state machine. It is not safe for concurrent use;
// every method must be called from the thread that delivers input events.
type Accumulator struct {
	resolver Resolver
	sink     Sink
	log      *slog.Logger
	metrics  *metrics.StenoMetrics
	now      func() time.Time

	// touches maps each tracked touch to the key under it, or nil.
	touches map[touch.ID]*layout.Key
	matched map[*layout.Key]struct{}
	began   time.Time

	stroke  *reactive.Cell[steno.Stroke]
	emitted reactive.Signal[steno.Stroke]
}

// New creates an accumulator. resolver may be nil when only the key-level
// entry points (Press, Slide, Release) are used.
func New(resolver Resolver, sink Sink, opts Options) *Accumulator {
	a := &Accumulator{
		resolver: resolver,
		sink:     sink,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		touches:  make(map[touch.ID]*layout.Key),
		matched:  make(map[*layout.Key]struct{}),
		stroke:   reactive.NewCell(steno.Stroke(0)),
	}
	if a.log == nil {
		a.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// SetResolver replaces the resolver used for touch positions.
func (a *Accumulator) SetResolver(r Resolver) {
	a.resolver = r
}

// State reports Idle or Gathering.
func (a *Accumulator) State() State {
	if len(a.touches) == 0 {
		return Idle
	}
	return Gathering
}

// Active returns the number of tracked touches.
func (a *Accumulator) Active() int {
	return len(a.touches)
}

// Stroke is the in-progress stroke. It is reset to empty after every gesture.
func (a *Accumulator) Stroke() reactive.Value[steno.Stroke] {
	return a.stroke
}

// Emitted fires with every stroke submitted to the sink, after the
// accumulator has returned to Idle.
func (a *Accumulator) Emitted() *reactive.Signal[steno.Stroke] {
	return &a.emitted
}

// Matched reports whether k has been touched during the current gesture.
func (a *Accumulator) Matched(k *layout.Key) bool {
	_, ok := a.matched[k]
	return ok
}

// Current returns the key under a tracked touch.
func (a *Accumulator) Current(id touch.ID) (*layout.Key, bool) {
	k, ok := a.touches[id]
	return k, ok && k != nil
}

// HandleBatch processes host samples in order. Stationary samples carry no
// information; cancelled touches are treated as lifted.
func (a *Accumulator) HandleBatch(b touch.Batch) {
	for _, s := range b {
		switch s.Phase {
		case touch.Began:
			a.OnTouchBegin(s)
		case touch.Moved:
			a.OnTouchMove(s)
		case touch.Ended, touch.Cancelled:
			a.OnTouchEnd(s)
		}
	}
}

// OnTouchBegin resolves the key under a new touch and starts tracking it.
func (a *Accumulator) OnTouchBegin(s touch.Sample) {
	k := a.resolve(s.Position)
	if a.metrics != nil {
		a.metrics.RecordTouch(k != nil)
	}
	a.Press(s.ID, k)
}

// OnTouchMove re-resolves a tracked touch at its new position.
func (a *Accumulator) OnTouchMove(s touch.Sample) {
	if _, ok := a.touches[s.ID]; !ok {
		return
	}
	a.Slide(s.ID, a.resolve(s.Position))
}

// OnTouchEnd stops tracking a touch and completes the gesture if it was the
// last one. Unknown ids are ignored.
func (a *Accumulator) OnTouchEnd(s touch.Sample) {
	a.Release(s.ID)
}

func (a *Accumulator) resolve(p f32.Point) *layout.Key {
	if a.resolver == nil {
		return nil
	}
	k, ok := a.resolver.Resolve(p)
	if !ok {
		return nil
	}
	return k
}

// Press starts tracking id over k. k may be nil for a touch that is down but
// not on any key. Pressing an id that is already tracked acts as Slide.
func (a *Accumulator) Press(id touch.ID, k *layout.Key) {
	if _, ok := a.touches[id]; ok {
		a.Slide(id, k)
		return
	}
	if len(a.touches) == 0 {
		a.began = a.now()
	}
	a.touches[id] = nil
	a.match(id, k)
	if a.metrics != nil {
		a.metrics.SetActiveTouches(len(a.touches))
	}
}

// Slide moves a tracked touch onto k. Keys slid off stay in the stroke.
func (a *Accumulator) Slide(id touch.ID, k *layout.Key) {
	if _, ok := a.touches[id]; !ok {
		return
	}
	a.match(id, k)
}

func (a *Accumulator) match(id touch.ID, k *layout.Key) {
	a.touches[id] = k
	if k == nil {
		return
	}
	if _, seen := a.matched[k]; seen {
		return
	}
	a.matched[k] = struct{}{}
	a.stroke.Update(func(s steno.Stroke) steno.Stroke { return s.Union(k.Codes) })
}

// Release stops tracking id. When no touches remain the stroke is submitted,
// or dropped if it is empty.
func (a *Accumulator) Release(id touch.ID) {
	if _, ok := a.touches[id]; !ok {
		return
	}
	delete(a.touches, id)
	if a.metrics != nil {
		a.metrics.SetActiveTouches(len(a.touches))
	}
	if len(a.touches) > 0 {
		return
	}

	s := a.stroke.Get()
	gesture := a.now().Sub(a.began)
	a.reset()
	if s.IsEmpty() {
		a.log.Debug("gesture ended without keys")
		if a.metrics != nil {
			a.metrics.RecordDiscard()
		}
		return
	}

	a.log.Debug("stroke", "steno", s.String(), "keys", s.Len(), "duration", gesture)
	if a.metrics != nil {
		a.metrics.RecordStroke(s.Len(), gesture)
	}
	if a.sink != nil {
		a.sink.SubmitStroke(s)
	}
	a.emitted.Emit(s)
}

// Cancel drops the current gesture without submitting anything.
func (a *Accumulator) Cancel() {
	if len(a.touches) == 0 && a.stroke.Get().IsEmpty() {
		return
	}
	a.log.Debug("gesture cancelled", "touches", len(a.touches), "steno", a.stroke.Get().String())
	if a.metrics != nil {
		a.metrics.RecordCancel()
		a.metrics.SetActiveTouches(0)
	}
	a.reset()
}

func (a *Accumulator) reset() {
	clear(a.touches)
	clear(a.matched)
	a.stroke.Set(0)
}
