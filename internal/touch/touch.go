// Package touch defines the touch samples the host delivers to the chord
// engine, and translates gio pointer events into them.
package touch

import (
	"fmt"
	"time"

	"gioui.org/f32"
)

// ID identifies one touch for the duration of a single contact.
type ID uint64

// Phase is the lifecycle stage of a touch sample.
type Phase uint8

const (
	Began Phase = iota
	Moved
	Stationary
	Ended
	// Cancelled is sent when the platform takes the gesture away. The engine
	// treats it like Ended.
	Cancelled
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Began:
		return "began"
	case Moved:
		return "moved"
	case Stationary:
		return "stationary"
	case Ended:
		return "ended"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// IsTerminal reports whether the touch is gone after this sample.
func (p Phase) IsTerminal() bool {
	return p == Ended || p == Cancelled
}

// Sample is one touch observation.
type Sample struct {
	ID       ID
	Position f32.Point
	Phase    Phase
	// Time is the host event time, relative to an arbitrary origin.
	Time time.Duration
}

// Batch is the set of samples the host delivers for a single input event,
// in delivery order.
type Batch []Sample

// Begin, Move and End build samples; they keep tests and adapters terse.
func Begin(id ID, x, y float32) Sample {
	return Sample{ID: id, Position: f32.Pt(x, y), Phase: Began}
}

// Move builds a Moved sample.
func Move(id ID, x, y float32) Sample {
	return Sample{ID: id, Position: f32.Pt(x, y), Phase: Moved}
}

// End builds an Ended sample.
func End(id ID, x, y float32) Sample {
	return Sample{ID: id, Position: f32.Pt(x, y), Phase: Ended}
}
