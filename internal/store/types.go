// Package store provides the SQLite stroke journal for stenotouch.
package store

import (
	"time"

	"stenotouch/internal/steno"
)

// Stroke is one journaled chord.
type Stroke struct {
	ID     int64
	Time   time.Time
	Stroke steno.Stroke

	// Layout and Fingerprint identify the layout document that produced
	// the stroke.
	Layout      string
	Fingerprint string

	// Modality is "keys" or "joystick".
	Modality string
}

// KeyCount is how often a primitive key appeared in journaled strokes.
type KeyCount struct {
	Key   steno.Key
	Count int64
}

// StrokeCount is how often a whole stroke was journaled.
type StrokeCount struct {
	Stroke steno.Stroke
	Count  int64
}

// LayoutRecord is a layout version seen by the journal.
type LayoutRecord struct {
	Fingerprint string
	Name        string
	Source      string
	FirstSeen   time.Time
}

// Stats summarises the journal.
type Stats struct {
	Strokes int64
	Layouts int64
	First   time.Time
	Last    time.Time
}
