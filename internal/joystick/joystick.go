// Package joystick implements the continuous input modality: a few fixed
// controls, one per finger, each selecting a key by the direction and length
// of a drag rather than by where the finger lands.
//
// Fingers drift. A Compensator lets a control's center follow the finger
// when a drag runs past the maximum radius, bakes leftover displacement into
// idle controls after each stroke, and optionally re-homes every control
// after a period without touches.
package joystick

import (
	"fmt"
	"math"

	"gioui.org/f32"

	"stenotouch/internal/layout"
	"stenotouch/internal/reactive"
)

// Shape selects how a joystick maps displacement to keys.
type Shape uint8

const (
	// Vertical has an up key, a down key and an optional compound key in
	// the band between the neutral and compound thresholds.
	Vertical Shape = iota
	// Semicircle binds up to four sectors of the upper half-plane.
	Semicircle
	// Circle binds up to eight sectors.
	Circle
)

var shapeNames = [...]string{"vertical", "semicircle", "circle"}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// ParseShape parses a shape name.
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if n == name {
			return Shape(i), nil
		}
	}
	return 0, fmt.Errorf("joystick: unknown shape %q", name)
}

// Sector is one of eight 45 degree directions, counterclockwise from east in
// screen orientation (north is up).
type Sector int

const (
	East Sector = iota
	NorthEast
	North
	NorthWest
	West
	SouthWest
	South
	SouthEast

	// Neutral means no sector is selected.
	Neutral Sector = -1
)

var sectorNames = [...]string{"e", "ne", "n", "nw", "w", "sw", "s", "se"}

func (s Sector) String() string {
	if s >= 0 && int(s) < len(sectorNames) {
		return sectorNames[s]
	}
	return "neutral"
}

// ParseSector parses a compass abbreviation such as "n" or "se".
func ParseSector(name string) (Sector, error) {
	for i, n := range sectorNames {
		if n == name {
			return Sector(i), nil
		}
	}
	return Neutral, fmt.Errorf("joystick: unknown direction %q", name)
}

// upper reports whether the sector lies in the upper half-plane, east and
// west included.
func (s Sector) upper() bool {
	return s >= East && s <= West
}

// SectorOf buckets a screen-space displacement into a sector. offset shifts
// the sector boundaries, in degrees; 22.5 centers each sector on its compass
// direction.
func SectorOf(d f32.Point, offset float32) Sector {
	angle := math.Atan2(float64(-d.Y), float64(d.X)) * 180 / math.Pi
	i := int(math.Floor((angle + float64(offset)) / 45))
	return Sector(((i % 8) + 8) % 8)
}

// Spec describes one joystick of a layout.
type Spec struct {
	Name  string
	Shape Shape
	// Base is the resting center in device coordinates.
	Base reactive.Value[f32.Point]

	// Sectors binds keys for Circle and Semicircle joysticks.
	Sectors [8]*layout.Key
	// Up, Down and Compound bind keys for Vertical joysticks.
	Up, Down, Compound *layout.Key
}

// Validate checks that the bindings fit the shape.
func (s *Spec) Validate() error {
	if s.Base == nil {
		return fmt.Errorf("joystick %q: missing base position", s.Name)
	}
	switch s.Shape {
	case Vertical:
		for _, k := range s.Sectors {
			if k != nil {
				return fmt.Errorf("joystick %q: vertical joystick binds sectors", s.Name)
			}
		}
		if s.Up == nil && s.Down == nil {
			return fmt.Errorf("joystick %q: no keys bound", s.Name)
		}
	case Semicircle, Circle:
		if s.Up != nil || s.Down != nil || s.Compound != nil {
			return fmt.Errorf("joystick %q: %s joystick binds up/down keys", s.Name, s.Shape)
		}
		n := 0
		for i, k := range s.Sectors {
			if k == nil {
				continue
			}
			n++
			if s.Shape == Semicircle && !Sector(i).upper() {
				return fmt.Errorf("joystick %q: sector %s is below a semicircle", s.Name, Sector(i))
			}
		}
		if n == 0 {
			return fmt.Errorf("joystick %q: no keys bound", s.Name)
		}
		if s.Shape == Semicircle && n > 4 {
			return fmt.Errorf("joystick %q: semicircle binds %d sectors, at most 4", s.Name, n)
		}
	default:
		return fmt.Errorf("joystick %q: unknown shape %d", s.Name, s.Shape)
	}
	return nil
}

// Keys returns every bound key.
func (s *Spec) Keys() []*layout.Key {
	var out []*layout.Key
	for _, k := range s.Sectors {
		if k != nil {
			out = append(out, k)
		}
	}
	for _, k := range []*layout.Key{s.Up, s.Compound, s.Down} {
		if k != nil {
			out = append(out, k)
		}
	}
	return out
}

// Joystick is the live state of one control. It persists across gestures.
type Joystick struct {
	spec Spec

	// home is set until first use and again after an idle reset; the center
	// then follows the base.
	home         bool
	calibrated   bool
	center       f32.Point
	displacement f32.Point
	selected     *layout.Key
	sector       Sector

	held        bool
	last        f32.Point
	contributed bool
}

func newJoystick(spec Spec) *Joystick {
	return &Joystick{spec: spec, home: true, sector: Neutral}
}

// Name returns the joystick name.
func (j *Joystick) Name() string { return j.spec.Name }

// Spec returns the joystick description.
func (j *Joystick) Spec() *Spec { return &j.spec }

// Base returns the resting center.
func (j *Joystick) Base() f32.Point { return j.spec.Base.Get() }

// Center returns the current center.
func (j *Joystick) Center() f32.Point {
	if j.home {
		return j.Base()
	}
	return j.center
}

// Displacement returns the finger offset from the center.
func (j *Joystick) Displacement() f32.Point { return j.displacement }

// Selected returns the selected key, or nil in the neutral position.
func (j *Joystick) Selected() *layout.Key { return j.selected }

// Sector returns the selected direction of a round joystick.
func (j *Joystick) Sector() Sector { return j.sector }

// Held reports whether a touch currently drives the joystick.
func (j *Joystick) Held() bool { return j.held }

func length(p f32.Point) float32 {
	return float32(math.Hypot(float64(p.X), float64(p.Y)))
}
