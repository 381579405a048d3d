// Package settings exposes the tunable values of the keyboard as reactive
// cells. Config loads and reloads write into the cells; layouts and the
// joystick compensator only read them, so a changed key width or threshold
// reaches every dependent region on the next event.
package settings

import (
	"sort"
	"time"

	"stenotouch/internal/config"
	"stenotouch/internal/joystick"
	"stenotouch/internal/reactive"
)

// Settings holds one cell per tunable value. Lengths are stored in geometry
// units; Lookup and JoystickParams apply Scale.
type Settings struct {
	Scale *reactive.Cell[float32]

	KeyWidth  *reactive.Cell[float32]
	KeyHeight *reactive.Cell[float32]
	KeyGap    *reactive.Cell[float32]

	StaggerPinky  *reactive.Cell[float32]
	StaggerRing   *reactive.Cell[float32]
	StaggerMiddle *reactive.Cell[float32]
	StaggerIndex  *reactive.Cell[float32]

	BankAngle  *reactive.Cell[float32]
	VowelAngle *reactive.Cell[float32]
	BankGap    *reactive.Cell[float32]

	MaxRadius         *reactive.Cell[float32]
	NeutralThreshold  *reactive.Cell[float32]
	CompoundThreshold *reactive.Cell[float32]
	SectorOffset      *reactive.Cell[float32]
	CatchRadius       *reactive.Cell[float32]
	IdleReset         *reactive.Cell[time.Duration]

	Layout *reactive.Cell[string]

	scope *reactive.Scope
	named map[string]reactive.Value[float32]
}

// New creates settings initialised from cfg.
func New(cfg *config.Config) *Settings {
	s := &Settings{
		Scale:             reactive.NewCell[float32](1),
		KeyWidth:          reactive.NewCell[float32](0),
		KeyHeight:         reactive.NewCell[float32](0),
		KeyGap:            reactive.NewCell[float32](0),
		StaggerPinky:      reactive.NewCell[float32](0),
		StaggerRing:       reactive.NewCell[float32](0),
		StaggerMiddle:     reactive.NewCell[float32](0),
		StaggerIndex:      reactive.NewCell[float32](0),
		BankAngle:         reactive.NewCell[float32](0),
		VowelAngle:        reactive.NewCell[float32](0),
		BankGap:           reactive.NewCell[float32](0),
		MaxRadius:         reactive.NewCell[float32](0),
		NeutralThreshold:  reactive.NewCell[float32](0),
		CompoundThreshold: reactive.NewCell[float32](0),
		SectorOffset:      reactive.NewCell[float32](0),
		CatchRadius:       reactive.NewCell[float32](0),
		IdleReset:         reactive.NewCell(time.Duration(0)),
		Layout:            reactive.NewCell(""),
		scope:             reactive.NewScope(),
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s.Apply(cfg)

	scaled := func(c *reactive.Cell[float32]) reactive.Value[float32] {
		return reactive.Derive(s.scope, func() float32 { return c.Get() * s.Scale.Get() }, c, s.Scale)
	}
	s.named = map[string]reactive.Value[float32]{
		"scale":              s.Scale,
		"key_width":          scaled(s.KeyWidth),
		"key_height":         scaled(s.KeyHeight),
		"key_gap":            scaled(s.KeyGap),
		"stagger_pinky":      s.StaggerPinky,
		"stagger_ring":       s.StaggerRing,
		"stagger_middle":     s.StaggerMiddle,
		"stagger_index":      s.StaggerIndex,
		"bank_angle":         s.BankAngle,
		"vowel_angle":        s.VowelAngle,
		"bank_gap":           scaled(s.BankGap),
		"max_radius":         scaled(s.MaxRadius),
		"neutral_threshold":  s.NeutralThreshold,
		"compound_threshold": s.CompoundThreshold,
		"sector_offset":      s.SectorOffset,
		"catch_radius":       scaled(s.CatchRadius),
	}
	return s
}

// Apply writes cfg into the cells and returns how many changed. Cells that
// keep their value do not fire.
func (s *Settings) Apply(cfg *config.Config) int {
	n := 0
	set := func(c *reactive.Cell[float32], v float64) {
		if c.Set(float32(v)) {
			n++
		}
	}
	g, j := cfg.Geometry, cfg.Joystick

	set(s.Scale, cfg.Keyboard.Scale)
	set(s.KeyWidth, g.KeyWidth)
	set(s.KeyHeight, g.KeyHeight)
	set(s.KeyGap, g.KeyGap)
	set(s.StaggerPinky, g.Stagger.Pinky)
	set(s.StaggerRing, g.Stagger.Ring)
	set(s.StaggerMiddle, g.Stagger.Middle)
	set(s.StaggerIndex, g.Stagger.Index)
	set(s.BankAngle, g.BankAngle)
	set(s.VowelAngle, g.VowelAngle)
	set(s.BankGap, g.BankGap)
	set(s.MaxRadius, j.MaxRadius)
	set(s.NeutralThreshold, j.NeutralThreshold)
	set(s.CompoundThreshold, j.CompoundThreshold)
	set(s.SectorOffset, j.SectorOffset)
	set(s.CatchRadius, j.CatchRadius)
	if s.IdleReset.Set(j.IdleReset()) {
		n++
	}
	if s.Layout.Set(cfg.Keyboard.Layout) {
		n++
	}
	return n
}

// Lookup returns the value a layout document means by name. Lengths are
// scaled to device units.
func (s *Settings) Lookup(name string) (reactive.Value[float32], bool) {
	v, ok := s.named[name]
	return v, ok
}

// Names lists every name Lookup accepts, sorted.
func (s *Settings) Names() []string {
	names := make([]string, 0, len(s.named))
	for n := range s.named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// JoystickParams returns the compensator tuning backed by these settings.
func (s *Settings) JoystickParams() joystick.Params {
	return joystick.Params{
		MaxRadius:    s.named["max_radius"],
		Neutral:      s.NeutralThreshold,
		Compound:     s.CompoundThreshold,
		SectorOffset: s.SectorOffset,
		CatchRadius:  s.named["catch_radius"],
		IdleReset:    s.IdleReset,
	}
}

// Close detaches the scaled values from the cells.
func (s *Settings) Close() {
	s.scope.Close()
}
